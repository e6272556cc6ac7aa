// Package relay implements best-effort at-least-once delivery of queued
// cross-chain messages, grounded on the teacher's batch.Scheduler loop
// shape (stopCh/doneCh, idempotent Start/Stop) and
// batch.ConfirmationTracker's stats/status pattern.
package relay

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/certen/swapcoordinator/pkg/chainadapter"
	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/message"
)

// State is a QueuedMessage's lifecycle state.
type State string

const (
	StatePending  State = "PENDING"
	StateRelaying State = "RELAYING"
	StateDelivered State = "DELIVERED"
	StateFailed   State = "FAILED"
	StateRetry    State = "RETRY"
)

// Target selects which adapter a message is dispatched to.
type Target string

const (
	TargetSource      Target = "source"
	TargetDestination Target = "destination"
)

// QueuedMessage is a message plus its relay lifecycle bookkeeping.
type QueuedMessage struct {
	QueuedID    string
	Message     *message.Message
	Target      Target
	State       State
	Attempts    int
	NextRetry   time.Time
	CreatedAt   time.Time
	LastAttempt time.Time
	LastError   string
}

// Stats summarizes the queue for observability, mirroring the teacher's
// ConfirmationStats shape.
type Stats struct {
	Total           int
	Pending         int
	Delivered       int
	Failed          int
	Retry           int
	AvgDeliveryMS   float64
}

// Config holds the relay's tunables, sourced from pkg/config.
type Config struct {
	ProcessingInterval time.Duration
	MaxAttempts        int
	BaseRetryDelay     time.Duration
	DrainTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProcessingInterval: 2 * time.Second,
		MaxAttempts:        3,
		BaseRetryDelay:     5 * time.Second,
		DrainTimeout:       5 * time.Second,
	}
}

// Relay is the C3 Message Relay component: one process-wide queue, one
// cooperative processing loop, one RWMutex.
type Relay struct {
	mu sync.RWMutex

	cfg       Config
	validator *message.Validator
	source    chainadapter.Adapter
	destination chainadapter.Adapter
	bus       *events.Bus
	logger    *log.Logger

	queue map[string]*QueuedMessage

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Relay. validator is used to reject malformed messages
// at enqueue time; source/destination are the two chain adapters messages
// are dispatched to depending on their Target.
func New(cfg Config, validator *message.Validator, source, destination chainadapter.Adapter, bus *events.Bus) *Relay {
	return &Relay{
		cfg:         cfg,
		validator:   validator,
		source:      source,
		destination: destination,
		bus:         bus,
		logger:      log.New(log.Writer(), "[Relay] ", log.LstdFlags),
		queue:       make(map[string]*QueuedMessage),
	}
}

// Start begins the processing loop. Idempotent: a second Start on an
// already-running relay is a no-op.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true

	go r.run(ctx)
	r.logger.Printf("started (interval=%s, max_attempts=%d)", r.cfg.ProcessingInterval, r.cfg.MaxAttempts)
}

// Stop drains in-flight RELAYING messages to DELIVERED or RETRY within
// DrainTimeout and halts the loop. Idempotent.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	select {
	case <-r.doneCh:
	case <-time.After(r.cfg.DrainTimeout):
		r.logger.Printf("stop timed out waiting for drain after %s", r.cfg.DrainTimeout)
	}
	r.logger.Println("stopped")
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.processTick(ctx)
		}
	}
}

// Enqueue validates msg via the configured Validator and appends it to the
// queue in state PENDING. Returns the assigned queued-id.
func (r *Relay) Enqueue(msg *message.Message, target Target) (string, *message.Error) {
	if err := r.validator.Validate(msg); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	qm := &QueuedMessage{
		QueuedID:  message.NewMessageID("qmsg"),
		Message:   msg,
		Target:    target,
		State:     StatePending,
		CreatedAt: time.Now(),
		NextRetry: time.Now(),
	}
	r.queue[qm.QueuedID] = qm
	return qm.QueuedID, nil
}

// Status returns a copy of the queued message, or nil if unknown.
func (r *Relay) Status(queuedID string) *QueuedMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qm, ok := r.queue[queuedID]
	if !ok {
		return nil
	}
	cp := *qm
	return &cp
}

// Stats summarizes the current queue contents.
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	var totalDeliveryMS float64
	var deliveredCount int
	for _, qm := range r.queue {
		s.Total++
		switch qm.State {
		case StatePending:
			s.Pending++
		case StateDelivered:
			s.Delivered++
			totalDeliveryMS += float64(qm.LastAttempt.Sub(qm.CreatedAt).Milliseconds())
			deliveredCount++
		case StateFailed:
			s.Failed++
		case StateRetry:
			s.Retry++
		}
	}
	if deliveredCount > 0 {
		s.AvgDeliveryMS = totalDeliveryMS / float64(deliveredCount)
	}
	return s
}

// Cleanup removes terminal (DELIVERED, FAILED) entries older than
// olderThan and returns how many were removed.
func (r *Relay) Cleanup(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, qm := range r.queue {
		if (qm.State == StateDelivered || qm.State == StateFailed) && qm.CreatedAt.Before(cutoff) {
			delete(r.queue, id)
			removed++
		}
	}
	return removed
}

// processTick runs one cooperative processing cycle: select due messages
// oldest-first, dispatch each, and resolve to DELIVERED, RETRY, or FAILED.
func (r *Relay) processTick(ctx context.Context) {
	due := r.dueMessages()
	for _, qm := range due {
		r.process(ctx, qm)
	}
}

func (r *Relay) dueMessages() []*QueuedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var due []*QueuedMessage
	for _, qm := range r.queue {
		if (qm.State == StatePending || qm.State == StateRetry) && !qm.NextRetry.After(now) {
			qm.State = StateRelaying
			qm.Attempts++
			qm.LastAttempt = now
			due = append(due, qm)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due
}

func (r *Relay) adapterFor(target Target) chainadapter.Adapter {
	if target == TargetSource {
		return r.source
	}
	return r.destination
}

func (r *Relay) process(ctx context.Context, qm *QueuedMessage) {
	adapter := r.adapterFor(qm.Target)

	txID, err := adapter.Submit(ctx, qm.Message)
	var ok bool
	if err == nil {
		ok, err = adapter.Verify(ctx, txID)
	}

	var evt events.Event

	r.mu.Lock()
	switch {
	case err == nil && ok:
		qm.State = StateDelivered
		evt = events.Event{Kind: events.MessageDelivered, QueuedID: qm.QueuedID}
	default:
		if err != nil {
			qm.LastError = err.Error()
		} else {
			qm.LastError = "adapter verify returned false"
		}
		if qm.Attempts >= r.cfg.MaxAttempts {
			qm.State = StateFailed
			evt = events.Event{Kind: events.MessageFailed, QueuedID: qm.QueuedID, Detail: qm.LastError}
		} else {
			qm.State = StateRetry
			qm.NextRetry = time.Now().Add(time.Duration(qm.Attempts) * r.cfg.BaseRetryDelay)
			evt = events.Event{Kind: events.MessageRetry, QueuedID: qm.QueuedID, Detail: qm.LastError}
		}
	}
	r.mu.Unlock()

	r.bus.Publish(evt)
}
