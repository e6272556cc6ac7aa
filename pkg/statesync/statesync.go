package statesync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/swapcoordinator/pkg/chainadapter"
	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/message"
)

// maxAttentionRetries bounds how many retries a FAILED order may still
// have remaining before query_requiring_attention stops surfacing it;
// there's no dedicated automatic-retry path for FAILED orders today, so
// this only affects which orders an operator is nudged to look at.
const maxAttentionRetries = 3

// Config holds StateSync's tunables, sourced from pkg/config.
type Config struct {
	FinalityCheckInterval time.Duration
	SrcConfirmations      uint32
	DstConfirmations      uint32
	CleanupAge            time.Duration
}

func DefaultConfig() Config {
	return Config{
		FinalityCheckInterval: 10 * time.Second,
		SrcConfirmations:      12,
		DstConfirmations:      5,
		CleanupAge:            24 * time.Hour,
	}
}

// StateSync is the C4 component: one map of tracked orders, one RWMutex,
// one finality-watcher loop.
type StateSync struct {
	mu sync.RWMutex

	cfg         Config
	kv          KV
	source      chainadapter.Adapter
	destination chainadapter.Adapter
	bus         *events.Bus
	logger      *log.Logger

	orders map[string]*TrackedOrder

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a StateSync component. kv may be nil for an in-memory
// only instance (useful in tests).
func New(cfg Config, kv KV, source, destination chainadapter.Adapter, bus *events.Bus) *StateSync {
	return &StateSync{
		cfg:         cfg,
		kv:          kv,
		source:      source,
		destination: destination,
		bus:         bus,
		logger:      log.New(log.Writer(), "[StateSync] ", log.LstdFlags),
		orders:      make(map[string]*TrackedOrder),
	}
}

// Load restores tracked orders persisted from a prior process into memory.
// Call it once before Start, after construction; on a fresh kv (or a nil
// one) it is a no-op.
func (s *StateSync) Load() error {
	restored, err := loadAllTrackedOrders(s.kv)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range restored {
		s.orders[id] = t
	}
	s.logger.Printf("restored %d tracked orders from persisted state", len(restored))
	return nil
}

// Start begins the finality watcher loop. Idempotent.
func (s *StateSync) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	go s.run(ctx)
	s.logger.Printf("started (interval=%s)", s.cfg.FinalityCheckInterval)
}

// Stop halts the finality watcher loop. Idempotent.
func (s *StateSync) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	<-s.doneCh
	s.logger.Println("stopped")
}

func (s *StateSync) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.FinalityCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkFinality(ctx)
			s.sweepExpired()
		}
	}
}

// Track records a new order in PENDING.
func (s *StateSync) Track(info OrderInfo) *TrackedOrder {
	now := time.Now()
	t := &TrackedOrder{
		OrderID:   info.OrderID,
		Direction: info.Direction,
		Hashlock:  info.Hashlock,
		Timelock:  info.Timelock,
		Amount:    info.Amount,
		Initiator: info.Initiator,
		Recipient: info.Recipient,
		State:     StatePending,
		ExpiresAt: time.Unix(info.Timelock, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.orders[t.OrderID] = t
	_ = saveTrackedOrder(s.kv, t)
	s.mu.Unlock()

	s.bus.Publish(events.Event{Kind: events.OrderCreated, OrderID: t.OrderID, Status: string(StatePending)})
	return t
}

// ChainUpdate is the input to UpdateChainInfo.
type ChainUpdate struct {
	TxHash   string
	Block    uint64
	LogIndex uint32
	Status   ChainTxStatus
}

// UpdateChainInfo merges a chain observation into the tracked order and
// advances cross-chain state per the direction-specific escrow rules.
func (s *StateSync) UpdateChainInfo(orderID string, chain Chain, upd ChainUpdate) *message.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.orders[orderID]
	if !ok {
		return message.New(message.CodeOrderNotFound, "no tracked order with that id")
	}

	record := &t.Source
	if chain == ChainDestination {
		record = &t.Destination
	}
	record.TxHash = upd.TxHash
	record.Block = upd.Block
	record.LogIndex = upd.LogIndex
	record.Status = upd.Status

	s.advanceEscrowState(t, chain, upd.Status)
	t.UpdatedAt = time.Now()
	_ = saveTrackedOrder(s.kv, t)
	return nil
}

func (s *StateSync) advanceEscrowState(t *TrackedOrder, chain Chain, status ChainTxStatus) {
	if status != ChainTxConfirmed {
		return
	}

	switch t.Direction {
	case DirectionSrcToDst:
		if chain == ChainSource && t.State == StatePending {
			t.State = StateEscrowedSrc
		} else if chain == ChainDestination && t.State == StateEscrowedSrc {
			t.State = StateEscrowedBoth
		}
	case DirectionDstToSrc:
		if chain == ChainDestination && t.State == StatePending {
			t.State = StateEscrowedDst
		} else if chain == ChainSource && t.State == StateEscrowedDst {
			t.State = StateEscrowedBoth
		}
	}
}

// RecordFulfillment verifies secret against the stored hashlock and, on a
// match, transitions the order to FULFILLED.
func (s *StateSync) RecordFulfillment(orderID string, secret []byte, txHash string, chain Chain) *message.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.orders[orderID]
	if !ok {
		return message.New(message.CodeOrderNotFound, "no tracked order with that id")
	}
	if !message.VerifySecret(secret, t.Hashlock) {
		return message.New(message.CodeInvalidSecret, "revealed secret does not match stored hashlock")
	}

	t.RevealedSecret = message.Hashlock(secret) // store the hash, not the raw secret, once revealed upstream has it
	t.State = StateFulfilled
	t.UpdatedAt = time.Now()
	_ = saveTrackedOrder(s.kv, t)
	return nil
}

// RecordRefund transitions the order to REFUNDED_{chain}, or
// REFUNDED_BOTH if the other chain was already refunded.
func (s *StateSync) RecordRefund(orderID string, txHash string, chain Chain) *message.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.orders[orderID]
	if !ok {
		return message.New(message.CodeOrderNotFound, "no tracked order with that id")
	}

	otherAlreadyRefunded := (chain == ChainSource && t.State == StateRefundedDst) ||
		(chain == ChainDestination && t.State == StateRefundedSrc)

	if otherAlreadyRefunded {
		t.State = StateRefundedBoth
	} else if chain == ChainSource {
		t.State = StateRefundedSrc
	} else {
		t.State = StateRefundedDst
	}
	t.UpdatedAt = time.Now()
	_ = saveTrackedOrder(s.kv, t)
	return nil
}

// Get returns a copy of the tracked order, or nil if unknown.
func (s *StateSync) Get(orderID string) *TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// QueryByState returns every tracked order currently in state.
func (s *StateSync) QueryByState(state CrossChainState) []*TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TrackedOrder
	for _, t := range s.orders {
		if t.State == state {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// QueryExpired returns non-terminal orders past their ExpiresAt.
func (s *StateSync) QueryExpired() []*TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*TrackedOrder
	for _, t := range s.orders {
		if !t.State.terminal() && now.After(t.ExpiresAt) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// QueryRequiringAttention returns orders that are expired and
// non-terminal, PENDING for over an hour, or FAILED with retries
// remaining.
func (s *StateSync) QueryRequiringAttention() []*TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*TrackedOrder
	for _, t := range s.orders {
		switch {
		case !t.State.terminal() && now.After(t.ExpiresAt):
			out = append(out, copyOf(t))
		case t.State == StatePending && now.Sub(t.CreatedAt) > time.Hour:
			out = append(out, copyOf(t))
		case t.State == StateFailed && t.RetryCount < maxAttentionRetries:
			out = append(out, copyOf(t))
		}
	}
	return out
}

func copyOf(t *TrackedOrder) *TrackedOrder {
	cp := *t
	return &cp
}

// Cleanup removes terminal tracked orders older than the configured age.
func (s *StateSync) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.cfg.CleanupAge)
	removed := 0
	for id, t := range s.orders {
		if t.State.terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.orders, id)
			removed++
		}
	}
	return removed
}

// checkFinality scans non-finalized orders and marks each chain finalized
// once its adapter reports enough confirmations.
func (s *StateSync) checkFinality(ctx context.Context) {
	s.mu.Lock()
	candidates := make([]*TrackedOrder, 0)
	for _, t := range s.orders {
		if !t.SrcFinalized || !t.DstFinalized {
			candidates = append(candidates, t)
		}
	}
	s.mu.Unlock()

	for _, t := range candidates {
		s.checkOneFinality(ctx, t)
	}
}

func (s *StateSync) checkOneFinality(ctx context.Context, t *TrackedOrder) {
	if !t.SrcFinalized && t.Source.TxHash != "" {
		conf, err := s.source.Confirmations(ctx, t.Source.TxHash)
		if err == nil && conf >= s.cfg.SrcConfirmations {
			s.mu.Lock()
			if live, ok := s.orders[t.OrderID]; ok {
				live.SrcFinalized = true
				_ = saveTrackedOrder(s.kv, live)
			}
			s.mu.Unlock()
			s.bus.Publish(events.Event{Kind: events.SourceFinalized, OrderID: t.OrderID})
		}
	}
	if !t.DstFinalized && t.Destination.TxHash != "" {
		conf, err := s.destination.Confirmations(ctx, t.Destination.TxHash)
		if err == nil && conf >= s.cfg.DstConfirmations {
			s.mu.Lock()
			if live, ok := s.orders[t.OrderID]; ok {
				live.DstFinalized = true
				_ = saveTrackedOrder(s.kv, live)
			}
			s.mu.Unlock()
			s.bus.Publish(events.Event{Kind: events.DestinationFinalized, OrderID: t.OrderID})
		}
	}
}

// sweepExpired moves orders past ExpiresAt and not yet terminal into
// FAILED, per the finality watcher's second pass.
func (s *StateSync) sweepExpired() {
	now := time.Now()
	var timedOut []string

	s.mu.Lock()
	for id, t := range s.orders {
		if !t.State.terminal() && now.After(t.ExpiresAt) {
			t.State = StateFailed
			t.LastError = "timelock reached"
			t.UpdatedAt = now
			_ = saveTrackedOrder(s.kv, t)
			timedOut = append(timedOut, id)
		}
	}
	s.mu.Unlock()

	for _, id := range timedOut {
		s.bus.Publish(events.Event{Kind: events.TimelockReached, OrderID: id})
	}
}
