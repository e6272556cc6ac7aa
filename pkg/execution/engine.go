package execution

import (
	"context"
	"crypto/ecdsa"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/certen/swapcoordinator/pkg/chainadapter"
	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/message"
	"github.com/certen/swapcoordinator/pkg/order"
	"github.com/certen/swapcoordinator/pkg/relay"
	"github.com/certen/swapcoordinator/pkg/statesync"
)

// SettlementFunc submits the on-chain transaction that moves funds for a
// matched pair of local orders. Injected so this package never dials a
// chain RPC itself, mirroring order.GasPriceProvider and
// chainadapter's TxSubmitter.
type SettlementFunc func(ctx context.Context, target, match *order.Entry, matchedAmount, matchedPrice string) (txHash string, err error)

// RefundFunc submits the on-chain refund transaction for a timed-out HTLC.
type RefundFunc func(ctx context.Context, p *PendingExecution) (txHash string, err error)

// Engine is the C6 Execution Engine: local order matching and cross-chain
// execution orchestration, one registry of in-flight attempts, one mutex.
// A PendingExecution's presence in the registry is the sole guard against
// two concurrent attempts executing the same order.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	orders *order.Manager
	relay  *relay.Relay
	sync   *statesync.StateSync
	source chainadapter.Adapter
	bus    *events.Bus
	logger *log.Logger

	// relaySigner produces the coordinator signature attached to every
	// cross-chain message this engine builds, required by message.Validator.
	relaySigner *ecdsa.PrivateKey

	settle SettlementFunc
	refund RefundFunc

	pending map[string]*PendingExecution

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs an Engine. source is the adapter cross-chain escrow
// transactions are submitted through; settle/refund are the injected
// boundaries for local-match settlement and HTLC refund submission.
// relaySigner signs every outbound cross-chain message's header.
func New(cfg Config, orders *order.Manager, rel *relay.Relay, ss *statesync.StateSync, source chainadapter.Adapter, bus *events.Bus, relaySigner *ecdsa.PrivateKey, settle SettlementFunc, refund RefundFunc) *Engine {
	return &Engine{
		cfg:         cfg,
		orders:      orders,
		relay:       rel,
		sync:        ss,
		source:      source,
		bus:         bus,
		logger:      log.New(log.Writer(), "[Execution] ", log.LstdFlags),
		relaySigner: relaySigner,
		settle:      settle,
		refund:      refund,
		pending:     make(map[string]*PendingExecution),
	}
}

// Start begins the matching/sweep loop. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.running = true
	go e.run(ctx)
	e.logger.Printf("started (interval=%s, max_per_tick=%d)", e.cfg.TickInterval, e.cfg.MaxPerTick)
}

// Stop halts the loop. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	close(e.stopCh)
	e.running = false
	e.mu.Unlock()

	<-e.doneCh
	e.logger.Println("stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick processes up to MaxPerTick eligible SIGNED orders for local
// matching and sweeps any PendingExecution past its timelock. An order is
// eligible only if it has sat at least MinOrderAge, its age has not yet
// exceeded MaxOrderAge, and its maker amount is at least MinOrderSize.
func (e *Engine) tick(ctx context.Context) {
	signed := e.orders.ByStatus(order.StatusSigned)
	now := time.Now()
	minSize := bigOrZero(e.cfg.MinOrderSize)

	processed := 0
	for _, entry := range signed {
		if processed >= e.cfg.MaxPerTick {
			break
		}
		age := now.Sub(entry.CreatedAt)
		if age < e.cfg.MinOrderAge {
			continue
		}
		if e.cfg.MaxOrderAge > 0 && age > e.cfg.MaxOrderAge {
			continue
		}
		if bigOrZero(entry.Signed.Order.MakerAmount).Cmp(minSize) < 0 {
			continue
		}
		processed++

		if entry.Signed.Order.HTLC != nil {
			if err := e.ExecuteCrossChain(ctx, entry.Signed.OrderHash); err != nil && err.Code != message.CodeOrderAlreadyInExecution {
				e.logger.Printf("cross-chain execute %s: %v", entry.Signed.OrderHash, err)
			}
			continue
		}
		if err := e.ExecuteLocal(ctx, entry.Signed.OrderHash, signed); err != nil && err.Code != message.CodeOrderAlreadyInExecution {
			e.logger.Printf("local execute %s: %v", entry.Signed.OrderHash, err)
		}
	}

	e.sweepTimedOutPending()
}

// reserve registers orderID as in-flight, failing with
// ORDER_ALREADY_IN_EXECUTION if an attempt is already running - the
// concurrency guard backing testable property 5.
func (e *Engine) reserve(orderID string) *message.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.pending[orderID]; exists {
		return message.New(message.CodeOrderAlreadyInExecution, "an execution attempt for this order is already in flight")
	}
	now := time.Now()
	e.pending[orderID] = &PendingExecution{OrderID: orderID, Status: PendingRelaying, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (e *Engine) release(orderID string) {
	e.mu.Lock()
	delete(e.pending, orderID)
	e.mu.Unlock()
}

func (e *Engine) getPending(orderID string) *PendingExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[orderID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (e *Engine) updatePending(orderID string, fn func(p *PendingExecution)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pending[orderID]; ok {
		fn(p)
		p.UpdatedAt = time.Now()
	}
}

// ExecuteLocal matches target against candidates and, if a compatible
// counter-order exists, settles both on the source chain. candidates
// ordinarily comes from orders.ByStatus(StatusSigned); callers may pass a
// pre-fetched slice to avoid re-scanning the whole book per order.
func (e *Engine) ExecuteLocal(ctx context.Context, orderHash string, candidates []*order.Entry) *message.Error {
	if err := e.reserve(orderHash); err != nil {
		return err
	}
	defer e.release(orderHash)

	target := e.orders.Get(orderHash)
	if target == nil {
		return message.New(message.CodeOrderNotFound, "no order with that hash")
	}

	matches := FindMatches(target, candidates, e.cfg.MaxSlippage)
	if len(matches) == 0 {
		return nil
	}
	best := matches[0]

	if err := e.reserve(best.Signed.OrderHash); err != nil {
		return nil // the counter-order is already being handled elsewhere this tick
	}
	defer e.release(best.Signed.OrderHash)

	// candidates may be stale by the time we get here (a prior match this
	// same tick could have consumed best already); re-check its live status.
	best = e.orders.Get(best.Signed.OrderHash)
	if best == nil || best.Status != order.StatusSigned {
		return nil
	}

	if uerr := e.orders.UpdateStatus(target.Signed.OrderHash, order.StatusExecuting, "", nil); uerr != nil {
		return uerr
	}
	if uerr := e.orders.UpdateStatus(best.Signed.OrderHash, order.StatusExecuting, "", nil); uerr != nil {
		e.orders.UpdateStatus(target.Signed.OrderHash, order.StatusSigned, "", nil)
		return uerr
	}

	matchedAmount := minDecimal(target.Signed.Order.MakerAmount, best.Signed.Order.MakerAmount)
	matchedPrice := meanPrice(&target.Signed.Order, &best.Signed.Order)

	txHash, err := e.settle(ctx, target, best, matchedAmount, matchedPrice)
	if err != nil {
		e.orders.UpdateStatus(target.Signed.OrderHash, order.StatusSigned, "", err)
		e.orders.UpdateStatus(best.Signed.OrderHash, order.StatusSigned, "", err)
		return message.Newf(message.CodeInvalidParameters, "settle match: %v", err)
	}

	e.orders.UpdateStatus(target.Signed.OrderHash, order.StatusCompleted, txHash, nil)
	e.orders.UpdateStatus(best.Signed.OrderHash, order.StatusCompleted, txHash, nil)
	e.bus.Publish(events.Event{Kind: events.OrderExecuted, OrderID: target.Signed.OrderHash, TxHash: txHash})
	e.bus.Publish(events.Event{Kind: events.OrderExecuted, OrderID: best.Signed.OrderHash, TxHash: txHash})
	return nil
}

// ExecuteCrossChain submits orderHash's source-chain escrow transaction
// and hands the resulting SRC_TO_DST_ESCROW message to the relay for
// delivery to the destination chain. It returns as soon as submission
// succeeds; completion is event-driven via HandleFulfillment or
// CancelExecution.
func (e *Engine) ExecuteCrossChain(ctx context.Context, orderHash string) *message.Error {
	if err := e.reserve(orderHash); err != nil {
		return err
	}

	entry := e.orders.Get(orderHash)
	if entry == nil {
		e.release(orderHash)
		return message.New(message.CodeOrderNotFound, "no order with that hash")
	}
	if entry.Signed.Order.HTLC == nil {
		e.release(orderHash)
		return message.New(message.CodeUnsupportedToken, "order carries no HTLC profile")
	}
	htlc := entry.Signed.Order.HTLC

	if uerr := e.orders.UpdateStatus(orderHash, order.StatusExecuting, "", nil); uerr != nil {
		e.release(orderHash)
		return uerr
	}

	msg, merr := e.buildEscrowMessage(entry)
	if merr != nil {
		e.orders.UpdateStatus(orderHash, order.StatusSigned, "", nil)
		e.release(orderHash)
		return message.Newf(message.CodeInvalidFormat, "build escrow message: %v", merr)
	}
	txHash, err := e.source.Submit(ctx, msg)
	if err != nil {
		e.orders.UpdateStatus(orderHash, order.StatusSigned, "", err)
		e.release(orderHash)
		return message.Newf(message.CodeInvalidParameters, "submit source escrow: %v", err)
	}

	// The source tx hash only exists once Submit returns; the relay's
	// validator requires it, so fill it in and re-sign before enqueueing.
	msg.SrcToDstEscrow.SourceTxHash = txHash
	if sig, serr := message.Sign(msg, e.relaySigner); serr == nil {
		msg.Header.Signature = sig
	}

	e.updatePending(orderHash, func(p *PendingExecution) {
		p.SourceChainTag = "source"
		p.TargetChainTag = "destination"
		p.SecretHash = htlc.Hashlock
		p.Timelock = htlc.Timelock
		p.SourceTxHash = txHash
	})

	chainStatus := statesync.ChainTxPending
	if ok, verr := e.source.Verify(ctx, txHash); verr == nil && ok {
		chainStatus = statesync.ChainTxConfirmed
	}

	e.sync.Track(statesync.OrderInfo{
		OrderID:   orderHash,
		Direction: statesync.DirectionSrcToDst,
		Hashlock:  htlc.Hashlock,
		Timelock:  htlc.Timelock,
		Amount:    entry.Signed.Order.MakerAmount,
		Initiator: entry.Signed.Order.Maker,
		Recipient: entry.Signed.Order.Receiver,
	})
	e.sync.UpdateChainInfo(orderHash, statesync.ChainSource, statesync.ChainUpdate{TxHash: txHash, Status: chainStatus})

	if _, rerr := e.relay.Enqueue(msg, relay.TargetDestination); rerr != nil {
		e.logger.Printf("enqueue escrow message for %s: %v", orderHash, rerr)
	}

	e.bus.Publish(events.Event{Kind: events.OrderEvent, OrderID: orderHash, Status: string(order.StatusExecuting), TxHash: txHash})
	return nil
}

// HandleFulfillment verifies a revealed secret against the order's pending
// execution and, on a match, completes the cross-chain swap; on a
// mismatch it fails the order and reports CryptoMismatch.
func (e *Engine) HandleFulfillment(orderID string, secret []byte, targetTxHash string) *message.Error {
	p := e.getPending(orderID)
	if p == nil {
		return message.New(message.CodeOrderNotFound, "no pending execution for that order")
	}

	if !message.VerifySecret(secret, p.SecretHash) {
		e.updatePending(orderID, func(p *PendingExecution) { p.Status = PendingFailed })
		e.orders.UpdateStatus(orderID, order.StatusFailed, targetTxHash, nil)
		e.bus.Publish(events.Event{Kind: events.CryptoMismatch, OrderID: orderID, TxHash: targetTxHash})
		return message.New(message.CodeInvalidSecret, "revealed secret does not match the order's hashlock")
	}

	if serr := e.sync.RecordFulfillment(orderID, secret, targetTxHash, statesync.ChainDestination); serr != nil {
		return serr
	}
	e.updatePending(orderID, func(p *PendingExecution) {
		p.Status = PendingCompleted
		p.RevealedSecret = message.Hashlock(secret)
		p.TargetTxHash = targetTxHash
	})
	e.release(orderID)

	if uerr := e.orders.UpdateStatus(orderID, order.StatusCompleted, targetTxHash, nil); uerr != nil {
		return uerr
	}
	e.bus.Publish(events.Event{Kind: events.CrossChainExecutionCompleted, OrderID: orderID, TxHash: targetTxHash})
	return nil
}

// CancelExecution submits a refund transaction for orderID once its
// timelock has passed; it is UNAUTHORIZED to refund before then.
func (e *Engine) CancelExecution(ctx context.Context, orderID string) *message.Error {
	p := e.getPending(orderID)
	if p == nil {
		return message.New(message.CodeOrderNotFound, "no pending execution for that order")
	}
	if time.Now().Unix() < p.Timelock {
		return message.New(message.CodeUnauthorized, "timelock has not yet been reached")
	}

	txHash, err := e.refund(ctx, p)
	if err != nil {
		return message.Newf(message.CodeInvalidParameters, "submit refund: %v", err)
	}

	e.sync.RecordRefund(orderID, txHash, statesync.ChainSource)
	e.orders.UpdateStatus(orderID, order.StatusCancelled, txHash, nil)
	e.release(orderID)
	return nil
}

// sweepTimedOutPending moves every PENDING execution still in "relaying"
// past its timelock into FAILED, emitting orderExecutionTimeout.
func (e *Engine) sweepTimedOutPending() {
	now := time.Now().Unix()

	e.mu.Lock()
	var timedOut []string
	for id, p := range e.pending {
		if p.Status == PendingRelaying && p.Timelock > 0 && now >= p.Timelock {
			p.Status = PendingFailed
			timedOut = append(timedOut, id)
		}
	}
	for _, id := range timedOut {
		delete(e.pending, id)
	}
	e.mu.Unlock()

	for _, id := range timedOut {
		e.orders.UpdateStatus(id, order.StatusFailed, "", nil)
		e.bus.Publish(events.Event{Kind: events.OrderExecutionTimeout, OrderID: id})
	}
}

// buildEscrowMessage constructs the SRC_TO_DST_ESCROW message for entry
// and attaches the coordinator's relayer signature over its canonical
// hash. SourceTxHash is left empty here; ExecuteCrossChain fills it in
// after the source submit and re-signs before handing the message to the
// relay's Validate-on-enqueue check.
func (e *Engine) buildEscrowMessage(entry *order.Entry) (*message.Message, error) {
	htlc := entry.Signed.Order.HTLC
	now := time.Now()
	msg := &message.Message{
		Header: message.Header{
			Discriminator:   message.DiscriminatorSrcToDstEscrow,
			ProtocolVersion: message.ProtocolVersion,
			MessageID:       message.NewMessageID("msg"),
			Timestamp:       now.UnixMilli(),
		},
		SrcToDstEscrow: &message.SrcToDstEscrowBody{
			OrderID:              entry.Signed.OrderHash,
			SenderAddress:        entry.Signed.Order.Maker,
			DestinationRecipient: entry.Signed.Order.Receiver,
			Amount:               entry.Signed.Order.MakerAmount,
			SourceToken:          entry.Signed.Order.SourceAsset,
			DestinationTokenMaster: entry.Signed.Order.DestAsset,
			Hashlock:             htlc.Hashlock,
			Timelock:             htlc.Timelock,
		},
	}

	sig, err := message.Sign(msg, e.relaySigner)
	if err != nil {
		return nil, err
	}
	msg.Header.Signature = sig
	return msg, nil
}

// bigOrZero parses s as a decimal big.Int, treating an empty or malformed
// string as zero so an unset MinOrderSize never excludes every order.
func bigOrZero(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func minDecimal(a, b string) string {
	ai, _ := new(big.Int).SetString(a, 10)
	bi, _ := new(big.Int).SetString(b, 10)
	if ai == nil || bi == nil {
		return "0"
	}
	if ai.Cmp(bi) <= 0 {
		return ai.String()
	}
	return bi.String()
}

func meanPrice(a, b *order.Order) string {
	pa := price(a)
	pb := price(b)
	mean := new(big.Rat).Add(pa, pb)
	mean.Quo(mean, big.NewRat(2, 1))
	return mean.FloatString(8)
}
