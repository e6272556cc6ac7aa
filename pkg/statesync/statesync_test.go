package statesync

import (
	"context"
	"testing"
	"time"

	"github.com/certen/swapcoordinator/pkg/chainadapter"
	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/message"
)

type fakeAdapter struct {
	confirmations uint32
}

func (f *fakeAdapter) Submit(ctx context.Context, msg *message.Message) (string, error) {
	return "0xtx", nil
}
func (f *fakeAdapter) Verify(ctx context.Context, txID string) (bool, error) { return true, nil }
func (f *fakeAdapter) Confirmations(ctx context.Context, txID string) (uint32, error) {
	return f.confirmations, nil
}
func (f *fakeAdapter) Subscribe(ctx context.Context, filter chainadapter.EventFilter, sink chainadapter.Sink) error {
	return nil
}
func (f *fakeAdapter) PollSince(ctx context.Context, cursor string) ([]chainadapter.Event, string, error) {
	return nil, cursor, nil
}

func newTestStateSync(src, dst *fakeAdapter) *StateSync {
	return New(DefaultConfig(), nil, src, dst, events.NewBus())
}

func TestTrackThenEscrowBothSidesSrcToDst(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	info := OrderInfo{OrderID: "order-1", Direction: DirectionSrcToDst, Hashlock: message.Hashlock([]byte("s")), Timelock: time.Now().Add(time.Hour).Unix()}
	s.Track(info)

	if err := s.UpdateChainInfo("order-1", ChainSource, ChainUpdate{TxHash: "0xsrc", Status: ChainTxConfirmed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Get("order-1").State; got != StateEscrowedSrc {
		t.Fatalf("expected ESCROWED_SRC, got %s", got)
	}

	if err := s.UpdateChainInfo("order-1", ChainDestination, ChainUpdate{TxHash: "0xdst", Status: ChainTxConfirmed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Get("order-1").State; got != StateEscrowedBoth {
		t.Fatalf("expected ESCROWED_BOTH, got %s", got)
	}
}

func TestUpdateChainInfoUnknownOrderFails(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	err := s.UpdateChainInfo("missing", ChainSource, ChainUpdate{Status: ChainTxConfirmed})
	if err == nil || err.Code != message.CodeOrderNotFound {
		t.Fatalf("expected ORDER_NOT_FOUND, got %v", err)
	}
}

// Testable property 1: every order reaching COMPLETED (here, FULFILLED)
// has a valid secret-hashlock pair recorded.
func TestRecordFulfillmentRequiresMatchingSecret(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	secret := []byte("the-secret")
	hl := message.Hashlock(secret)
	s.Track(OrderInfo{OrderID: "order-1", Hashlock: hl, Timelock: time.Now().Add(time.Hour).Unix()})

	if err := s.RecordFulfillment("order-1", []byte("wrong"), "0xtx", ChainDestination); err == nil {
		t.Fatalf("expected INVALID_SECRET for mismatched secret")
	}
	if s.Get("order-1").State == StateFulfilled {
		t.Fatalf("mismatched secret must not transition to FULFILLED")
	}

	if err := s.RecordFulfillment("order-1", secret, "0xtx", ChainDestination); err != nil {
		t.Fatalf("unexpected error on matching secret: %v", err)
	}
	if s.Get("order-1").State != StateFulfilled {
		t.Fatalf("expected FULFILLED after matching secret")
	}
}

func TestRecordRefundBothSidesReachesRefundedBoth(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	s.Track(OrderInfo{OrderID: "order-1", Timelock: time.Now().Add(time.Hour).Unix()})

	s.RecordRefund("order-1", "0xsrc", ChainSource)
	if got := s.Get("order-1").State; got != StateRefundedSrc {
		t.Fatalf("expected REFUNDED_SRC, got %s", got)
	}

	s.RecordRefund("order-1", "0xdst", ChainDestination)
	if got := s.Get("order-1").State; got != StateRefundedBoth {
		t.Fatalf("expected REFUNDED_BOTH, got %s", got)
	}
}

// Testable property 2: every order transitioning to EXPIRED (here FAILED
// via the finality watcher's timelock sweep) has deadline < transition
// time.
func TestSweepExpiredMarksPastTimelockAsFailed(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	past := time.Now().Add(-time.Second).Unix()
	s.Track(OrderInfo{OrderID: "order-1", Timelock: past})

	s.sweepExpired()

	got := s.Get("order-1")
	if got.State != StateFailed {
		t.Fatalf("expected FAILED after timelock sweep, got %s", got.State)
	}
	if !got.ExpiresAt.Before(got.UpdatedAt) {
		t.Fatalf("expected ExpiresAt before the transition time")
	}
}

func TestSweepExpiredLeavesTerminalOrdersAlone(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	past := time.Now().Add(-time.Second).Unix()
	s.Track(OrderInfo{OrderID: "order-1", Timelock: past})
	s.RecordRefund("order-1", "0xsrc", ChainSource)
	s.RecordRefund("order-1", "0xdst", ChainDestination)

	s.sweepExpired()

	if got := s.Get("order-1").State; got != StateRefundedBoth {
		t.Fatalf("expected terminal state to be left alone, got %s", got)
	}
}

func TestCheckFinalityMarksFinalizedAtThreshold(t *testing.T) {
	src := &fakeAdapter{confirmations: 12}
	dst := &fakeAdapter{confirmations: 4}
	s := newTestStateSync(src, dst)
	s.Track(OrderInfo{OrderID: "order-1", Timelock: time.Now().Add(time.Hour).Unix()})
	s.UpdateChainInfo("order-1", ChainSource, ChainUpdate{TxHash: "0xsrc", Status: ChainTxConfirmed})
	s.UpdateChainInfo("order-1", ChainDestination, ChainUpdate{TxHash: "0xdst", Status: ChainTxConfirmed})

	s.checkFinality(context.Background())

	got := s.Get("order-1")
	if !got.SrcFinalized {
		t.Fatalf("expected source finalized at 12 confirmations")
	}
	if got.DstFinalized {
		t.Fatalf("destination should not be finalized below its threshold of 5")
	}
}

func TestCleanupRemovesOldTerminalOrdersOnly(t *testing.T) {
	s := newTestStateSync(&fakeAdapter{}, &fakeAdapter{})
	s.Track(OrderInfo{OrderID: "order-1", Timelock: time.Now().Add(time.Hour).Unix()})
	s.RecordRefund("order-1", "0xsrc", ChainSource)
	s.RecordRefund("order-1", "0xdst", ChainDestination)
	s.orders["order-1"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	if removed := s.Cleanup(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if s.Get("order-1") != nil {
		t.Fatalf("expected cleaned-up order to be gone")
	}
}
