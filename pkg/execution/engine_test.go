package execution

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/swapcoordinator/pkg/chainadapter"
	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/message"
	"github.com/certen/swapcoordinator/pkg/order"
	"github.com/certen/swapcoordinator/pkg/relay"
	"github.com/certen/swapcoordinator/pkg/statesync"
)

// fakeAdapter is a scriptable chainadapter.Adapter for engine tests.
type fakeAdapter struct {
	mu       sync.Mutex
	verifyOK bool
}

func (f *fakeAdapter) Submit(ctx context.Context, msg *message.Message) (string, error) {
	return "0xescrow", nil
}

func (f *fakeAdapter) Verify(ctx context.Context, txID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyOK, nil
}

func (f *fakeAdapter) Confirmations(ctx context.Context, txID string) (uint32, error) {
	return 0, nil
}

func (f *fakeAdapter) Subscribe(ctx context.Context, filter chainadapter.EventFilter, sink chainadapter.Sink) error {
	return nil
}

func (f *fakeAdapter) PollSince(ctx context.Context, cursor string) ([]chainadapter.Event, string, error) {
	return nil, cursor, nil
}

func testEngine(t *testing.T) (*Engine, *order.Manager, *events.Bus) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bus := events.NewBus()
	gasPrice := func(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }
	orders := order.New(order.Config{
		Domain:            order.Domain{Name: "SwapCoordinator", Version: "1", ChainID: 1, VerifyingContract: "0xVerifier"},
		DefaultTimelock:   2 * time.Hour,
		MinTimelock:       time.Hour,
		MaxTimelock:       7 * 24 * time.Hour,
		DefaultRelayerFee: "0",
	}, key, gasPrice, bus)

	validator := message.NewValidator(3600, 604800, "")
	source := &fakeAdapter{verifyOK: true}
	dest := &fakeAdapter{verifyOK: true}
	rel := relay.New(relay.DefaultConfig(), validator, source, dest, bus)
	ss := statesync.New(statesync.DefaultConfig(), nil, source, dest, bus)

	settle := func(ctx context.Context, target, match *order.Entry, matchedAmount, matchedPrice string) (string, error) {
		return "0xsettle", nil
	}
	refund := func(ctx context.Context, p *PendingExecution) (string, error) {
		return "0xrefund", nil
	}

	cfg := DefaultConfig()
	cfg.MinOrderAge = 0
	e := New(cfg, orders, rel, ss, source, bus, key, settle, refund)
	return e, orders, bus
}

func signAndAdd(t *testing.T, orders *order.Manager, intent order.Intent) *order.Entry {
	t.Helper()
	o, err := orders.Construct(intent)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	signed, serr := orders.Sign(o)
	if serr != nil {
		t.Fatalf("sign: %v", serr)
	}
	return orders.Add(signed)
}

// S1 - Local complementary match.
func TestExecuteLocalCompletesBothOrders(t *testing.T) {
	e, orders, bus := testEngine(t)

	var completed []string
	var mu sync.Mutex
	bus.Subscribe(events.OrderExecuted, func(ev events.Event) {
		mu.Lock()
		completed = append(completed, ev.OrderID)
		mu.Unlock()
	})

	a := signAndAdd(t, orders, order.Intent{
		Maker: "0xA", Receiver: "0xA", SourceAsset: "X", DestAsset: "Y",
		MakerAmount: "1", TakerAmount: "2", Deadline: time.Now().Add(time.Hour),
	})
	b := signAndAdd(t, orders, order.Intent{
		Maker: "0xB", Receiver: "0xB", SourceAsset: "Y", DestAsset: "X",
		MakerAmount: "2", TakerAmount: "1", Deadline: time.Now().Add(time.Hour),
	})

	candidates := []*order.Entry{a, b}
	if err := e.ExecuteLocal(context.Background(), a.Signed.OrderHash, candidates); err != nil {
		t.Fatalf("execute local: %v", err)
	}

	gotA := orders.Get(a.Signed.OrderHash)
	gotB := orders.Get(b.Signed.OrderHash)
	if gotA.Status != order.StatusCompleted || gotB.Status != order.StatusCompleted {
		t.Fatalf("expected both orders COMPLETED, got %s / %s", gotA.Status, gotB.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 2 {
		t.Fatalf("expected two orderExecuted events, got %d", len(completed))
	}
}

// S2 - Cross-chain happy path.
func TestCrossChainHappyPath(t *testing.T) {
	e, orders, bus := testEngine(t)

	var completedOrder string
	bus.Subscribe(events.CrossChainExecutionCompleted, func(ev events.Event) {
		completedOrder = ev.OrderID
	})

	entry := signAndAdd(t, orders, order.Intent{
		Maker: "0xMaker", Receiver: "0xReceiver", SourceAsset: "X", DestAsset: "Y",
		MakerAmount: "1000000000000000000", TakerAmount: "100000000000",
		Deadline:             time.Now().Add(time.Hour),
		DestinationRecipient: "EQsomewhereon5jL",
	})

	if err := e.ExecuteCrossChain(context.Background(), entry.Signed.OrderHash); err != nil {
		t.Fatalf("execute cross chain: %v", err)
	}

	pending := e.getPending(entry.Signed.OrderHash)
	if pending == nil || pending.SourceTxHash == "" {
		t.Fatalf("expected a pending execution with a source tx hash")
	}

	secret := entry.Signed.Order.HTLC.Secret()
	if err := e.HandleFulfillment(entry.Signed.OrderHash, secret, "0xdestfulfill"); err != nil {
		t.Fatalf("handle fulfillment: %v", err)
	}

	got := orders.Get(entry.Signed.OrderHash)
	if got.Status != order.StatusCompleted {
		t.Fatalf("expected order COMPLETED, got %s", got.Status)
	}
	if completedOrder != entry.Signed.OrderHash {
		t.Fatalf("expected crossChainExecutionCompleted for %s, got %s", entry.Signed.OrderHash, completedOrder)
	}
}

// S3 - Invalid-secret fulfillment.
func TestHandleFulfillmentRejectsWrongSecret(t *testing.T) {
	e, orders, bus := testEngine(t)

	var mismatched string
	bus.Subscribe(events.CryptoMismatch, func(ev events.Event) {
		mismatched = ev.OrderID
	})

	entry := signAndAdd(t, orders, order.Intent{
		Maker: "0xMaker", Receiver: "0xReceiver", SourceAsset: "X", DestAsset: "Y",
		MakerAmount: "1000", TakerAmount: "100",
		Deadline:             time.Now().Add(time.Hour),
		DestinationRecipient: "EQsomewhereon5jL",
	})

	if err := e.ExecuteCrossChain(context.Background(), entry.Signed.OrderHash); err != nil {
		t.Fatalf("execute cross chain: %v", err)
	}

	err := e.HandleFulfillment(entry.Signed.OrderHash, []byte("wrong-secret"), "0xbad")
	if err == nil || err.Code != message.CodeInvalidSecret {
		t.Fatalf("expected INVALID_SECRET, got %v", err)
	}

	got := orders.Get(entry.Signed.OrderHash)
	if got.Status != order.StatusFailed {
		t.Fatalf("expected order FAILED after secret mismatch, got %s", got.Status)
	}
	if mismatched != entry.Signed.OrderHash {
		t.Fatalf("expected cryptoMismatch event for %s", entry.Signed.OrderHash)
	}
}

// S6 - Concurrent execution guard: three simultaneous attempts on the same
// order resolve to exactly one proceeding and two rejected with
// ORDER_ALREADY_IN_EXECUTION.
func TestConcurrentExecuteGuardsAgainstDoubleExecution(t *testing.T) {
	e, orders, _ := testEngine(t)

	entry := signAndAdd(t, orders, order.Intent{
		Maker: "0xMaker", Receiver: "0xReceiver", SourceAsset: "X", DestAsset: "Y",
		MakerAmount: "1000", TakerAmount: "100",
		Deadline:             time.Now().Add(time.Hour),
		DestinationRecipient: "EQsomewhereon5jL",
	})

	var wg sync.WaitGroup
	results := make(chan *message.Error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- e.ExecuteCrossChain(context.Background(), entry.Signed.OrderHash)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
		} else if err.Code == message.CodeOrderAlreadyInExecution {
			rejected++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 2 {
		t.Fatalf("expected exactly one success and two rejections, got %d/%d", succeeded, rejected)
	}
}

// CancelExecution must reject refund attempts before the timelock and
// accept them after.
func TestCancelExecutionRespectsTimelock(t *testing.T) {
	e, orders, _ := testEngine(t)

	entry := signAndAdd(t, orders, order.Intent{
		Maker: "0xMaker", Receiver: "0xReceiver", SourceAsset: "X", DestAsset: "Y",
		MakerAmount: "1000", TakerAmount: "100",
		Deadline:             time.Now().Add(time.Hour),
		DestinationRecipient: "EQsomewhereon5jL",
	})
	if err := e.ExecuteCrossChain(context.Background(), entry.Signed.OrderHash); err != nil {
		t.Fatalf("execute cross chain: %v", err)
	}

	if err := e.CancelExecution(context.Background(), entry.Signed.OrderHash); err == nil || err.Code != message.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED before timelock, got %v", err)
	}

	e.updatePending(entry.Signed.OrderHash, func(p *PendingExecution) { p.Timelock = time.Now().Add(-time.Second).Unix() })

	if err := e.CancelExecution(context.Background(), entry.Signed.OrderHash); err != nil {
		t.Fatalf("expected refund to succeed past timelock: %v", err)
	}
	got := orders.Get(entry.Signed.OrderHash)
	if got.Status != order.StatusCancelled {
		t.Fatalf("expected order CANCELLED, got %s", got.Status)
	}
}
