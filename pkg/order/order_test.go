package order

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/swapcoordinator/pkg/events"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := Config{
		Domain:            Domain{Name: "SwapCoordinator", Version: "1", ChainID: 11155111, VerifyingContract: "0xVerifier"},
		DefaultTimelock:   2 * time.Hour,
		MinTimelock:       time.Hour,
		MaxTimelock:       7 * 24 * time.Hour,
		DefaultRelayerFee: "100",
	}
	gasPrice := func(ctx context.Context) (*big.Int, error) { return big.NewInt(20_000_000_000), nil }
	return New(cfg, key, gasPrice, events.NewBus())
}

func localIntent() Intent {
	return Intent{
		Maker:       "0xMaker",
		Receiver:    "0xReceiver",
		SourceAsset: "X",
		DestAsset:   "Y",
		MakerAmount: "1000",
		TakerAmount: "2000",
		Deadline:    time.Now().Add(time.Hour),
	}
}

func crossChainIntent() Intent {
	intent := localIntent()
	intent.DestinationRecipient = "EQsomewhere5jL"
	return intent
}

// Round-trip property 6: validate(sign(construct(intent))) succeeds
// whenever the intent is well-formed and deadline > now + epsilon.
func TestConstructSignRoundTripSucceeds(t *testing.T) {
	m := testManager(t)

	o, err := m.Construct(localIntent())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	signed, err := m.Sign(o)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.OrderHash == "" || signed.Signature == "" {
		t.Fatalf("expected non-empty order hash and signature")
	}

	addr, rerr := Recover(m.cfg.Domain, o, signed.Signature)
	if rerr != nil {
		t.Fatalf("recover: %v", rerr)
	}
	expected := crypto.PubkeyToAddress(m.signer.PublicKey).Hex()
	if addr != expected {
		t.Fatalf("expected recovered signer %s, got %s", expected, addr)
	}
}

func TestConstructCrossChainAttachesHTLCProfile(t *testing.T) {
	m := testManager(t)
	o, err := m.Construct(crossChainIntent())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if o.HTLC == nil {
		t.Fatalf("expected HTLC profile on cross-chain order")
	}
	if len(o.HTLC.Hashlock) != 64 {
		t.Fatalf("expected 64-hex hashlock, got %q", o.HTLC.Hashlock)
	}
	if o.Discriminator != DiscriminatorSrcToDst {
		t.Fatalf("expected src-to-dst discriminator, got %s", o.Discriminator)
	}

	signed, err := m.Sign(o)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.CrossChainID == "" {
		t.Fatalf("expected a cross-chain id to be assigned")
	}
}

func TestConstructRejectsNonPositiveAmounts(t *testing.T) {
	m := testManager(t)
	intent := localIntent()
	intent.MakerAmount = "0"
	if _, err := m.Construct(intent); err == nil {
		t.Fatalf("expected error for zero maker amount")
	}
}

func TestConstructRejectsPastDeadline(t *testing.T) {
	m := testManager(t)
	intent := localIntent()
	intent.Deadline = time.Now().Add(-time.Minute)
	if _, err := m.Construct(intent); err == nil {
		t.Fatalf("expected error for past deadline")
	}
}

func TestAddThenUpdateStatusLifecycle(t *testing.T) {
	m := testManager(t)
	o, _ := m.Construct(localIntent())
	signed, _ := m.Sign(o)
	entry := m.Add(signed)

	if entry.Status != StatusSigned {
		t.Fatalf("expected SIGNED on add, got %s", entry.Status)
	}

	if err := m.UpdateStatus(signed.OrderHash, StatusExecuting, "", nil); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got := m.Get(signed.OrderHash).Status; got != StatusExecuting {
		t.Fatalf("expected EXECUTING, got %s", got)
	}
}

func TestUpdateStatusUnknownOrderFails(t *testing.T) {
	m := testManager(t)
	if err := m.UpdateStatus("missing", StatusCompleted, "", nil); err == nil {
		t.Fatalf("expected ORDER_NOT_FOUND")
	}
}

func TestCancelRequiresMaker(t *testing.T) {
	m := testManager(t)
	o, _ := m.Construct(localIntent())
	signed, _ := m.Sign(o)
	m.Add(signed)

	if err := m.Cancel(signed.OrderHash, "0xSomeoneElse"); err == nil {
		t.Fatalf("expected UNAUTHORIZED_CANCELLATION for non-maker caller")
	}
	if err := m.Cancel(signed.OrderHash, "0xMAKER"); err != nil { // case-insensitive
		t.Fatalf("expected cancel by maker (case-insensitive) to succeed: %v", err)
	}
	if got := m.Get(signed.OrderHash).Status; got != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got)
	}
}

func TestEstimateFeesLocalOnlyIsZero(t *testing.T) {
	m := testManager(t)
	o, _ := m.Construct(localIntent())
	fees, err := m.EstimateFees(context.Background(), o)
	if err != nil {
		t.Fatalf("estimate fees: %v", err)
	}
	if fees.Total != "0" {
		t.Fatalf("expected zero total fee for local-only order, got %s", fees.Total)
	}
}

func TestEstimateFeesCrossChainSumsComponents(t *testing.T) {
	m := testManager(t)
	o, _ := m.Construct(crossChainIntent())
	fees, err := m.EstimateFees(context.Background(), o)
	if err != nil {
		t.Fatalf("estimate fees: %v", err)
	}
	// relayer 100 + gas 20 gwei * 200_000 + protocol 1000/1000
	if fees.Total != "4000000000000101" {
		t.Fatalf("expected total 4000000000000101 (relayer+gas+protocol), got %s", fees.Total)
	}
}

// Boundary property 11, after-deadline half: an order built with
// deadline = now + 60s whose deadline is then moved one second into the
// past is expired by CleanupExpired.
func TestCleanupExpiredBoundary(t *testing.T) {
	m := testManager(t)
	intent := localIntent()
	intent.Deadline = time.Now().Add(60 * time.Second)
	o, _ := m.Construct(intent)
	signed, _ := m.Sign(o)
	entry := m.Add(signed)
	entry.Signed.Order.Deadline = time.Now().Add(-time.Second)
	m.book[signed.OrderHash] = entry

	removed := m.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 expired entry, got %d", removed)
	}
	if got := m.Get(signed.OrderHash).Status; got != StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got)
	}
}

// Testable property 7 (canonical hash invariance) applied to the order
// hash: the same logical order built twice yields the same typed-data
// digest, the identifier every other component keys orders by.
func TestOrderHashStableForSameFields(t *testing.T) {
	domain := Domain{Name: "SwapCoordinator", Version: "1", ChainID: 1, VerifyingContract: "0xVerifier"}
	o1 := &Order{Maker: "0xMaker", Receiver: "0xReceiver", MakerAmount: "1", TakerAmount: "1", Salt: "aa", Deadline: time.Unix(1700000000, 0)}
	o2 := &Order{Maker: "0xMaker", Receiver: "0xReceiver", MakerAmount: "1", TakerAmount: "1", Salt: "aa", Deadline: time.Unix(1700000000, 0)}

	h1 := domain.Digest(o1)
	h2 := domain.Digest(o2)
	if h1 != h2 {
		t.Fatalf("expected stable order hash, got %x vs %x", h1, h2)
	}
}
