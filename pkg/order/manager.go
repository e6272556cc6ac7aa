package order

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/certen/swapcoordinator/pkg/events"
	"github.com/certen/swapcoordinator/pkg/message"
)

// GasPriceProvider returns the current gas price on the source chain,
// grounded on the teacher's ethereum.Client.GetGasPrice; injected so this
// package never dials a chain RPC itself.
type GasPriceProvider func(ctx context.Context) (*big.Int, error)

// Config holds Manager's tunables, sourced from pkg/config.
type Config struct {
	Domain            Domain
	DefaultTimelock   time.Duration // used when an intent implies cross-chain but omits an explicit timelock
	MinTimelock       time.Duration
	MaxTimelock       time.Duration
	DefaultRelayerFee string
}

// Manager is the C5 Order Manager: one order book, one RWMutex.
type Manager struct {
	mu sync.RWMutex

	cfg      Config
	signer   *ecdsa.PrivateKey
	gasPrice GasPriceProvider
	bus      *events.Bus
	logger   *log.Logger

	book map[string]*Entry // keyed by order hash
}

// New constructs a Manager. signer is the coordinator's own key, used to
// produce the EIP-712-style signature attached to every order this
// coordinator accepts into its book.
func New(cfg Config, signer *ecdsa.PrivateKey, gasPrice GasPriceProvider, bus *events.Bus) *Manager {
	return &Manager{
		cfg:      cfg,
		signer:   signer,
		gasPrice: gasPrice,
		bus:      bus,
		logger:   log.New(log.Writer(), "[OrderManager] ", log.LstdFlags),
		book:     make(map[string]*Entry),
	}
}

// Construct validates intent and derives an Order from it, attaching an
// HTLC profile (with a freshly generated secret) when the intent carries a
// destination-chain recipient.
func (m *Manager) Construct(intent Intent) (*Order, *message.Error) {
	now := time.Now()
	if intent.Maker == "" || intent.Receiver == "" {
		return nil, message.New(message.CodeInvalidParameters, "maker and receiver are required")
	}
	makerAmount := bigFromDecimal(intent.MakerAmount)
	takerAmount := bigFromDecimal(intent.TakerAmount)
	if makerAmount.Sign() <= 0 || takerAmount.Sign() <= 0 {
		return nil, message.New(message.CodeInvalidParameters, "makerAmount and takerAmount must be positive")
	}
	if !intent.Deadline.After(now) {
		return nil, message.New(message.CodeExpiredOrder, "deadline must be in the future")
	}

	salt, err := randomHex32()
	if err != nil {
		return nil, message.Newf(message.CodeInvalidParameters, "generate salt: %v", err)
	}

	o := &Order{
		Maker:       intent.Maker,
		Receiver:    intent.Receiver,
		SourceAsset: intent.SourceAsset,
		DestAsset:   intent.DestAsset,
		MakerAmount: intent.MakerAmount,
		TakerAmount: intent.TakerAmount,
		Deadline:    intent.Deadline,
		Salt:        salt,
	}

	if intent.DestinationRecipient == "" {
		o.Discriminator = DiscriminatorLocalOnly
	} else {
		o.Discriminator = DiscriminatorSrcToDst

		timelock := now.Add(m.cfg.DefaultTimelock)
		if timelock.Before(now.Add(m.cfg.MinTimelock)) || timelock.After(now.Add(m.cfg.MaxTimelock)) {
			return nil, message.New(message.CodeInvalidParameters, "default timelock falls outside global bounds")
		}

		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, message.Newf(message.CodeInvalidParameters, "generate secret: %v", err)
		}
		relayerFee := intent.RelayerFeeHint
		if relayerFee == "" {
			relayerFee = m.cfg.DefaultRelayerFee
		}
		o.HTLC = &HTLCProfile{
			Hashlock:   message.Hashlock(secret),
			Timelock:   timelock.Unix(),
			RelayerFee: relayerFee,
			secret:     secret,
		}
	}

	m.bus.Publish(events.Event{Kind: events.OrderConstructed})
	return o, nil
}

// Sign re-validates o and produces a SignedOrder: a typed-structured-data
// signature over o's fixed schema, plus the order hash and (for
// cross-chain orders) a freshly assigned cross-chain id.
func (m *Manager) Sign(o *Order) (*SignedOrder, *message.Error) {
	if !o.Deadline.After(time.Now()) {
		return nil, message.New(message.CodeExpiredOrder, "order deadline has passed")
	}

	orderHash, sig, err := Sign(m.cfg.Domain, o, m.signer)
	if err != nil {
		return nil, message.Newf(message.CodeInvalidSignature, "sign order: %v", err)
	}

	signed := &SignedOrder{
		Order:     *o,
		OrderHash: orderHash,
		Signature: sig,
	}
	if o.Discriminator != DiscriminatorLocalOnly {
		signed.CrossChainID = message.NewMessageID("cc")
	}
	return signed, nil
}

// Add creates an Order-Book Entry in state SIGNED for signed.
func (m *Manager) Add(signed *SignedOrder) *Entry {
	now := time.Now()
	entry := &Entry{
		Signed:          *signed,
		Status:          StatusSigned,
		CreatedAt:       now,
		UpdatedAt:       now,
		RemainingAmount: signed.Order.MakerAmount,
	}

	m.mu.Lock()
	m.book[signed.OrderHash] = entry
	m.mu.Unlock()

	m.bus.Publish(events.Event{Kind: events.OrderEvent, OrderID: signed.OrderHash, Status: string(StatusCreated)})
	return entry
}

// UpdateStatus performs a state-machine transition for orderHash.
func (m *Manager) UpdateStatus(orderHash string, status Status, txHash string, cause error) *message.Error {
	m.mu.Lock()
	entry, ok := m.book[orderHash]
	if !ok {
		m.mu.Unlock()
		return message.New(message.CodeOrderNotFound, "no order with that hash")
	}
	entry.Status = status
	entry.UpdatedAt = time.Now()
	if txHash != "" {
		entry.LastTxHash = txHash
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	m.mu.Unlock()

	m.bus.Publish(events.Event{Kind: events.OrderEvent, OrderID: orderHash, Status: string(status)})
	return nil
}

// Get returns a copy of the entry for orderHash, or nil if unknown.
func (m *Manager) Get(orderHash string) *Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.book[orderHash]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// ByStatus returns every entry currently in status.
func (m *Manager) ByStatus(status Status) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Entry
	for _, e := range m.book {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// Cancel transitions orderHash to CANCELLED if caller is the order's
// maker (case-insensitive).
func (m *Manager) Cancel(orderHash, caller string) *message.Error {
	m.mu.Lock()
	entry, ok := m.book[orderHash]
	if !ok {
		m.mu.Unlock()
		return message.New(message.CodeOrderNotFound, "no order with that hash")
	}
	if !strings.EqualFold(entry.Signed.Order.Maker, caller) {
		m.mu.Unlock()
		return message.New(message.CodeUnauthorizedCancellation, "caller is not the order's maker")
	}
	entry.Status = StatusCancelled
	entry.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.bus.Publish(events.Event{Kind: events.OrderEvent, OrderID: orderHash, Status: string(StatusCancelled)})
	return nil
}

// EstimateFees returns the fee breakdown for o. Local-only orders pay
// nothing; cross-chain orders pay the HTLC profile's relayer fee hint (or
// the configured default), a gas fee, and a protocol fee of
// maker_amount/1000.
func (m *Manager) EstimateFees(ctx context.Context, o *Order) (Fees, error) {
	if o.Discriminator == DiscriminatorLocalOnly {
		return Fees{RelayerFee: "0", GasFee: "0", ProtocolFee: "0", Total: "0"}, nil
	}

	relayerFee := m.cfg.DefaultRelayerFee
	if o.HTLC != nil && o.HTLC.RelayerFee != "" {
		relayerFee = o.HTLC.RelayerFee
	}

	gasPrice, err := m.gasPrice(ctx)
	if err != nil {
		return Fees{}, fmt.Errorf("fetch gas price: %w", err)
	}
	gasFee := new(big.Int).Mul(gasPrice, big.NewInt(200_000))
	protocolFee := new(big.Int).Div(bigFromDecimal(o.MakerAmount), big.NewInt(1000))

	total := new(big.Int).Add(bigFromDecimal(relayerFee), gasFee)
	total.Add(total, protocolFee)

	return Fees{
		RelayerFee:  relayerFee,
		GasFee:      gasFee.String(),
		ProtocolFee: protocolFee.String(),
		Total:       total.String(),
	}, nil
}

// CleanupExpired transitions every non-terminal entry whose deadline has
// passed into EXPIRED.
func (m *Manager) CleanupExpired() int {
	now := time.Now()
	var expired []string

	m.mu.Lock()
	for hash, e := range m.book {
		if !e.Status.Terminal() && e.Signed.Order.Deadline.Before(now) {
			e.Status = StatusExpired
			e.UpdatedAt = now
			expired = append(expired, hash)
		}
	}
	m.mu.Unlock()

	for _, hash := range expired {
		m.bus.Publish(events.Event{Kind: events.OrderEvent, OrderID: hash, Status: string(StatusExpired)})
	}
	return len(expired)
}

func randomHex32() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
