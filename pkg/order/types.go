// Package order implements the C5 Order Manager: intent-to-order
// construction, EIP-712-style typed signing, and the order-book
// lifecycle, grounded on the teacher's intent.conversion.go construction
// pattern and go-ethereum/crypto for keccak256/ECDSA.
package order

import "time"

// Discriminator classifies an order by where its two legs settle.
type Discriminator string

const (
	DiscriminatorLocalOnly Discriminator = "local-only"
	DiscriminatorSrcToDst  Discriminator = "src-to-dst"
	DiscriminatorDstToSrc  Discriminator = "dst-to-src"
)

// Status is an Order-Book Entry's lifecycle state.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusSigned    Status = "SIGNED"
	StatusMatched   Status = "MATCHED"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Intent is the external submitter's swap request, the input to Construct.
type Intent struct {
	Maker       string
	Receiver    string
	SourceAsset string
	DestAsset   string
	MakerAmount string // nonnegative decimal integer, minor units
	TakerAmount string // nonnegative decimal integer, minor units
	Deadline    time.Time

	// Optional destination-chain info for cross-chain intents.
	DestinationRecipient  string
	DestinationChainToken string
	RelayerFeeHint        string
}

// HTLCProfile is attached to cross-chain orders.
type HTLCProfile struct {
	Hashlock   string // 64 lower-case hex chars
	Timelock   int64  // absolute unix seconds
	RelayerFee string
	secret     []byte // retained only in memory until reveal; never serialized
}

// Secret returns the HTLC's preimage, held only in memory. It is the one
// accessor for the secret; no package in this module calls it outside
// tests, and everything else that handles an Order only sees the Hashlock.
func (h *HTLCProfile) Secret() []byte {
	if h == nil {
		return nil
	}
	return h.secret
}

// Order is derived from an Intent plus a random salt.
type Order struct {
	Maker         string
	Receiver      string
	SourceAsset   string
	DestAsset     string
	MakerAmount   string
	TakerAmount   string
	Deadline      time.Time
	Salt          string // 256-bit, hex-encoded
	Discriminator Discriminator
	HTLC          *HTLCProfile // nil for local-only orders
}

// SignedOrder is an Order plus its typed-data signature.
type SignedOrder struct {
	Order       Order
	OrderHash   string // hex, the typed-data digest (Domain.Digest) signed over
	Signature   string // hex
	CrossChainID string // assigned only for cross-chain orders
}

// Entry is an Order-Book Entry: a signed order plus lifecycle bookkeeping.
type Entry struct {
	Signed          SignedOrder
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FilledAmount    string
	RemainingAmount string
	LastTxHash      string
	LastError       string
}

// Fees is the result of EstimateFees.
type Fees struct {
	RelayerFee  string
	GasFee      string
	ProtocolFee string
	Total       string
}
