// Package statesync implements the per-order, two-chain finite-state
// tracker (C4): finality gating via confirmation counts and expiry
// sweeping, grounded on the teacher's ledger.Store key layout and
// batch.ConfirmationTracker's periodic polling loop.
package statesync

import "time"

// Direction is which leg initiated the swap.
type Direction string

const (
	DirectionSrcToDst Direction = "SRC_TO_DST"
	DirectionDstToSrc Direction = "DST_TO_SRC"
)

// Chain tags one of the two sides of a tracked order.
type Chain string

const (
	ChainSource      Chain = "source"
	ChainDestination Chain = "destination"
)

// ChainTxStatus is a single chain leg's observed status.
type ChainTxStatus string

const (
	ChainTxPending   ChainTxStatus = "pending"
	ChainTxConfirmed ChainTxStatus = "confirmed"
	ChainTxFailed    ChainTxStatus = "failed"
)

// CrossChainState is the order's overall two-chain state.
type CrossChainState string

const (
	StatePending        CrossChainState = "PENDING"
	StateEscrowedSrc    CrossChainState = "ESCROWED_SRC"
	StateEscrowedDst    CrossChainState = "ESCROWED_DST"
	StateEscrowedBoth   CrossChainState = "ESCROWED_BOTH"
	StateFulfilled      CrossChainState = "FULFILLED"
	StateRefundedSrc    CrossChainState = "REFUNDED_SRC"
	StateRefundedDst    CrossChainState = "REFUNDED_DST"
	StateRefundedBoth   CrossChainState = "REFUNDED_BOTH"
	StateCancelled      CrossChainState = "CANCELLED"
	StateFailed         CrossChainState = "FAILED"
)

func (s CrossChainState) terminal() bool {
	switch s {
	case StateFulfilled, StateRefundedBoth, StateCancelled, StateFailed:
		return true
	}
	return false
}

// ChainRecord is one chain leg's observed on-chain status.
type ChainRecord struct {
	TxHash            string
	Block             uint64
	LogIndex          uint32
	Status            ChainTxStatus
	ConfirmationCount uint32
}

// TrackedOrder is C4's per-order record.
type TrackedOrder struct {
	OrderID       string
	Direction     Direction
	Hashlock      string
	Timelock      int64 // unix seconds, absolute
	Amount        string
	Initiator     string
	Recipient     string
	Source        ChainRecord
	Destination   ChainRecord
	State         CrossChainState
	SrcFinalized  bool
	DstFinalized  bool
	ExpiresAt     time.Time
	RetryCount    int
	LastError     string
	RevealedSecret string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderInfo is the input to Track: everything known about an order before
// any chain activity has been observed.
type OrderInfo struct {
	OrderID   string
	Direction Direction
	Hashlock  string
	Timelock  int64
	Amount    string
	Initiator string
	Recipient string
}
