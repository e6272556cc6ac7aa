// Package chainadapter defines the symmetric, thin interface the relay and
// execution engine use to talk to either side of a swap: the source chain
// (Ethereum) and the destination chain (TON). Concrete chain RPC clients
// and on-chain contract ABIs are treated as external collaborators - only
// their request/response shape lives here, grounded on the teacher's
// ChainExecutionStrategy interface.
package chainadapter

import (
	"context"
	"time"

	"github.com/certen/swapcoordinator/pkg/message"
)

// subscribePollInterval paces both adapters' Subscribe polling loops so
// they yield between PollSince calls instead of busy-spinning while the
// in-memory event log is empty.
const subscribePollInterval = 2 * time.Second

// EventKind tags the three typed events an adapter can deliver.
type EventKind string

const (
	EventEscrowCreated EventKind = "escrow-created"
	EventFulfillment   EventKind = "fulfillment"
	EventRefund        EventKind = "refund"
)

// Event is a chain-observed occurrence an adapter surfaces to subscribers,
// cursor-resumable via PollSince.
type Event struct {
	Kind     EventKind
	OrderID  string
	TxHash   string
	Block    uint64
	LogIndex uint32
	Cursor   string
}

// Sink receives events pushed by Subscribe.
type Sink func(Event)

// Adapter is the contract both the source and destination chain adapters
// implement. Adapters never retry internally beyond a single network-level
// attempt - all retry policy lives in pkg/relay.
type Adapter interface {
	// Submit serializes msg for this chain's submission format and
	// returns an opaque transaction identifier.
	Submit(ctx context.Context, msg *message.Message) (txID string, err error)

	// Verify reports whether the chain considers txID included and
	// successful. A false result with a nil error means "not yet/failed",
	// not "unknown" - errors are reserved for network failures.
	Verify(ctx context.Context, txID string) (bool, error)

	// Confirmations returns the number of confirmations txID currently has.
	Confirmations(ctx context.Context, txID string) (uint32, error)

	// Subscribe delivers events matching filter to sink until ctx is
	// cancelled.
	Subscribe(ctx context.Context, filter EventFilter, sink Sink) error

	// PollSince returns events observed after cursor, and the cursor to
	// resume from on the next call.
	PollSince(ctx context.Context, cursor string) (events []Event, nextCursor string, err error)
}

// EventFilter narrows a Subscribe call to particular event kinds and/or a
// particular order-id; a zero value matches everything.
type EventFilter struct {
	Kinds   []EventKind
	OrderID string
}

func (f EventFilter) matches(e Event) bool {
	if f.OrderID != "" && f.OrderID != e.OrderID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}
