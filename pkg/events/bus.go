// Package events replaces the stringly-typed event emitters the teacher
// used (ObserveTransactionAsync(ctx, txHash, onFinalized, onFailed)) with a
// small bus of typed event variants, so subscribers dispatch on a Kind
// constant instead of matching against free-form event-name strings.
package events

import "sync"

// Kind enumerates every event a coordinator component can emit.
type Kind string

const (
	OrderConstructed             Kind = "orderConstructed"
	OrderEvent                   Kind = "orderEvent"
	OrderCreated                 Kind = "orderCreated"
	OrderExecuted                Kind = "orderExecuted"
	CrossChainExecutionCompleted Kind = "crossChainExecutionCompleted"
	CryptoMismatch               Kind = "cryptoMismatch"
	OrderExecutionTimeout        Kind = "orderExecutionTimeout"
	MessageDelivered             Kind = "messageDelivered"
	MessageRetry                 Kind = "messageRetry"
	MessageFailed                Kind = "messageFailed"
	SourceFinalized              Kind = "sourceFinalized"
	DestinationFinalized         Kind = "destinationFinalized"
	TimelockReached              Kind = "timelockReached"
)

// Event is the single payload shape carried for every Kind; components
// populate only the fields relevant to what they're emitting.
type Event struct {
	Kind     Kind
	OrderID  string
	QueuedID string
	Status   string
	TxHash   string
	Detail   string
	Err      error
}

// Handler receives a published Event.
type Handler func(Event)

// Bus is a synchronous, in-process pub-sub: Publish invokes every matching
// subscriber on the caller's goroutine, so a status change reaches every
// subscriber before the next one is emitted.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers handler for kind and returns an unsubscribe func.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[kind] = append(b.handlers[kind], handler)
	idx := len(b.handlers[kind]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[kind]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

// Publish invokes every subscriber of e.Kind, in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h != nil {
			h(e)
		}
	}
}
