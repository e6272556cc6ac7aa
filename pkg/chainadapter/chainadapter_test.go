package chainadapter

import "testing"

func TestEventFilterMatchesByKindAndOrder(t *testing.T) {
	f := EventFilter{Kinds: []EventKind{EventEscrowCreated}, OrderID: "order-1"}

	match := Event{Kind: EventEscrowCreated, OrderID: "order-1"}
	if !f.matches(match) {
		t.Fatalf("expected matching event to pass the filter")
	}

	wrongKind := Event{Kind: EventFulfillment, OrderID: "order-1"}
	if f.matches(wrongKind) {
		t.Fatalf("expected wrong-kind event to be rejected")
	}

	wrongOrder := Event{Kind: EventEscrowCreated, OrderID: "order-2"}
	if f.matches(wrongOrder) {
		t.Fatalf("expected wrong-order event to be rejected")
	}
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f := EventFilter{}
	if !f.matches(Event{Kind: EventRefund, OrderID: "anything"}) {
		t.Fatalf("expected zero-value filter to match any event")
	}
}

func TestTONAdapterPollSinceIsCursorResumable(t *testing.T) {
	a := NewTONAdapter("https://example.invalid")
	a.PushEvent(Event{Kind: EventEscrowCreated, OrderID: "order-1", Cursor: "1"})
	a.PushEvent(Event{Kind: EventFulfillment, OrderID: "order-1", Cursor: "2"})

	events, cursor, err := a.PollSince(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 || cursor != "2" {
		t.Fatalf("expected both events and cursor 2, got %d events cursor=%s", len(events), cursor)
	}

	events, cursor, err = a.PollSince(nil, cursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 || cursor != "2" {
		t.Fatalf("expected no new events after resuming from the latest cursor, got %d", len(events))
	}
}
