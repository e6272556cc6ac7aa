package events

import "testing"

func TestPublishDeliversToSubscribersInOrder(t *testing.T) {
	b := NewBus()
	var got []string

	b.Subscribe(OrderEvent, func(e Event) { got = append(got, "first:"+e.Status) })
	b.Subscribe(OrderEvent, func(e Event) { got = append(got, "second:"+e.Status) })

	b.Publish(Event{Kind: OrderEvent, Status: "SIGNED"})

	if len(got) != 2 || got[0] != "first:SIGNED" || got[1] != "second:SIGNED" {
		t.Fatalf("unexpected delivery order: %v", got)
	}
}

func TestPublishOnlyReachesMatchingKind(t *testing.T) {
	b := NewBus()
	called := false
	b.Subscribe(MessageDelivered, func(e Event) { called = true })

	b.Publish(Event{Kind: MessageFailed})

	if called {
		t.Fatalf("expected subscriber of a different kind to not be invoked")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	count := 0
	unsubscribe := b.Subscribe(OrderCreated, func(e Event) { count++ })

	b.Publish(Event{Kind: OrderCreated})
	unsubscribe()
	b.Publish(Event{Kind: OrderCreated})

	if count != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribing, got %d", count)
	}
}
