package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("dispatch.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindSent, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindSent {
			t.Errorf("got kind %q, want %s", evt.Kind, KindSent)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("gateway.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindEnqueued})
	b.Publish(Event{Kind: KindGatewayStatus})

	select {
	case evt := <-ch:
		if evt.Kind != KindGatewayStatus {
			t.Errorf("got kind %q, want %s", evt.Kind, KindGatewayStatus)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("dispatch.", 10)
	unsub()
	// Second call must be harmless.
	unsub()

	b.Publish(Event{Kind: KindStarted})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("dispatch.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindSent})
	b.Publish(Event{Kind: KindFailed})

	evt := <-ch
	if evt.Kind != KindSent {
		t.Errorf("got %q, want %s", evt.Kind, KindSent)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}
