package notifier

import (
	"fmt"
	"testing"
	"time"
)

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub()

	sub, backlog, err := hub.Subscribe("owner-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d events", len(backlog))
	}

	hub.Publish("owner-1", Event{Kind: KindBookingChanged, Status: "confirmed"})

	select {
	case event := <-sub.Events():
		if event.Kind != KindBookingChanged {
			t.Fatalf("expected booking_changed, got %s", event.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_TopicsAreIsolated(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("owner-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	other, _, err := hub.Subscribe("owner-2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer other.Close()

	hub.Publish("owner-2", Event{Kind: KindPaymentChanged})

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected cross-topic event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case <-other.Events():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event on owner-2")
	}
}

func TestHub_NewSubscriberGetsBacklog(t *testing.T) {
	hub := NewHub()

	// The topic only buffers while someone listens.
	warm, _, err := hub.Subscribe("booking-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer warm.Close()

	for i := 0; i < 3; i++ {
		hub.Publish("booking-1", Event{Kind: KindBookingChanged, Status: fmt.Sprintf("s%d", i)})
	}

	sub, backlog, err := hub.Subscribe("booking-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if len(backlog) != 3 {
		t.Fatalf("expected 3 replayed events, got %d", len(backlog))
	}
	if backlog[0].Status != "s0" || backlog[2].Status != "s2" {
		t.Fatalf("expected ordered replay, got %+v", backlog)
	}
}

func TestHub_BacklogIsBounded(t *testing.T) {
	hub := NewHub()

	warm, _, err := hub.Subscribe("booking-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer warm.Close()

	for i := 0; i < DefaultBufferSize+10; i++ {
		hub.Publish("booking-1", Event{Kind: KindBookingChanged, Status: fmt.Sprintf("s%d", i)})
	}

	sub, backlog, err := hub.Subscribe("booking-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if len(backlog) != DefaultBufferSize {
		t.Fatalf("expected backlog capped at %d, got %d", DefaultBufferSize, len(backlog))
	}
	if backlog[len(backlog)-1].Status != fmt.Sprintf("s%d", DefaultBufferSize+9) {
		t.Fatalf("expected the tail of the stream, got %s", backlog[len(backlog)-1].Status)
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("booking-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultSubscriberBuffer*4; i++ {
			hub.Publish("booking-1", Event{Kind: KindBookingChanged})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("booking-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	// The topic is gone once its last subscriber leaves.
	hub.mu.RLock()
	_, exists := hub.topics["booking-1"]
	hub.mu.RUnlock()
	if exists {
		t.Fatal("expected topic garbage collected after last unsubscribe")
	}
}

func TestHub_PublishWithoutListenersIsNoop(t *testing.T) {
	hub := NewHub()

	hub.Publish("nobody-home", Event{Kind: KindBookingChanged})

	hub.mu.RLock()
	_, exists := hub.topics["nobody-home"]
	hub.mu.RUnlock()
	if exists {
		t.Fatal("publishing must not materialize topics")
	}
}

func TestHub_NilAndBlankKeysAreSafe(t *testing.T) {
	var nilHub *Hub
	nilHub.Publish("x", Event{})

	hub := NewHub()
	if _, _, err := hub.Subscribe("  "); err == nil {
		t.Fatal("expected error for blank topic")
	}
	hub.Publish("", Event{})
}
