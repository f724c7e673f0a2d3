package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	s1 := b.Subscribe(4)
	s2 := b.Subscribe(4)
	defer s1.Close()
	defer s2.Close()

	b.Publish(Event{Type: "test", Data: 42})

	for i, s := range []*Subscription{s1, s2} {
		select {
		case e := <-s.C:
			if e.Type != "test" || e.Data != 42 {
				t.Fatalf("subscriber %d got wrong event: %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d event has no timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	s := b.Subscribe(1)
	defer s.Close()

	b.Publish(Event{Type: "first"})
	// Buffer is full now; this must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: "second"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	e := <-s.C
	if e.Type != "first" {
		t.Fatalf("expected the buffered event, got %+v", e)
	}
	select {
	case e := <-s.C:
		t.Fatalf("dropped event was delivered: %+v", e)
	default:
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New()
	s := b.Subscribe(4)
	s.Close()
	s.Close() // idempotent

	// Publishing after close must not panic.
	b.Publish(Event{Type: "late"})

	if _, ok := <-s.C; ok {
		t.Fatal("closed subscription still delivers events")
	}
}
