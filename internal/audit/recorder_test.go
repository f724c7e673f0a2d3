package audit

import (
	"context"
	"testing"
	"time"

	"quipbot/internal/eventbus"
	"quipbot/internal/storage"
	"quipbot/pkg/logx"
)

func TestRecorderPersistsCommandEvents(t *testing.T) {
	store := storage.NewMemory()
	rec := NewRecorder(store, logx.Nop())
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx, sub)
	}()

	at := time.Now()
	bus.Publish(eventbus.Event{Type: TypeCommand, Data: CommandEvent{
		At:      at,
		ActorID: 42,
		ChatID:  -100,
		Command: "add",
		Target:  "hello",
		OK:      true,
		Took:    12 * time.Millisecond,
	}})
	bus.Publish(eventbus.Event{Type: TypeCommand, Data: CommandEvent{
		At:      at,
		ActorID: 42,
		ChatID:  -100,
		Command: "remove",
		Target:  "bye",
		Error:   `trigger "bye" not found`,
		Took:    3 * time.Millisecond,
	}})
	// Unrelated event types and malformed payloads are ignored.
	bus.Publish(eventbus.Event{Type: "config.reloaded", Data: 7})
	bus.Publish(eventbus.Event{Type: TypeCommand, Data: "not an event"})

	waitFor(t, func() bool {
		stats, err := store.AuditStats(context.Background(), time.Time{})
		return err == nil && stats.Total == 2
	})

	stats, err := store.AuditStats(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("AuditStats: %v", err)
	}
	if stats.Total != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want total 2 failed 1", stats)
	}
	if stats.ByCommand["add"] != 1 || stats.ByCommand["remove"] != 1 {
		t.Fatalf("per-command counts = %v", stats.ByCommand)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop on cancel")
	}
}

func TestRecorderStopsWhenSubscriptionCloses(t *testing.T) {
	store := storage.NewMemory()
	rec := NewRecorder(store, logx.Nop())
	bus := eventbus.New()
	sub := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(context.Background(), sub)
	}()

	sub.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop after subscription close")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
