package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"quipbot/internal/engine"
	"quipbot/internal/storage"
	kit "quipbot/internal/transport"
	logx "quipbot/pkg/logx"
)

func newTestDispatcher(opt Options) (*Dispatcher, *fakeAdapter) {
	ad := &fakeAdapter{}
	store := storage.NewMemory()
	resp := NewResponder(ad, logx.Nop(), 1000, 100)
	h := NewHandler(store, resp, nil, logx.Nop(), nil)
	return NewDispatcher(h, resp, logx.Nop(), opt), ad
}

func messageUpdate(text string, from int64) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: -100, FromID: from, Text: text, IsGroup: true,
	}}
}

func TestDispatchLoopProcessesCommands(t *testing.T) {
	d, ad := newTestDispatcher(Options{Workers: 2, QueueSize: 8, CommandTimeout: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan kit.Update, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.DispatchLoop(ctx, updates)
	}()

	updates <- messageUpdate(`--add "hello" "hi there"`, 1)
	waitForReply(t, ad, `Added trigger "hello" (text).`)

	updates <- messageUpdate("oh hello!", 2)
	waitForReply(t, ad, "hi there")

	close(updates)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch loop did not stop after channel close")
	}
}

func TestDispatchLoopStopsOnCancel(t *testing.T) {
	d, _ := newTestDispatcher(Options{Workers: 2, QueueSize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.DispatchLoop(ctx, updates)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch loop did not stop on cancel")
	}
}

func TestFullQueueSendsBusyForCommandsOnly(t *testing.T) {
	// No DispatchLoop running, so nothing drains the queue.
	d, ad := newTestDispatcher(Options{Workers: 2, QueueSize: 1})
	d.jobs <- func() {}

	d.route(context.Background(), messageUpdate(`--add "x" "y"`, 1))
	texts := ad.sentTexts()
	if len(texts) != 1 || texts[0].Text != busyReply {
		t.Fatalf("sent = %+v, want one busy notice", texts)
	}

	// Plain chatter is dropped without a notice.
	d.route(context.Background(), messageUpdate("just talking", 2))
	if got := len(ad.sentTexts()); got != 1 {
		t.Fatalf("sent %d texts after plain drop, want 1", got)
	}
	if n := atomic.LoadUint64(&d.droppedPlain); n != 1 {
		t.Fatalf("droppedPlain = %d, want 1", n)
	}
}

func TestRouteIgnoresNonMessageUpdates(t *testing.T) {
	d, ad := newTestDispatcher(Options{Workers: 2, QueueSize: 4})

	d.route(context.Background(), kit.Update{Kind: kit.UpdateMessage})
	d.route(context.Background(), kit.Update{Kind: "unknown"})

	if got := len(d.jobs); got != 0 {
		t.Fatalf("queued %d jobs for empty updates", got)
	}
	if got := len(ad.sentTexts()); got != 0 {
		t.Fatalf("sent %d texts for empty updates", got)
	}
}

func TestNewRequestClassifiesOnce(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	req := d.newRequest(&kit.Message{ChatID: -100, FromID: 7, Text: `--ADD "x" "y"`})
	if req.Kind != engine.CmdAdd {
		t.Fatalf("kind = %q, want add", req.Kind)
	}
	if req.Rest != `"x" "y"` {
		t.Fatalf("rest = %q", req.Rest)
	}
	if len(req.ReqID) != 8 {
		t.Fatalf("rid = %q, want 8 chars", req.ReqID)
	}

	plain := d.newRequest(&kit.Message{ChatID: -100, FromID: 7, Text: "  hello there  "})
	if plain.Kind != engine.CmdPlainText {
		t.Fatalf("kind = %q, want plain", plain.Kind)
	}
	if plain.Text != "hello there" {
		t.Fatalf("text = %q, want trimmed", plain.Text)
	}
}

func waitForReply(t *testing.T, ad *fakeAdapter, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range ad.sentTexts() {
			if s.Text == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("reply %q never sent; got %+v", want, ad.sentTexts())
}
