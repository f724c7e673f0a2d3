package bot

import (
	"context"
	"errors"
	"testing"

	"quipbot/internal/trigger"
	kit "quipbot/internal/transport"
	logx "quipbot/pkg/logx"
)

func chat() kit.ChatTarget { return kit.ChatTarget{ChatID: -100} }

func chatID(id int64) kit.ChatTarget { return kit.ChatTarget{ChatID: id} }

func TestDeliverTextKeepsContent(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewResponder(ad, logx.Nop(), 1000, 100)

	rec := trigger.Record{Trigger: "hello", Response: "hi there", Type: trigger.TypeText}
	if err := r.Deliver(context.Background(), chat(), rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	texts := ad.sentTexts()
	if len(texts) != 1 || texts[0].Text != "hi there" {
		t.Fatalf("sent = %+v", texts)
	}
}

func TestDeliverImageRetriesAsDocument(t *testing.T) {
	ad := &fakeAdapter{failPhoto: errors.New("wrong file type")}
	r := NewResponder(ad, logx.Nop(), 1000, 100)

	rec := trigger.Record{Trigger: "cat", Response: "doc456", Type: trigger.TypeImage}
	if err := r.Deliver(context.Background(), chat(), rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	files := ad.sentFiles()
	if len(files) != 1 {
		t.Fatalf("sent %d files, want 1", len(files))
	}
	if files[0].AsPhoto || files[0].Ref != "doc456" {
		t.Fatalf("fallback send = %+v, want document doc456", files[0])
	}
}

func TestDeliverFileNeverUsesPhotoMode(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewResponder(ad, logx.Nop(), 1000, 100)

	rec := trigger.Record{Trigger: "manual", Response: "pdf789", Type: trigger.TypeFile}
	if err := r.Deliver(context.Background(), chat(), rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	files := ad.sentFiles()
	if len(files) != 1 || files[0].AsPhoto {
		t.Fatalf("sent = %+v, want one document send", files)
	}
}

func TestReplySkipsEmptyText(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewResponder(ad, logx.Nop(), 1000, 100)

	if err := r.Reply(context.Background(), chat(), "   "); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := len(ad.sentTexts()); got != 0 {
		t.Fatalf("sent %d texts for blank reply", got)
	}
}

func TestTryReplyDropsWhenOverBudget(t *testing.T) {
	ad := &fakeAdapter{}
	// One token, refilled once per second: the second call must drop.
	r := NewResponder(ad, logx.Nop(), 1, 1)

	r.TryReply(context.Background(), chat(), "busy, try again")
	r.TryReply(context.Background(), chat(), "busy, try again")

	if got := len(ad.sentTexts()); got != 1 {
		t.Fatalf("sent %d texts, want 1", got)
	}
}

func TestRateLimitIsPerChat(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewResponder(ad, logx.Nop(), 1, 1)

	r.TryReply(context.Background(), chatID(-1), "a")
	r.TryReply(context.Background(), chatID(-2), "b")

	if got := len(ad.sentTexts()); got != 2 {
		t.Fatalf("sent %d texts, want 2 (separate chat budgets)", got)
	}
}
