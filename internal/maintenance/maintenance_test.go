package maintenance

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"quipbot/internal/storage"
	kit "quipbot/internal/transport"
	"quipbot/pkg/logx"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	to   []int64
}

func (f *fakeNotifier) Reply(ctx context.Context, to kit.ChatTarget, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to.ChatID)
	return nil
}

func TestValidateSpec(t *testing.T) {
	valid := []string{"30 3 * * *", "0 30 3 * * *", "@daily", "@every 1h"}
	for _, spec := range valid {
		if err := ValidateSpec(spec); err != nil {
			t.Fatalf("ValidateSpec(%q) = %v, want nil", spec, err)
		}
	}
	invalid := []string{"", "not a spec", "99 99 * * *", "* * * *"}
	for _, spec := range invalid {
		if err := ValidateSpec(spec); err == nil {
			t.Fatalf("ValidateSpec(%q) = nil, want error", spec)
		}
	}
}

func TestDigestText(t *testing.T) {
	if got := DigestText(storage.AuditStats{}); !strings.Contains(got, "no trigger management activity") {
		t.Fatalf("empty digest = %q", got)
	}

	stats := storage.AuditStats{
		Total:  7,
		Failed: 2,
		ByCommand: map[string]int64{
			"remove": 1,
			"add":    4,
			"edit":   2,
		},
	}
	// Command lines are sorted for stable output.
	want := "Daily digest: 7 commands, 2 failed.\n  add: 4\n  edit: 2\n  remove: 1"
	if got := DigestText(stats); got != want {
		t.Fatalf("digest = %q, want %q", got, want)
	}
}

func TestPruneRemovesOnlyOldEntries(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	old := storage.AuditEntry{At: time.Now().Add(-48 * time.Hour), Command: "add", OK: true}
	fresh := storage.AuditEntry{At: time.Now(), Command: "remove", OK: true}
	if err := store.AppendAudit(ctx, old); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := store.AppendAudit(ctx, fresh); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	svc := New(Config{Enabled: true, Retention: 24 * time.Hour}, store, &fakeNotifier{}, logx.Nop())
	svc.runPrune(ctx)

	stats, err := store.AuditStats(ctx, time.Time{})
	if err != nil {
		t.Fatalf("AuditStats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("after prune total = %d, want 1", stats.Total)
	}
	if stats.ByCommand["remove"] != 1 {
		t.Fatalf("surviving entry = %v, want the fresh remove", stats.ByCommand)
	}
}

func TestDigestGoesToConfiguredChat(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	if err := store.AppendAudit(ctx, storage.AuditEntry{At: time.Now(), Command: "add", OK: true}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	fn := &fakeNotifier{}
	svc := New(Config{Enabled: true, DigestChatID: -42}, store, fn, logx.Nop())
	svc.runDigest(ctx)

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.sent) != 1 {
		t.Fatalf("sent %d digests, want 1", len(fn.sent))
	}
	if fn.to[0] != -42 {
		t.Fatalf("digest chat = %d, want -42", fn.to[0])
	}
	if !strings.Contains(fn.sent[0], "1 commands") {
		t.Fatalf("digest text = %q", fn.sent[0])
	}
}

func TestDigestWithoutChatOnlyLogs(t *testing.T) {
	fn := &fakeNotifier{}
	svc := New(Config{Enabled: true}, storage.NewMemory(), fn, logx.Nop())
	svc.runDigest(context.Background())

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.sent) != 0 {
		t.Fatalf("digest sent despite unset chat id: %v", fn.sent)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	svc := New(Config{Enabled: true}, storage.NewMemory(), &fakeNotifier{}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start is a no-op.
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start twice: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
	svc.Stop(stopCtx) // idempotent
}

func TestStartDisabledDoesNothing(t *testing.T) {
	svc := New(Config{Enabled: false}, storage.NewMemory(), &fakeNotifier{}, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.c != nil {
		t.Fatal("cron runner created for disabled service")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	svc := New(Config{Enabled: true, PruneSpec: "not a spec"}, storage.NewMemory(), &fakeNotifier{}, logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("Start accepted an invalid cron spec")
	}
}

func TestApplyBeforeStartJustStoresConfig(t *testing.T) {
	svc := New(Config{Enabled: true}, storage.NewMemory(), &fakeNotifier{}, logx.Nop())
	svc.Apply(Config{Enabled: true, Retention: time.Hour, PruneSpec: "@daily"})

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.cfg.Retention != time.Hour || svc.cfg.PruneSpec != "@daily" {
		t.Fatalf("cfg after Apply = %+v", svc.cfg)
	}
}
