// Package maintenance runs the bot's periodic housekeeping: pruning old
// audit entries past the retention window and posting a daily activity
// digest. Schedules are cron expressions from config, evaluated in the
// configured timezone.
package maintenance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"quipbot/internal/storage"
	kit "quipbot/internal/transport"
	logx "quipbot/pkg/logx"
)

// jobTimeout bounds one housekeeping run.
const jobTimeout = time.Minute

// digestWindow is how far back the daily digest looks.
const digestWindow = 24 * time.Hour

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec checks a cron expression without scheduling it. Used by the
// config validator so a bad spec is rejected at load time, not at 03:30.
func ValidateSpec(spec string) error {
	_, err := specParser.Parse(spec)
	return err
}

type Config struct {
	Enabled      bool
	Timezone     string
	Retention    time.Duration
	PruneSpec    string
	DigestSpec   string
	DigestChatID int64 // 0 logs the digest instead of sending it
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if strings.TrimSpace(c.PruneSpec) == "" {
		c.PruneSpec = "30 3 * * *"
	}
	if strings.TrimSpace(c.DigestSpec) == "" {
		c.DigestSpec = "0 9 * * *"
	}
	return c
}

// Store is the slice of the storage layer housekeeping needs.
type Store interface {
	PruneAudit(ctx context.Context, cutoff time.Time) (int64, error)
	AuditStats(ctx context.Context, since time.Time) (storage.AuditStats, error)
}

// Notifier delivers the digest. Satisfied by bot.Responder.
type Notifier interface {
	Reply(ctx context.Context, to kit.ChatTarget, text string) error
}

type Service struct {
	log      logx.Logger
	store    Store
	notifier Notifier

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	loc     *time.Location
	baseCtx context.Context
}

func New(cfg Config, store Store, notifier Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log.With(logx.String("comp", "maintenance")),
		store:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
	}
}

// Start registers the jobs and starts cron triggering. ctx outlives Start
// and bounds every job run; cancelling it (app shutdown) aborts in-flight
// housekeeping.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	if !s.cfg.Enabled {
		s.log.Info("maintenance disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc := s.loadLocationLocked()
	s.loc = loc
	c := cron.New(cron.WithParser(specParser), cron.WithLocation(loc))

	ctx := s.baseCtx
	if _, err := c.AddJob(s.cfg.PruneSpec, cron.FuncJob(func() { s.runPrune(ctx) })); err != nil {
		return fmt.Errorf("register prune job (%q): %w", s.cfg.PruneSpec, err)
	}
	if _, err := c.AddJob(s.cfg.DigestSpec, cron.FuncJob(func() { s.runDigest(ctx) })); err != nil {
		return fmt.Errorf("register digest job (%q): %w", s.cfg.DigestSpec, err)
	}

	c.Start()
	s.c = c
	s.log.Info("maintenance started",
		logx.String("tz", loc.String()),
		logx.String("prune_spec", s.cfg.PruneSpec),
		logx.String("digest_spec", s.cfg.DigestSpec),
		logx.Duration("retention", s.cfg.Retention))
	return nil
}

// Stop halts cron triggering and waits for running jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("maintenance stopped")
}

// Apply installs a new config (hot reload). Schedule or timezone changes
// restart the cron runner; retention changes take effect on the next run.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg.withDefaults()
	if s.baseCtx == nil {
		return // not started yet; Start picks the new values up
	}

	changed := old.Enabled != s.cfg.Enabled ||
		strings.TrimSpace(old.Timezone) != strings.TrimSpace(s.cfg.Timezone) ||
		old.PruneSpec != s.cfg.PruneSpec ||
		old.DigestSpec != s.cfg.DigestSpec
	if !changed {
		return
	}

	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if !s.cfg.Enabled {
		s.log.Info("maintenance disabled")
		return
	}
	if err := s.startLocked(); err != nil {
		s.log.Error("maintenance restart failed", logx.Err(err))
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) runPrune(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	s.mu.Lock()
	retention := s.cfg.Retention
	s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	n, err := s.store.PruneAudit(ctx, cutoff)
	if err != nil {
		s.log.Error("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("audit entries pruned", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
	} else {
		s.log.Debug("audit prune: nothing to remove")
	}
}

func (s *Service) runDigest(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	stats, err := s.store.AuditStats(ctx, time.Now().Add(-digestWindow))
	if err != nil {
		s.log.Error("digest stats failed", logx.Err(err))
		return
	}

	s.mu.Lock()
	chatID := s.cfg.DigestChatID
	s.mu.Unlock()

	if chatID == 0 {
		s.log.Info("daily digest",
			logx.Int64("commands", stats.Total), logx.Int64("failed", stats.Failed))
		return
	}
	if err := s.notifier.Reply(ctx, kit.ChatTarget{ChatID: chatID}, DigestText(stats)); err != nil {
		s.log.Warn("digest delivery failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

// DigestText renders audit stats as the digest message.
func DigestText(stats storage.AuditStats) string {
	if stats.Total == 0 {
		return "Daily digest: no trigger management activity in the last 24h."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest: %d commands, %d failed.", stats.Total, stats.Failed)
	names := make([]string, 0, len(stats.ByCommand))
	for name := range stats.ByCommand {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %d", name, stats.ByCommand[name])
	}
	return b.String()
}
