package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"quipbot/internal/trigger"
	logx "quipbot/pkg/logx"
)

// ErrClosed is returned by operations on a store that was already closed.
var ErrClosed = errors.New("store closed")

// Config configures persistence.
//
// Driver values:
//   - "sqlite": single SQLite database file (default when empty)
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "memory": process-local, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the engine and services.
//
// Trigger keys passed in are expected lowercase (see trigger.Key). Drivers
// additionally enforce case-insensitive key uniqueness, so a raced insert
// cannot slip a duplicate past the engine's pre-check.
type Store interface {
	// FindByTrigger returns the record for key, or (nil, nil) when absent.
	FindByTrigger(ctx context.Context, key string) (*trigger.Record, error)
	// FindAll returns every record in insertion order.
	FindAll(ctx context.Context) ([]trigger.Record, error)
	// Insert stores a new record. Returns trigger.ErrExists when the key
	// is already present.
	Insert(ctx context.Context, rec trigger.Record) error
	// UpdateByTrigger replaces the response of an existing record.
	// Returns trigger.ErrNotFound when the key is absent.
	UpdateByTrigger(ctx context.Context, key string, upd trigger.Update) error
	// DeleteByTrigger removes the record for key and reports how many
	// records went away (0 or 1).
	DeleteByTrigger(ctx context.Context, key string) (int64, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	// PruneAudit deletes audit entries recorded before cutoff.
	PruneAudit(ctx context.Context, cutoff time.Time) (int64, error)
	// AuditStats summarizes audit entries recorded at or after since.
	AuditStats(ctx context.Context, since time.Time) (AuditStats, error)

	Close() error
}

// AuditEntry records one operator command.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	Command       string    `json:"command"`
	Target        string    `json:"target,omitempty"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms"`
}

// AuditStats aggregates audit entries over a window.
type AuditStats struct {
	Total     int64
	Failed    int64
	ByCommand map[string]int64
}

// Open initializes the configured store. An empty driver selects sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
