package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the whole config file. Unknown keys are rejected at decode time
// so typos surface on load instead of silently disabling features.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Log         LogConfig         `json:"log"`
	Storage     StorageConfig     `json:"storage,omitempty"`
	Bot         BotConfig         `json:"bot,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	// Token is the bot API token. The TELEGRAM_BOT_TOKEN environment
	// variable overrides it when set.
	Token string `json:"token"`
	// OwnerUserIDs lists the users allowed to add/edit/remove triggers.
	// Empty means everyone in the chat may manage them.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LogConfig struct {
	Level    string      `json:"level"`
	Console  bool        `json:"console"`
	File     LogFile     `json:"file"`
	Telegram LogTelegram `json:"telegram"`
}

type LogFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LogTelegram forwards warnings and errors to a chat, rate limited.
type LogTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the trigger store backend.
//
// Example:
//
//	storage: { driver: "sqlite", path: "./quipbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite (default), file, memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BotConfig tunes the dispatch pipeline. Zero values use built-in defaults.
type BotConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	// CommandTimeout is a Go duration string bounding one command.
	CommandTimeout string `json:"command_timeout,omitempty"`
	// ReplyRatePerSec and ReplyBurst shape the per-chat send budget.
	ReplyRatePerSec float64 `json:"reply_rate_per_sec,omitempty"`
	ReplyBurst      int     `json:"reply_burst,omitempty"`
}

// MaintenanceConfig schedules audit pruning and the daily digest.
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// AuditRetention is a Go duration string; entries older than this are
	// pruned. Default 720h (30 days).
	AuditRetention string `json:"audit_retention,omitempty"`
	PruneSpec      string `json:"prune_spec,omitempty"`
	DigestSpec     string `json:"digest_spec,omitempty"`
	DigestChatID   int64  `json:"digest_chat_id,omitempty"`
}

// ParseDurationField parses an optional Go duration string from the config.
// Empty input is 0; path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for
// omitted/zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
