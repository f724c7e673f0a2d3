package app

import (
	"fmt"
	"strings"
	"time"

	"quipbot/internal/bot"
	"quipbot/internal/maintenance"
	"quipbot/internal/storage"
	logx "quipbot/pkg/logx"
)

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Log.Telegram.Enabled,
			MinLevel:   cfg.Log.Telegram.MinLevel,
			RatePerSec: cfg.Log.Telegram.RatePerSec,
		},
	}
}

// mapStorageConfig fills in the driver and path defaults. The drivers
// themselves insist on a path, so the default lives here.
func mapStorageConfig(cfg *Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./quipbot.db"
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "memory":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapBotOptions(cfg *Config) (bot.Options, error) {
	if cfg.Bot.Workers < 0 {
		return bot.Options{}, fmt.Errorf("bot.workers must be >= 0")
	}
	if cfg.Bot.QueueSize < 0 {
		return bot.Options{}, fmt.Errorf("bot.queue_size must be >= 0")
	}
	timeout, err := parseDurationField("bot.command_timeout", cfg.Bot.CommandTimeout)
	if err != nil {
		return bot.Options{}, err
	}
	return bot.Options{
		Workers:        cfg.Bot.Workers,
		QueueSize:      cfg.Bot.QueueSize,
		CommandTimeout: timeout,
	}, nil
}

func mapMaintenanceConfig(cfg *Config) (maintenance.Config, error) {
	mc := cfg.Maintenance
	retention, err := parseDurationField("maintenance.audit_retention", mc.AuditRetention)
	if err != nil {
		return maintenance.Config{}, err
	}
	if tz := strings.TrimSpace(mc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return maintenance.Config{}, fmt.Errorf("maintenance.timezone: invalid %q: %w", tz, err)
		}
	}
	if spec := strings.TrimSpace(mc.PruneSpec); spec != "" {
		if err := maintenance.ValidateSpec(spec); err != nil {
			return maintenance.Config{}, fmt.Errorf("maintenance.prune_spec: %w", err)
		}
	}
	if spec := strings.TrimSpace(mc.DigestSpec); spec != "" {
		if err := maintenance.ValidateSpec(spec); err != nil {
			return maintenance.Config{}, fmt.Errorf("maintenance.digest_spec: %w", err)
		}
	}
	return maintenance.Config{
		Enabled:      mc.Enabled,
		Timezone:     mc.Timezone,
		Retention:    retention,
		PruneSpec:    mc.PruneSpec,
		DigestSpec:   mc.DigestSpec,
		DigestChatID: mc.DigestChatID,
	}, nil
}
