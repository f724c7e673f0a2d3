package config

import (
	"reflect"
	"sort"
	"strings"

	logx "quipbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections plus structured attrs
// safe to log. The telegram token is never logged, only whether it is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if (strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}

	// Log
	if oldCfg.Log != newCfg.Log {
		changed = append(changed, "log")
		attrs = append(attrs,
			logx.String("log.level", newCfg.Log.Level),
			logx.Bool("log.console", newCfg.Log.Console),
			logx.Bool("log.file_enabled", newCfg.Log.File.Enabled),
			logx.Bool("log.telegram_enabled", newCfg.Log.Telegram.Enabled),
		)
	}

	// Storage. The store is opened once at startup, so the app treats this
	// section as restart-required; the summary still reports it.
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Bot pipeline
	if oldCfg.Bot != newCfg.Bot {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.Int("bot.workers", newCfg.Bot.Workers),
			logx.Int("bot.queue_size", newCfg.Bot.QueueSize),
			logx.String("bot.command_timeout", strings.TrimSpace(newCfg.Bot.CommandTimeout)),
		)
	}

	// Maintenance
	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled),
			logx.String("maintenance.timezone", strings.TrimSpace(newCfg.Maintenance.Timezone)),
			logx.String("maintenance.audit_retention", strings.TrimSpace(newCfg.Maintenance.AuditRetention)),
			logx.Bool("maintenance.digest_chat_set", newCfg.Maintenance.DigestChatID != 0),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
