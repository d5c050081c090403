package config

import (
	"reflect"
	"strings"

	"newsrelay/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the changed settings that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)
	restart := make([]string, 0, 4)

	// Telegram (never log token)
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.api_url_set", strings.TrimSpace(newCfg.Telegram.APIURL) != ""),
		)
		if oldCfg.Telegram.Token != newCfg.Telegram.Token {
			restart = append(restart, "telegram.token")
		}
		if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout || oldCfg.Telegram.APIURL != newCfg.Telegram.APIURL {
			restart = append(restart, "telegram.poll_timeout/api_url")
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.News, newCfg.News) {
		changed = append(changed, "news")
		attrs = append(attrs,
			logx.String("news.schedule", newCfg.News.Schedule),
			logx.String("news.request.method", newCfg.News.Request.Method),
			logx.Int("news.request.header_count", len(newCfg.News.Request.Headers)),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Any("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
			logx.Int("broadcast.burst", newCfg.Broadcast.Burst),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
	}

	if oldCfg.Messages != newCfg.Messages {
		changed = append(changed, "messages")
	}

	// Observability (never log token)
	if oldCfg.Observability != newCfg.Observability {
		changed = append(changed, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", newCfg.Observability.Enabled),
			logx.String("observability.addr", strings.TrimSpace(newCfg.Observability.Addr)),
			logx.Bool("observability.pprof", newCfg.Observability.Pprof),
			logx.Bool("observability.token_set", strings.TrimSpace(newCfg.Observability.Token) != ""),
		)
	}

	return changed, attrs, restart
}
