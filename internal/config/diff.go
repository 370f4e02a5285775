package config

import (
	"reflect"

	logx "drumbot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and safe log fields
// describing the new values. Tokens and DSNs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changed []string
	var attrs []logx.Field

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
			logx.Bool("telegram.group_log_set", newCfg.Telegram.GroupLog != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		attrs = append(attrs, logx.String("feed.base_url", newCfg.Feed.BaseURL))
	}
	if oldCfg.Detector != newCfg.Detector {
		changed = append(changed, "detector")
		attrs = append(attrs, logx.String("detector.interval", newCfg.Detector.Interval))
	}
	if oldCfg.Announce != newCfg.Announce {
		changed = append(changed, "announce")
		attrs = append(attrs, logx.Int("announce.rate_per_sec", newCfg.Announce.RatePerSec))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	return changed, attrs
}

// OnlyLogging reports whether sections is empty or just "logging", the one
// section applied without a restart.
func OnlyLogging(sections []string) bool {
	for _, s := range sections {
		if s != "logging" {
			return false
		}
	}
	return true
}
