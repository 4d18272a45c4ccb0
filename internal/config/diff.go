package config

import (
	"strings"

	logx "homeworkbot/pkg/logx"
)

// SummarizeConfigChange returns the names of the sections that differ and
// log fields describing the new values. Nothing secret lives in Config,
// but URLs are reported only as "set" flags to keep log lines short.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	trim := strings.TrimSpace

	var (
		changed []string
		attrs   []logx.Field
	)

	if trim(oldCfg.Practicum.Endpoint) != trim(newCfg.Practicum.Endpoint) ||
		trim(oldCfg.Practicum.Timeout) != trim(newCfg.Practicum.Timeout) {
		changed = append(changed, "practicum")
		attrs = append(attrs,
			logx.Bool("practicum.endpoint_set", trim(newCfg.Practicum.Endpoint) != ""),
			logx.Duration("practicum.timeout", newCfg.RequestTimeout()),
		)
	}

	if trim(oldCfg.Telegram.APIURL) != trim(newCfg.Telegram.APIURL) ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.api_url_set", trim(newCfg.Telegram.APIURL) != ""),
			logx.Int("telegram.thread_id", newCfg.Telegram.ThreadID),
		)
	}

	if trim(oldCfg.Poller.RetryPeriod) != trim(newCfg.Poller.RetryPeriod) {
		changed = append(changed, "poller")
		attrs = append(attrs, logx.Duration("poller.retry_period", newCfg.RetryPeriod()))
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.RatePerSec()),
			logx.Duration("notifier.send_timeout", newCfg.SendTimeout()),
			logx.Int("notifier.history_size", newCfg.Notifier.HistorySize),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Credentials != newCfg.Credentials {
		// Credentials are read once at startup; flag it so operators know
		// a restart is needed.
		changed = append(changed, "credentials")
		attrs = append(attrs, logx.Bool("credentials.restart_required", true))
	}

	return changed, attrs
}
