package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	logx "homeworkbot/pkg/logx"
)

// Config is the optional on-disk configuration. Secrets never live here;
// they come from the environment (see Credentials).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "10m").
type Config struct {
	Practicum   PracticumConfig   `json:"practicum"`
	Telegram    TelegramConfig    `json:"telegram"`
	Poller      PollerConfig      `json:"poller"`
	Notifier    NotifierConfig    `json:"notifier"`
	Logging     LoggingConfig     `json:"logging"`
	Credentials CredentialsConfig `json:"credentials"`
}

// PracticumConfig controls the homework status API client.
type PracticumConfig struct {
	// Endpoint defaults to the production homework_statuses URL.
	Endpoint string `json:"endpoint,omitempty"`
	// Timeout bounds one request. "0s" or empty disables the client timeout.
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	// APIURL overrides the Bot API base URL (e.g. a local bot-api server).
	APIURL string `json:"api_url,omitempty"`
	// ThreadID targets a forum topic inside the chat. 0 means none.
	ThreadID int `json:"thread_id,omitempty"`
}

type PollerConfig struct {
	// RetryPeriod is the pause between two poll cycles. Default: "10m".
	RetryPeriod string `json:"retry_period,omitempty"`
}

// NotifierConfig controls delivery of chat messages.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 1
//   - send_timeout: "10s"
//   - history_size: 50
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors log lines into the notification chat.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CredentialsConfig controls where secrets may come from besides the
// process environment.
type CredentialsConfig struct {
	// EnvFile is loaded into the environment before credentials are read.
	// Variables that are already set win. Default: ".env".
	EnvFile string `json:"env_file,omitempty"`
	// Keyring enables the OS keychain as a fallback for empty values.
	Keyring bool `json:"keyring,omitempty"`
	// KeyringService is the keychain service name. Default: "homework-bot".
	KeyringService string `json:"keyring_service,omitempty"`
}

const (
	DefaultRetryPeriod    = 10 * time.Minute
	DefaultSendTimeout    = 10 * time.Second
	DefaultRatePerSec     = 1
	DefaultHistorySize    = 50
	DefaultEnvFile        = ".env"
	DefaultKeyringService = "homework-bot"
)

// Default returns the configuration used when no file is present. Parsed
// files are decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Poller:   PollerConfig{RetryPeriod: DefaultRetryPeriod.String()},
		Notifier: NotifierConfig{RatePerSec: DefaultRatePerSec, SendTimeout: DefaultSendTimeout.String(), HistorySize: DefaultHistorySize},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: true, Path: logx.DefaultFilePath},
			Chat:    LoggingChat{MinLevel: "error", RatePerSec: 1},
		},
		Credentials: CredentialsConfig{EnvFile: DefaultEnvFile, KeyringService: DefaultKeyringService},
	}
}

// Validate checks values that would otherwise fail late (on first use).
// It is installed as the ConfigManager validator so a bad edit never
// replaces a running config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if ep := strings.TrimSpace(c.Practicum.Endpoint); ep != "" {
		if _, err := url.ParseRequestURI(ep); err != nil {
			errs = append(errs, fmt.Errorf("practicum.endpoint: %w", err))
		}
	}
	if _, err := ParseDurationField("practicum.timeout", c.Practicum.Timeout); err != nil {
		errs = append(errs, err)
	}
	if u := strings.TrimSpace(c.Telegram.APIURL); u != "" {
		if _, err := url.ParseRequestURI(u); err != nil {
			errs = append(errs, fmt.Errorf("telegram.api_url: %w", err))
		}
	}
	if c.Telegram.ThreadID < 0 {
		errs = append(errs, errors.New("telegram.thread_id: must be >= 0"))
	}
	if _, err := ParseDurationField("poller.retry_period", c.Poller.RetryPeriod); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.send_timeout", c.Notifier.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Notifier.RatePerSec < 0 {
		errs = append(errs, errors.New("notifier.rate_per_sec: must be >= 0"))
	}
	if c.Notifier.HistorySize < 0 {
		errs = append(errs, errors.New("notifier.history_size: must be >= 0"))
	}
	if lv := strings.TrimSpace(c.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lv))
	}
	if lv := strings.TrimSpace(c.Logging.Chat.MinLevel); lv != "" && !logx.ValidLevel(lv) {
		errs = append(errs, fmt.Errorf("logging.chat.min_level: unknown level %q", lv))
	}
	return errors.Join(errs...)
}

// RetryPeriod resolves poller.retry_period, falling back to the default.
func (c *Config) RetryPeriod() time.Duration {
	d, err := ParseDurationOrDefault("poller.retry_period", c.Poller.RetryPeriod, DefaultRetryPeriod)
	if err != nil {
		return DefaultRetryPeriod
	}
	return d
}

func (c *Config) SendTimeout() time.Duration {
	d, err := ParseDurationOrDefault("notifier.send_timeout", c.Notifier.SendTimeout, DefaultSendTimeout)
	if err != nil {
		return DefaultSendTimeout
	}
	return d
}

// RequestTimeout resolves practicum.timeout. Zero means no timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, err := ParseDurationField("practicum.timeout", c.Practicum.Timeout)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) RatePerSec() int {
	if c.Notifier.RatePerSec <= 0 {
		return DefaultRatePerSec
	}
	return c.Notifier.RatePerSec
}

func (c *Config) KeyringService() string {
	if s := strings.TrimSpace(c.Credentials.KeyringService); s != "" {
		return s
	}
	return DefaultKeyringService
}

// LogConfig maps the logging section to the logx service config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    c.Logging.Chat.Enabled,
			MinLevel:   c.Logging.Chat.MinLevel,
			RatePerSec: c.Logging.Chat.RatePerSec,
		},
	}
}
