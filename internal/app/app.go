package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"homeworkbot/internal/config"
	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/keychain"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/poller"
	"homeworkbot/internal/practicum"
	"homeworkbot/internal/runtime/supervisor"
	"homeworkbot/internal/transport"
	telegram "homeworkbot/internal/transport/telegram/adapter"
	logx "homeworkbot/pkg/logx"
	"homeworkbot/pkg/systemd"
)

// ServiceManager receives lifecycle notifications. systemd.Notifier is the
// production implementation.
type ServiceManager interface {
	Ready() error
	Stopping() error
	Watchdog() error
	Status(msg string) error
	WatchdogInterval() time.Duration
}

type Options struct {
	ConfigPath string
	// EnvFile overrides credentials.env_file.
	EnvFile string

	// Getenv replaces os.Getenv when reading credentials.
	Getenv func(string) string
	// Adapter replaces the Telegram transport.
	Adapter transport.Adapter
	// ServiceManager replaces the systemd notifier.
	ServiceManager ServiceManager
	// StartCursor fixes the first polling window (Unix seconds) instead of
	// starting from now.
	StartCursor int64
}

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sd   ServiceManager

	target  transport.ChatTarget
	adapter transport.Adapter
	notif   *notifier.Service
	poll    *poller.Poller
}

// NewApp loads configuration and credentials and wires every component.
// It returns config.ErrMissingCredentials (after logging which variables
// are missing) when a secret is absent.
func NewApp(opts Options) (*App, error) {
	bootLog := logx.NewConsole("info").With(logx.String("comp", "app"))

	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfgm.SetLogger(bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	creds, err := loadCredentials(cfg, opts, bootLog)
	if err != nil {
		return nil, err
	}
	target, err := transport.ParseChatTarget(creds.ChatID, cfg.Telegram.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.EnvTelegramChatID, err)
	}

	ad := opts.Adapter
	if ad == nil {
		tg, err := telegram.New(telegram.Config{
			Token:   creds.TelegramToken,
			APIURL:  cfg.Telegram.APIURL,
			Timeout: cfg.SendTimeout(),
		}, bootLog.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}

	logSvc, log := logx.New(cfg.LogConfig(), ad)
	logSvc.SetChatTarget(target)

	bus := eventbus.New()
	notif := notifier.New(notifierConfig(cfg, target), ad, log.With(logx.String("comp", "notifier")), bus)

	client, err := practicum.NewClient(practicum.ClientConfig{
		Endpoint: cfg.Practicum.Endpoint,
		Token:    creds.PracticumToken,
		Timeout:  cfg.RequestTimeout(),
	}, log.With(logx.String("comp", "practicum")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	sd := opts.ServiceManager
	if sd == nil {
		sd = systemd.Notifier{}
	}

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		sd:      sd,
		target:  target,
		adapter: ad,
		notif:   notif,
	}
	a.poll = poller.New(client, notif, cfg.RetryPeriod(), log.With(logx.String("comp", "poller")),
		poller.WithBus(bus),
		poller.WithCycleHook(a.onCycle),
		poller.WithStartCursor(opts.StartCursor),
	)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	return a, nil
}

func loadCredentials(cfg *config.Config, opts Options, log logx.Logger) (config.Credentials, error) {
	getenv := opts.Getenv
	if getenv == nil {
		envFile := opts.EnvFile
		if envFile == "" {
			envFile = cfg.Credentials.EnvFile
		}
		if err := config.LoadDotEnv(envFile, log); err != nil {
			return config.Credentials{}, err
		}
		getenv = os.Getenv
	}

	var fallback config.SecretLookup
	if cfg.Credentials.Keyring {
		fallback = keychain.New(cfg.KeyringService()).Get
	}
	creds := config.LoadCredentials(getenv, fallback, log)
	if !config.CheckTokens(creds, log) {
		return config.Credentials{}, config.ErrMissingCredentials
	}
	return creds, nil
}

func notifierConfig(cfg *config.Config, target transport.ChatTarget) notifier.Config {
	return notifier.Config{
		Target:      target,
		RatePerSec:  cfg.RatePerSec(),
		SendTimeout: cfg.SendTimeout(),
		HistorySize: cfg.Notifier.HistorySize,
	}
}

// Poller exposes the poll loop (cursor, retry period).
func (a *App) Poller() *poller.Poller { return a.poll }

// Notifier exposes the delivery service (history snapshot).
func (a *App) Notifier() *notifier.Service { return a.notif }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the poll loop and its support goroutines. It does not
// block.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })

	a.startEventLog()
	a.startConfigReload()
	// The directory is watched, so a config file created later is picked up.
	if _, err := os.Stat(filepath.Dir(a.cfgm.Path())); err == nil {
		a.sup.GoRestart("config.watch", time.Second, 30*time.Second, a.cfgm.Watch)
	} else {
		a.log.Debug("config directory absent; hot reload disabled", logx.String("path", a.cfgm.Path()))
	}

	if iv := a.sd.WatchdogInterval(); iv > 0 && iv <= a.poll.RetryPeriod() {
		a.log.Warn("systemd watchdog fires before the next poll cycle; raise WatchdogSec",
			logx.Duration("watchdog", iv), logx.Duration("retry_period", a.poll.RetryPeriod()))
	}

	if err := a.sd.Ready(); err != nil {
		a.log.Warn("systemd ready notification failed", logx.Err(err))
	}
	_ = a.sd.Status("polling every " + a.poll.RetryPeriod().String())
	a.sup.Go("poller", a.poll.Run)
	a.log.Info("app started",
		logx.String("chat", a.notif.Target().Recipient()),
		logx.Duration("retry_period", a.poll.RetryPeriod()),
	)
	return nil
}

func (a *App) onCycle(c poller.Cycle) {
	if err := a.sd.Watchdog(); err != nil {
		a.log.Debug("systemd watchdog ping failed", logx.Err(err))
	}
	status := fmt.Sprintf("cursor %d, last cycle %s", c.Cursor, c.Started.Format(time.RFC3339))
	if c.Err != nil && !errors.Is(c.Err, context.Canceled) {
		status += " (failed)"
	}
	_ = a.sd.Status(status)
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(64)
	log := a.log.With(logx.String("comp", "eventbus"))
	a.sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				log.Debug("event", logx.String("type", e.Type), logx.String("time", e.Time.Format(time.RFC3339)))
			}
		}
	})
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, cfg)
				last = cfg
			}
		}
	})
}

// applyConfig applies the hot-reloadable parts of cfg. Endpoints, timeouts
// of the API client and credentials need a restart.
func (a *App) applyConfig(prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	target := a.target
	target.ThreadID = cfg.Telegram.ThreadID
	a.logs.SetChatTarget(target)
	a.logs.Apply(cfg.LogConfig())
	a.notif.Apply(notifierConfig(cfg, target))
	a.poll.SetRetryPeriod(cfg.RetryPeriod())

	if slices.Contains(sections, "practicum") || slices.Contains(sections, "credentials") ||
		strings.TrimSpace(prev.Telegram.APIURL) != strings.TrimSpace(cfg.Telegram.APIURL) {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("changed", sections))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReload, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels the loop and waits for support goroutines, bounded by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if err := a.sd.Stopping(); err != nil {
		a.log.Debug("systemd stopping notification failed", logx.Err(err))
	}

	err := a.sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("stop deadline reached; some goroutines are still running", logx.Int64("active", a.sup.Active()))
	}
	a.log.Info("stopped", logx.Int64("cursor", a.poll.Cursor()))
	_ = a.logs.Close()
	return err
}
