package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsrelay/internal/broadcast"
	"newsrelay/internal/commands"
	"newsrelay/internal/config"
	"newsrelay/internal/eventbus"
	"newsrelay/internal/metrics"
	"newsrelay/internal/news"
	"newsrelay/internal/observability"
	"newsrelay/internal/relay"
	rtsup "newsrelay/internal/runtime/supervisor"
	"newsrelay/internal/runtime/systemd"
	kit "newsrelay/internal/transport"
	telegram "newsrelay/internal/transport/telegram/adapter"
	"newsrelay/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter kit.Adapter
	state   *State

	fetcher *news.Fetcher
	bc      *broadcast.Service
	loop    *relay.Loop
	cmds    *commands.Dispatcher
	obs     *observability.Service
	sd      *systemd.Notifier

	updates chan kit.Update
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	adapter kit.Adapter
	getenv  func(string) string
}

// WithAdapter replaces the Telegram adapter. The token is then not required.
func WithAdapter(ad kit.Adapter) Option {
	return func(o *options) { o.adapter = ad }
}

// WithEnvLookup overrides os.Getenv for config env overlays.
func WithEnvLookup(fn func(string) string) Option {
	return func(o *options) { o.getenv = fn }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	if o.getenv != nil {
		cfgm.SetEnvLookup(o.getenv)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	// The adapter is built after the logger, so Telegram logging gets its
	// sender attached once the bot exists.
	logSvc, log := logx.New(mapLoggingConfig(cfg), nil)
	appLog := log.With(logx.String("comp", "app"))
	built := false
	defer func() {
		if !built {
			_ = logSvc.Close()
		}
	}()

	ad := o.adapter
	if ad == nil {
		if err := cfg.RequireToken(); err != nil {
			return nil, err
		}
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 30*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
			APIURL:      cfg.Telegram.APIURL,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ad = tg
	}
	logSvc.AttachSender(ad)

	state, err := OpenState(cfg, log)
	if err != nil {
		return nil, err
	}
	metrics.SetWatermark(state.Watermark.Get())
	metrics.SetDestinations(state.Destinations.Len())

	bus := eventbus.New()

	req, _ := mapNewsRequest(cfg)
	fetcher := news.NewFetcher(req, state.Watermark, log.With(logx.String("comp", "news")))

	bcfg, _ := mapBroadcastConfig(cfg)
	bc := broadcast.New(bcfg, ad, log.With(logx.String("comp", "broadcast")))

	spec, _ := mapSchedule(cfg)
	loop := relay.New(spec.Schedule, fetcher, bc, state.Destinations, bus, log.With(logx.String("comp", "relay")))

	var selfID int64
	var username string
	if si, ok := ad.(kit.SelfIdentifier); ok {
		selfID = si.SelfID()
		username = si.Username()
	}
	cmds := commands.New(mapCommandsConfig(cfg), commands.Deps{
		Sender:   ad,
		Registry: state.Destinations,
		SelfID:   selfID,
		Username: username,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "commands")),
	})

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		state:   state,
		fetcher: fetcher,
		bc:      bc,
		loop:    loop,
		cmds:    cmds,
		sd:      systemd.New(log.With(logx.String("comp", "systemd"))),
		updates: make(chan kit.Update, 256),
	}

	obsCfg, _ := mapObservabilityConfig(cfg)
	a.obs = observability.New(obsCfg, a.health, log.With(logx.String("comp", "observability")))

	built = true
	appLog.Info("initialized",
		logx.String("config", cfgPath),
		logx.String("schedule", spec.String()),
		logx.Int64("watermark", state.Watermark.Get()),
		logx.Int("destinations", state.Destinations.Len()),
	)
	return a, nil
}

// Observability returns the metrics/health listener.
func (a *App) Observability() *observability.Service { return a.obs }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	if a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		menuCtx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
		if err := mu.UpdateMenuCommands(menuCtx, a.cmds.MenuCommands()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
		cancel()
	}

	if a.obs.Enabled() {
		a.obs.Start(a.sup.Context())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmds.DispatchLoop(c, a.updates)
	})

	// A panic inside a tick restarts the loop; a clean return means shutdown.
	a.sup.GoRestart("relay.loop", a.loop.Run,
		rtsup.WithRestartBackoff(time.Second, time.Minute),
		rtsup.WithStopOnCleanExit(true),
	)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if e.Type == eventbus.TypeBroadcastFinished {
					if res, ok := e.Data.(relay.TickResult); ok {
						a.sd.Status(fmt.Sprintf("last broadcast: %d items, %d delivered, %d failed",
							len(res.Items), res.Report.Delivered, res.Report.Failed()))
					}
				}
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.sd.Ready() {
		if iv := systemd.WatchdogInterval(); iv > 0 {
			a.sup.Go0("systemd.watchdog", func(c context.Context) {
				a.sd.RunWatchdog(c, iv)
			})
		}
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("fields", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	// Mappers were run by the validator before commit; errors here mean a
	// programming bug, so keep the previous settings.
	if req, err := mapNewsRequest(newCfg); err != nil {
		a.log.Warn("invalid news request config; keeping previous", logx.Err(err))
	} else {
		a.fetcher.SetRequest(req)
	}
	if spec, err := mapSchedule(newCfg); err != nil {
		a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
	} else if oldCfg == nil || oldCfg.News.Schedule != newCfg.News.Schedule {
		a.loop.SetSchedule(spec.Schedule)
		a.log.Info("schedule changed", logx.String("schedule", spec.String()))
	}
	if bcfg, err := mapBroadcastConfig(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.bc.Apply(bcfg)
	}
	a.cmds.Apply(mapCommandsConfig(newCfg))
	if ocfg, err := mapObservabilityConfig(newCfg); err != nil {
		a.log.Warn("invalid observability config; keeping previous", logx.Err(err))
	} else {
		a.obs.Reconfigure(ctx, ocfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so the relay loop and workers start unwinding; an
	// in-flight broadcast stops between sends.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("observability", time.Second, func(c context.Context) error { a.obs.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	// Finally, wait for supervised goroutines (relay loop, dispatcher, config watch/reload).
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped", logx.Int64("watermark", a.state.Watermark.Get()))
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
