package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sellerbot/internal/autoresponse"
	"sellerbot/internal/config"
	"sellerbot/internal/dedup"
	"sellerbot/internal/digest"
	"sellerbot/internal/dispatch"
	"sellerbot/internal/eventbus"
	"sellerbot/internal/marketplace"
	"sellerbot/internal/metrics"
	"sellerbot/internal/notifier"
	"sellerbot/internal/ops"
	"sellerbot/internal/plugin"
	"sellerbot/internal/plugin/builtin/status"
	rtsup "sellerbot/internal/runtime/supervisor"
	"sellerbot/internal/stock"
	"sellerbot/internal/storage"
	kit "sellerbot/internal/transport"
	"sellerbot/internal/transport/telegram"
	logx "sellerbot/pkg/logx"
)

// Options are the process-level inputs that do not come from the config file.
type Options struct {
	ConfigPath string
	// Events is read as JSON lines and fed to the dispatcher. Optional; the
	// ops listener can ingest events too.
	Events io.Reader
	// Sender replaces the dry-run log sender used when no bot token is set.
	Sender kit.Sender
	// Modules are compiled-in plugin modules loaded next to the built-ins.
	Modules []plugin.Module
}

type App struct {
	opts Options
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	ledger storage.Ledger

	adapter *telegram.Adapter // nil without a bot token
	account marketplace.Account

	notif   *notifier.Service
	seen    *dedup.Store
	stock   *stock.Queue
	disp    *dispatch.Dispatcher
	plugins *plugin.Runtime
	metrics *metrics.Metrics
	ops     *ops.Service
	digest  *digest.Service

	events  chan marketplace.Event
	updates chan kit.Update
}

func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateReload(context.Background(), cfg); err != nil {
		return nil, err
	}

	// The chat sink gets its sender once the notifier exists.
	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	a := &App{
		opts:    opts,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		events:  make(chan marketplace.Event, cfg.Dispatch.Queue()),
		updates: make(chan kit.Update, 256),
	}

	var sender kit.Sender
	switch {
	case strings.TrimSpace(cfg.Telegram.Token) != "":
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, root.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.adapter, sender = ad, ad
	case opts.Sender != nil:
		sender = opts.Sender
	default:
		log.Warn("telegram.token not set; operator messages are only logged")
		sender = &notifier.LogSender{Log: root.With(logx.String("comp", "notifier"))}
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ledger, err = storage.Open(sc, root)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	log.Info("ledger opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	if sc.Driver == "memory" {
		log.Warn("memory ledger: dedup window and stock are lost on restart")
	}

	a.notif = notifier.New(mapNotifierConfig(cfg), sender, root.With(logx.String("comp", "notifier")), a.bus)
	logSvc.SetSender(a.notif)

	a.account, err = newAccount(cfg, root)
	if err != nil {
		_ = a.ledger.Close()
		return nil, err
	}

	responses := autoresponse.NewStore(cfg.AutoResponse.Path, root)
	responder := autoresponse.NewEngine(responses, a.account, autoresponse.WithBus(a.bus), autoresponse.WithLogger(root))
	reviewer := autoresponse.NewReviewEngine(responses, a.account, autoresponse.WithBus(a.bus), autoresponse.WithLogger(root))

	a.seen = dedup.New(a.ledger, cfg.Dispatch.SetName(), cfg.Dispatch.Capacity(), root)
	a.stock = stock.NewQueue(a.ledger, stock.WithBus(a.bus), stock.WithLogger(root))
	deliverer := stock.NewDeliverer(a.stock, a.account, a.notif, root)

	modules := append([]plugin.Module{status.Module(a, a.stock, a.notif)}, opts.Modules...)
	a.plugins = plugin.New(plugin.Deps{
		Account: a.account,
		Stock:   a.stock,
		Bot:     a.notif,
		Config:  cfg.Plugins.Settings,
		Admins:  cfg.Telegram.AdminIDs,
		Bus:     a.bus,
		Log:     root,
	}, plugin.WithModules(modules...), plugin.WithDisabled(cfg.Plugins.Disabled...))

	a.disp = dispatch.New(dispatch.Deps{
		Seen:      a.seen,
		Sink:      a.notif,
		Account:   a.account,
		Responder: responder,
		Reviewer:  reviewer,
		Deliverer: deliverer,
		Plugins:   a.plugins,
		Bus:       a.bus,
		Log:       root,
	}, dispatch.WithWarmup(cfg.Dispatch.WarmupDuration()), dispatch.WithPolicy(mapPolicy(cfg)))

	a.metrics = metrics.New()
	a.metrics.Gauge("dedup_keys", "Event keys in the dedup window.", func() float64 { return float64(a.seen.Len()) })
	a.metrics.Gauge("event_queue_length", "Events waiting for the dispatcher.", func() float64 { return float64(len(a.events)) })
	a.metrics.Gauge("plugins_active", "Active plugins.", func() float64 { return float64(len(a.plugins.List())) })

	a.ops = ops.New(mapOpsConfig(cfg), ops.Deps{
		Metrics: a.metrics.Handler(),
		Ingest:  a.Ingest,
		Health:  a.health,
	}, root.With(logx.String("comp", "ops")))

	dc, err := mapDigestConfig(cfg)
	if err != nil {
		_ = a.ledger.Close()
		return nil, err
	}
	a.digest = digest.New(dc, a, a.stock, a.notif, root.With(logx.String("comp", "digest")))

	return a, nil
}

func newAccount(cfg *config.Config, log logx.Logger) (marketplace.Account, error) {
	ac := cfg.Account
	if strings.TrimSpace(ac.GatewayURL) == "" {
		log.Warn("account.gateway_url not set; account commands are only logged")
		return marketplace.LogAccount{Name: ac.Username, Log: log.With(logx.String("comp", "account"))}, nil
	}
	timeout, err := config.ParseDurationField("account.timeout", ac.Timeout)
	if err != nil {
		return nil, err
	}
	gw, err := marketplace.NewGateway(marketplace.GatewayConfig{
		BaseURL:  ac.GatewayURL,
		Token:    ac.Token,
		Username: ac.Username,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func (a *App) Stock() *stock.Queue { return a.stock }

func (a *App) Plugins() *plugin.Runtime { return a.plugins }

func (a *App) Seen() *dedup.Store { return a.seen }

func (a *App) Ops() *ops.Service { return a.ops }

// Stats reports dispatcher counters for the status command and the digest.
func (a *App) Stats() dispatch.StatsSnapshot { return a.disp.Stats() }

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

// Ingest queues ev for the dispatcher without blocking.
func (a *App) Ingest(ctx context.Context, ev marketplace.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case a.events <- ev:
		return nil
	default:
		return ops.ErrQueueFull
	}
}

func (a *App) health() map[string]any {
	st := a.disp.Stats()
	return map[string]any{
		"uptime":      dispatch.FormatUptime(st.Uptime),
		"dedup_keys":  a.seen.Len(),
		"queue":       len(a.events),
		"plugins":     len(a.plugins.List()),
		"goroutines":  a.sup.Counters().Active,
		"telegram":    a.adapter != nil,
		"next_digest": a.digest.Next(),
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	c := a.sup.Context()
	a.seen.Load(c)

	if a.adapter != nil {
		if err := a.adapter.Start(c, a.updates); err != nil {
			return err
		}
		a.sup.Go0("updates.dispatch", func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case up := <-a.updates:
					a.plugins.HandleUpdate(c, up, a.adapter)
				}
			}
		})
	}
	a.notif.Start(c)

	if _, err := a.plugins.Load(c, a.cfgm.Get().Plugins.Dir); err != nil {
		return fmt.Errorf("plugins: %w", err)
	}
	if a.adapter != nil {
		if err := a.adapter.UpdateMenuCommands(c, a.plugins.Commands()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	}

	a.sup.Go("dispatch", func(c context.Context) error { return a.disp.Run(c, a.events) })
	if r := a.opts.Events; r != nil {
		a.sup.Go("source.events", func(c context.Context) error {
			if err := marketplace.ReadJSONL(c, r, a.events, a.log.With(logx.String("comp", "source"))); err != nil {
				return err
			}
			a.log.Info("event source drained")
			return nil
		})
	}

	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus, a.log) })
	if a.ops.Enabled() {
		a.ops.Start(c)
	}
	if err := a.digest.Start(c); err != nil {
		return err
	}

	if a.bus != nil {
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
					a.log.Debug("event", logx.String("type", e.Type), logx.String("kind", e.Kind), logx.Any("data", e.Data))
				}
			}
		})
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Int("plugins", len(a.plugins.List())),
		logx.Int("dedup_keys", a.seen.Len()),
		logx.Bool("telegram", a.adapter != nil),
	)
	return nil
}

func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
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
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// apply hot-swaps everything that can change without a restart.
func (a *App) apply(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.notif.Apply(mapNotifierConfig(newCfg))
	a.disp.Apply(mapPolicy(newCfg))
	a.ops.Reconfigure(c, mapOpsConfig(newCfg))

	if dc, err := mapDigestConfig(newCfg); err != nil {
		a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
	} else if err := a.digest.Apply(dc); err != nil {
		a.log.Warn("digest reschedule failed; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			// respect the caller's deadline; never extend it
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("plugins", 4*time.Second, func(context.Context) error { a.plugins.Stop(); return nil })
	step("digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.adapter != nil {
		step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	}
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("dedup", time.Second, func(c context.Context) error { return a.seen.Persist(c) })
	step("ledger", time.Second, func(context.Context) error { return a.ledger.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
