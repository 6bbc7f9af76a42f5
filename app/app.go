package app

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/netglance/netglance/monitor"
	"github.com/netglance/netglance/rollup"
	"github.com/netglance/netglance/scheduler"
	"github.com/netglance/netglance/share/logger"
	"github.com/netglance/netglance/share/models"
)

// settings table keys; values stored there override the file config on the
// next start so runtime changes survive restarts
const (
	SettingPollingInterval = "polling_interval"
	SettingSelectedAdapter = "selected_adapter"
	SettingShowVirtual     = "show_virtual"
)

// App wires the sampling monitor to the rollup engine and runs the periodic
// aggregation and cleanup tasks.
type App struct {
	cfg    *Config
	logger *logger.Logger

	db      rollup.DBProvider
	rollup  rollup.Rollup
	monitor *monitor.Monitor
	aggTask *rollup.AggregationTask
}

func NewApp(cfg *Config) (*App, error) {
	log := logger.NewLogger("netglance", cfg.LogOutput, cfg.LogLevel)

	db, err := rollup.NewSqliteProvider(cfg.DBPath, log.Fork("db"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to init usage database")
	}

	engine := rollup.Bootstrap(log, db)

	m := monitor.New(log.Fork("monitor"), monitor.Config{
		Interval: cfg.Monitoring.Interval,
	}, monitor.NewGopsutilProvider())
	m.SetAdapter(cfg.Monitoring.Adapter)
	m.SetShowVirtual(cfg.Monitoring.ShowVirtual)

	return &App{
		cfg:     cfg,
		logger:  log,
		db:      db,
		rollup:  engine,
		monitor: m,
		aggTask: rollup.NewAggregationTask(log.Fork("aggregation"), m.SampleBuffer(), engine),
	}, nil
}

// Run blocks until ctx is canceled, then shuts down in dependency order:
// sampling first, then a final aggregation flush, then the write queue,
// then the database.
func (a *App) Run(ctx context.Context) error {
	a.applyStoredSettings(ctx)

	a.monitor.Subscribe(&persistingListener{rollup: a.rollup, monitor: a.monitor, logger: a.logger})
	a.monitor.Start(ctx)

	cleanupTask := rollup.NewCleanupTask(a.logger.Fork("cleanup"), a.rollup, a.cfg.Rollup.Retention)
	go scheduler.Run(ctx, a.logger.Fork("aggregation-scheduler"), a.aggTask, a.cfg.Rollup.AggregationInterval)
	go scheduler.Run(ctx, a.logger.Fork("cleanup-scheduler"), cleanupTask, a.cfg.Rollup.CleanupInterval)

	a.logger.Infof("monitoring every %s, database %s", a.cfg.Monitoring.Interval, a.cfg.DBPath)
	<-ctx.Done()

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.monitor.Stop()

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.aggTask.Flush(flushCtx); err != nil {
		a.logger.Errorf("final aggregation failed: %v", err)
	}

	if err := a.rollup.Close(); err != nil {
		a.logger.Errorf("failed to close record queue: %v", err)
	}
	if err := a.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close usage database")
	}
	a.logger.Infof("shutdown complete")
	return nil
}

// applyStoredSettings lets persisted runtime settings take precedence over
// the file config. Unknown or malformed values are logged and skipped.
func (a *App) applyStoredSettings(ctx context.Context) {
	settings, err := a.rollup.GetSettings(ctx)
	if err != nil {
		a.logger.Errorf("failed to load stored settings: %v", err)
		return
	}

	if raw, ok := settings[SettingPollingInterval]; ok {
		if interval, err := str2duration.ParseDuration(raw); err == nil {
			applied := a.monitor.SetPollingInterval(interval)
			a.logger.Debugf("polling interval from settings: %s", applied)
		} else {
			a.logger.Errorf("bad stored %s %q: %v", SettingPollingInterval, raw, err)
		}
	}
	if adapter, ok := settings[SettingSelectedAdapter]; ok {
		a.monitor.SetAdapter(adapter)
	}
	if raw, ok := settings[SettingShowVirtual]; ok {
		if show, err := strconv.ParseBool(raw); err == nil {
			a.monitor.SetShowVirtual(show)
		} else {
			a.logger.Errorf("bad stored %s %q: %v", SettingShowVirtual, raw, err)
		}
	}
}

// SetPollingInterval applies and persists a new polling interval; the
// returned value is the clamped one actually in effect.
func (a *App) SetPollingInterval(ctx context.Context, interval time.Duration) (time.Duration, error) {
	applied := a.monitor.SetPollingInterval(interval)
	err := a.rollup.SaveSetting(ctx, SettingPollingInterval, applied.String())
	return applied, err
}

// SetAdapter applies and persists the adapter selection.
func (a *App) SetAdapter(ctx context.Context, id string) error {
	a.monitor.SetAdapter(id)
	return a.rollup.SaveSetting(ctx, SettingSelectedAdapter, id)
}

// SetShowVirtual applies and persists the virtual-adapter visibility flag.
func (a *App) SetShowVirtual(ctx context.Context, show bool) error {
	a.monitor.SetShowVirtual(show)
	return a.rollup.SaveSetting(ctx, SettingShowVirtual, strconv.FormatBool(show))
}

// Monitor exposes the live sampling surface for presentation layers.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Rollup exposes the historical query surface.
func (a *App) Rollup() rollup.Service {
	return a.rollup
}

// persistingListener forwards each completed poll to the rollup queue
// without blocking the sampling loop.
type persistingListener struct {
	rollup  rollup.RecordSaver
	monitor *monitor.Monitor
	logger  *logger.Logger
}

func (l *persistingListener) StatsUpdated(stats models.NetworkStats) {
	l.rollup.Notify(stats)
	l.rollup.NotifyApps(l.monitor.ProcessSnapshots())
}

func (l *persistingListener) ErrorOccurred(err error, requiresElevation bool) {
	if requiresElevation {
		l.logger.Infof("some counters need elevated privileges: %v", err)
		return
	}
	l.logger.Debugf("poll error: %v", err)
}
