package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobwatcher/internal/classify"
	"jobwatcher/internal/config"
	"jobwatcher/internal/delivery"
	"jobwatcher/internal/domain"
	"jobwatcher/internal/feed"
	"jobwatcher/internal/infrastructure/scheduler"
	"jobwatcher/internal/infrastructure/telegram"
	"jobwatcher/internal/ledger"
	"jobwatcher/internal/logging"
	"jobwatcher/internal/usecase"
)

// Application assembles the pipeline from configuration and owns the
// lifetimes of its long-lived pieces.
type Application struct {
	cfg      config.Config
	log      *slog.Logger
	store    *ledger.Store
	sink     *telegram.Sink
	compiler *classify.Compiler
	pipeline *usecase.Pipeline
}

// New wires everything up. A broken ledger or Telegram credentials are
// fatal here rather than mid-run.
func New(cfg config.Config, log *slog.Logger) (*Application, error) {
	if log == nil {
		log = logging.New(cfg.Logging.Level)
	}

	store, err := ledger.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	sink, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		logging.Component(log, "telegram"))
	if err != nil {
		store.Close()
		return nil, err
	}

	compiler := classify.NewCompiler()
	classifier := compiler.Classifier(markerConfig(cfg.Markers), thresholds(cfg.Thresholds),
		logging.Component(log, "classify"))

	batcher := delivery.NewBatcher(sink, batcherOptions(cfg.Delivery),
		logging.Component(log, "delivery"))

	registry := feed.NewRegistry()
	registry.Register(feed.NewWebPreview(nil, logging.Component(log, "feed")))
	source, err := registry.Resolve(cfg.Scan.Feed)
	if err != nil {
		store.Close()
		return nil, err
	}

	pipeline, err := usecase.NewPipeline(usecase.Deps{
		Channels:     cfg.Channels,
		Feed:         source,
		Ledger:       store,
		Classifier:   classifier,
		Batcher:      batcher,
		PreviewLimit: cfg.Delivery.PreviewLimit,
		PerChannel:   cfg.Scan.PerChannelLimit,
		Log:          logging.Component(log, "pipeline"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Application{
		cfg:      cfg,
		log:      log,
		store:    store,
		sink:     sink,
		compiler: compiler,
		pipeline: pipeline,
	}, nil
}

// ScanOnce runs a single scan over the given lookback window.
func (a *Application) ScanOnce(ctx context.Context, hours int) error {
	if hours <= 0 {
		hours = a.cfg.Scan.LookbackHours
	}
	_, err := a.pipeline.Run(ctx, time.Duration(hours)*time.Hour)
	return err
}

// ScanScheduled runs scans on the configured cron expression until ctx
// is cancelled. Failures of individual runs are logged; the schedule
// keeps going.
func (a *Application) ScanScheduled(ctx context.Context) error {
	sched := scheduler.New(a.cfg.Scan.Cron, a.cfg.Scan.Location())
	err := sched.Start(ctx, func(at time.Time) {
		a.log.Info("scheduled scan starting", "at", at.Format(time.RFC3339))
		runCtx, cancel := context.WithTimeout(ctx, time.Hour)
		defer cancel()
		if err := a.ScanOnce(runCtx, 0); err != nil {
			a.log.Error("scheduled scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.log.Info("scheduler started", "cron", a.cfg.Scan.Cron, "timezone", a.cfg.Scan.Location().String())

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Watch runs live mode: the bot listens for channel posts and every
// qualifying one is delivered as it arrives. The config file is
// watched so marker edits take effect without a restart.
func (a *Application) Watch(ctx context.Context, configPath string) error {
	classifier := a.compiler.Classifier(markerConfig(a.cfg.Markers), thresholds(a.cfg.Thresholds),
		logging.Component(a.log, "classify"))
	batcher := delivery.NewBatcher(a.sink, batcherOptions(a.cfg.Delivery),
		logging.Component(a.log, "delivery"))

	watcher, err := usecase.NewWatcher(usecase.WatcherDeps{
		Ledger:       a.store,
		Classifier:   classifier,
		Batcher:      batcher,
		PreviewLimit: a.cfg.Delivery.PreviewLimit,
		Log:          logging.Component(a.log, "watcher"),
	})
	if err != nil {
		return err
	}

	posts := make(chan domain.Message, 64)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logging.Component(a.log, "config"), func(next config.Config) {
				watcher.Swap(a.compiler.Classifier(markerConfig(next.Markers), thresholds(next.Thresholds),
					logging.Component(a.log, "classify")))
			})
			if err != nil && ctx.Err() == nil {
				a.log.Warn("config watch stopped", "error", err)
			}
		}()
	}

	go a.sink.Listen(ctx, posts)

	return watcher.Run(ctx, posts)
}

// Close releases the ledger.
func (a *Application) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("ledger close failed", "error", err)
	}
}

func markerConfig(m config.MarkersConfig) classify.MarkerConfig {
	return classify.MarkerConfig{
		Ignore:         m.Ignore,
		StrongNegative: m.StrongNegative,
		Negative:       m.Negative,
		Acceptable:     m.Acceptable,
		Excellent:      m.Excellent,
	}
}

func thresholds(t config.ThresholdsConfig) classify.Thresholds {
	return classify.Thresholds{Target: t.Target, Alternative: t.Alternative, Maybe: t.Maybe}
}

func batcherOptions(d config.DeliveryConfig) delivery.Options {
	return delivery.Options{
		MessageLimit: d.MessageLimit,
		Pause:        d.Pause(),
		Grouping:     delivery.Grouping(d.Grouping),
		VerdictOrder: d.VerdictOrder,
		SummaryFirst: d.SendSummaryFirst(),
	}
}
