package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jobwatcher/internal/app"
	"jobwatcher/internal/config"
	"jobwatcher/internal/logging"
)

func main() {
	mode := flag.String("mode", "scan", "run mode: scan (channel history) or watch (live channel posts)")
	hours := flag.Int("hours", 0, "lookback window in hours for -once (0 uses the configured default)")
	once := flag.Bool("once", false, "in scan mode, run a single scan and exit instead of following the cron schedule")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.Logging.Level)

	if err := run(cfg, log, *mode, *hours, *once); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("jobwatcher stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger, mode string, hours int, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch mode {
	case "scan":
		if once {
			return a.ScanOnce(ctx, hours)
		}
		return a.ScanScheduled(ctx)
	case "watch":
		path := os.Getenv("JOBWATCHER_CONFIG")
		if path == "" {
			path = "config.yaml"
		}
		return a.Watch(ctx, path)
	default:
		return fmt.Errorf("unknown mode %q (want scan or watch)", mode)
	}
}
