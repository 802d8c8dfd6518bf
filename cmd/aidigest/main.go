package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/aidigest/internal/app"
	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if cfg == nil {
		fmt.Fprintf(os.Stderr, "aidigest: %v\n", err)
		return 1
	}

	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for feeds, pages and state files")
	flag.BoolVar(&cfg.AIOnly, "ai-only", cfg.AIOnly, "keep only AI-related articles")
	flag.BoolVar(&cfg.ForceRefresh, "force-refresh", cfg.ForceRefresh, "ignore stored watermarks for this run")
	flag.StringVar(&cfg.FeedsConfigPath, "feeds", cfg.FeedsConfigPath, "feed registry YAML (built-in list when empty)")
	flag.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "cron expression; run repeatedly instead of once")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	flag.Parse()

	log := logger.New(os.Stderr, logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.New(cfg, log)
	defer runner.Close()

	if cfg.MonitoringEnabled {
		go func() {
			if err := app.ServeMonitoring(ctx, ":"+cfg.MonitoringPort, runner.Metrics, log); err != nil {
				log.Error("monitoring server stopped", "err", err)
			}
		}()
	}

	if cfg.Schedule != "" {
		err = runner.Schedule(ctx, cfg.Schedule)
	} else {
		_, err = runner.Run(ctx)
	}
	if err != nil {
		log.Error("aidigest failed", "err", err)
		return 1
	}
	return 0
}
