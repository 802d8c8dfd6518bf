// Package app wires the pipeline together: ingest, archive, publish,
// upload and notify.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/deusflow/aidigest/internal/archive"
	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/errs"
	"github.com/deusflow/aidigest/internal/filter"
	"github.com/deusflow/aidigest/internal/gemini"
	"github.com/deusflow/aidigest/internal/ingest"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/metrics"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/normalize"
	"github.com/deusflow/aidigest/internal/publish"
	"github.com/deusflow/aidigest/internal/ratelimit"
	"github.com/deusflow/aidigest/internal/retry"
	"github.com/deusflow/aidigest/internal/rss"
	"github.com/deusflow/aidigest/internal/scraper"
	"github.com/deusflow/aidigest/internal/telegram"
	"github.com/deusflow/aidigest/internal/watermark"
)

// Report summarises one run.
type Report struct {
	RunID        string
	Articles     int
	ArchiveAdded int
	ArchiveTotal int
	Feeds        int
	Uploaded     int
	Notified     bool
	Stats        metrics.RunStats
	Failures     map[string]error
	Watermarks   map[string]time.Time // after the run
	Duration     time.Duration
}

// Runner executes runs against one configuration. The page cache, the
// request budget and the metrics live as long as the Runner, so scheduled
// runs share them.
type Runner struct {
	cfg     *config.Config
	log     *slog.Logger
	Metrics *metrics.Metrics

	budget     *ratelimit.Budget
	normalizer *normalize.Normalizer
	now        func() time.Time

	telegramOpts []telegram.Option
}

func New(cfg *config.Config, log *slog.Logger) *Runner {
	log = logger.Component(log, "app")
	budget := ratelimit.NewBudget(map[string]int{
		ratelimit.PageFetch: cfg.PageFetchLimit,
		ratelimit.Gemini:    cfg.MaxGeminiRequests,
	}, log)

	return &Runner{
		cfg:     cfg,
		log:     log,
		Metrics: metrics.New(),
		budget:  budget,
		normalizer: normalize.New(normalize.Options{
			Pages:    scraper.NewExtractor(cfg.PageTimeout, cfg.UserAgent),
			Budget:   budget,
			CacheTTL: cfg.PageCacheTTL,
			Log:      log,
		}),
		now: time.Now,
	}
}

// Close releases the page cache.
func (r *Runner) Close() {
	r.normalizer.Close()
}

// Run performs a single run with a fresh Runner.
func Run(ctx context.Context, cfg *config.Config, log *slog.Logger) (Report, error) {
	r := New(cfg, log)
	defer r.Close()
	return r.Run(ctx)
}

// Run ingests every source, merges the result into the archive and
// publishes it. Only configuration and output directory problems, or a
// cancelled context, are returned as errors; everything after ingestion is
// best effort and only logged.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := r.now()
	cfg := r.cfg
	var rep Report

	if err := cfg.Validate(); err != nil {
		return rep, r.fail(err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return rep, r.fail(&errs.PersistenceError{Op: "mkdir", Path: cfg.OutputDir, Err: err})
	}

	reg, err := r.registry()
	if err != nil {
		return rep, r.fail(err)
	}

	marks := watermark.Load(filepath.Join(cfg.OutputDir, watermark.FileName), r.log, watermark.WithClock(r.now))
	if cfg.ForceRefresh {
		r.log.Info("force refresh, ignoring stored watermarks")
		marks.Reset()
	}

	r.budget.Reset()
	fetcher := rss.NewFetcher(rss.Options{
		Timeout:       cfg.RequestTimeout,
		SearchTimeout: cfg.SearchTimeout,
		UserAgent:     cfg.UserAgent,
		SearchURL:     cfg.SearchURL,
		Retry:         retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true},
		Log:           r.log,
		Now:           r.now,
	})

	engineCfg := ingest.Config{
		Sources:    reg.Feeds,
		Fetcher:    fetcher,
		Bodies:     r.normalizer,
		Watermarks: marks,
		Filter:     r.keywords(),
		Log:        r.log,
		Now:        r.now,
	}
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, r.budget, r.log)
		if err != nil {
			r.log.Warn("summaries disabled", "err", err)
		} else {
			defer g.Close()
			engineCfg.Summarizer = g
		}
	}

	res, err := ingest.New(engineCfg).Scrape(ctx)
	rep.RunID = res.RunID
	rep.Stats = res.Stats
	rep.Failures = res.Failures
	rep.Articles = len(res.Articles)
	rep.Watermarks = marks.Snapshot()
	r.Metrics.AddRun(res.Stats)
	if err != nil {
		// Watermarks for the finished sources are already saved, so their
		// articles must reach the archive even though the run stops here.
		r.archive(context.WithoutCancel(ctx), res.Articles, &rep)
		return rep, r.fail(err)
	}

	a := r.archive(ctx, res.Articles, &rep)

	out, err := publish.New(cfg.OutputDir, cfg.SiteURL, r.log).Publish(res.Categories, a.Sorted())
	rep.Feeds = out.Feeds
	r.Metrics.AddFeedsWritten(out.Feeds)
	if err != nil {
		r.log.Error("publishing incomplete", "err", err)
	}

	r.upload(ctx, out.Files, &rep)
	r.notify(ctx, res.Articles, &rep)

	r.Metrics.SetBudget(r.budget.Stats())
	rep.Duration = r.now().Sub(start)
	r.Metrics.RecordRun(rep.RunID, rep.Duration)
	r.log.Info("run finished",
		"run_id", rep.RunID,
		"articles", rep.Articles,
		"archive_added", rep.ArchiveAdded,
		"archive_total", rep.ArchiveTotal,
		"feeds", rep.Feeds,
		"failed_sources", len(rep.Failures),
		"duration", rep.Duration,
	)
	return rep, nil
}

func (r *Runner) fail(err error) error {
	r.Metrics.SetError(err.Error())
	return err
}

func (r *Runner) registry() (*rss.Registry, error) {
	if r.cfg.FeedsConfigPath == "" {
		return rss.DefaultRegistry(), nil
	}
	reg, err := rss.LoadFeeds(r.cfg.FeedsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}

func (r *Runner) keywords() filter.Keywords {
	if !r.cfg.AIOnly {
		return filter.New(nil)
	}
	if len(r.cfg.Keywords) > 0 {
		return filter.New(r.cfg.Keywords)
	}
	return filter.New(filter.AIKeywords)
}

func (r *Runner) archive(ctx context.Context, articles []news.Article, rep *Report) *archive.Archive {
	mirror, closeMirror := openMirror(ctx, r.cfg.ArchiveDatabaseURL, r.log)
	defer closeMirror()

	store := archive.NewFileStore(filepath.Join(r.cfg.OutputDir, archive.FileName), r.log)
	a, added, err := archive.Run(ctx, store, mirror, articles, r.now(), r.log)
	if err != nil {
		r.log.Error("archive not saved", "err", err)
	}
	rep.ArchiveAdded = len(added)
	rep.ArchiveTotal = a.TotalArticles
	r.Metrics.AddArchived(len(added))
	return a
}

func (r *Runner) upload(ctx context.Context, files []string, rep *Report) {
	if !r.cfg.S3.Configured() || len(files) == 0 {
		return
	}
	up, err := publish.NewS3Uploader(ctx, r.cfg.S3, r.log)
	if err != nil {
		r.log.Error("upload skipped", "err", err)
		return
	}
	n, err := up.Upload(ctx, r.cfg.OutputDir, files)
	rep.Uploaded = n
	if err != nil {
		r.log.Error("upload incomplete", "uploaded", n, "err", err)
	}
}

func (r *Runner) notify(ctx context.Context, articles []news.Article, rep *Report) {
	if !r.cfg.TelegramEnabled() || len(articles) == 0 {
		return
	}
	client := telegram.NewClient(r.cfg.TelegramToken, r.cfg.TelegramChatID, r.log, r.telegramOpts...)
	if err := client.NotifyDigest(ctx, articles, r.cfg.MaxNotify); err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error("notification failed", "err", err)
		}
		return
	}
	rep.Notified = true
}
