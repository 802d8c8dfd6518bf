// Package ingest runs one pass over the source registry and turns new,
// relevant feed entries into articles.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/aidigest/internal/datetime"
	"github.com/deusflow/aidigest/internal/errs"
	"github.com/deusflow/aidigest/internal/filter"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/metrics"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/rss"
	"github.com/deusflow/aidigest/internal/scraper"
)

// Scraper performs one ingestion run.
type Scraper interface {
	Scrape(ctx context.Context) (Result, error)
}

// Fetcher retrieves the raw entries of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src rss.Source) ([]rss.Entry, error)
}

// BodyExtractor turns an entry into body text.
type BodyExtractor interface {
	Body(ctx context.Context, src rss.Source, e rss.Entry) string
}

// Watermarks is the per-source high-water mark table.
type Watermarks interface {
	Get(source string) time.Time
	Set(source string, t time.Time) bool
	Save() error
}

// Summarizer derives a summary when a feed provides none.
type Summarizer interface {
	Summarize(ctx context.Context, title, body string) (string, error)
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	Categories news.Partition
	Articles   []news.Article // every accepted article, newest-first
	Stats      metrics.RunStats
	Failures   map[string]error // by source name
}

type Config struct {
	Sources    []rss.Source
	Fetcher    Fetcher
	Bodies     BodyExtractor
	Watermarks Watermarks
	Filter     filter.Keywords
	Summarizer Summarizer // optional
	Log        *slog.Logger
	Now        func() time.Time
}

// Engine processes sources strictly one after another. A failing source
// or entry is logged and skipped; it never aborts the run.
type Engine struct {
	sources    []rss.Source
	fetcher    Fetcher
	bodies     BodyExtractor
	marks      Watermarks
	filter     filter.Keywords
	summarizer Summarizer
	log        *slog.Logger
	now        func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		sources:    cfg.Sources,
		fetcher:    cfg.Fetcher,
		bodies:     cfg.Bodies,
		marks:      cfg.Watermarks,
		filter:     cfg.Filter,
		summarizer: cfg.Summarizer,
		log:        logger.Component(cfg.Log, "ingest"),
		now:        cfg.Now,
	}
}

type outcome int

const (
	accepted outcome = iota
	stale
	filtered
	duplicate
	failed
)

// Scrape runs every source and saves the watermarks at the end. The error
// is non-nil only when ctx ended the run early; the result then holds what
// was gathered so far.
func (e *Engine) Scrape(ctx context.Context) (Result, error) {
	res := Result{
		RunID:      uuid.NewString(),
		Categories: news.NewPartition(categories(e.sources)),
		Failures:   make(map[string]error),
	}
	log := e.log.With("run_id", res.RunID)
	seen := make(map[string]struct{})

	var runErr error
	for _, src := range e.sources {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted before %s: %w", src.Name, err)
			break
		}
		e.scrapeSource(ctx, log, src, seen, &res)
	}

	if err := e.marks.Save(); err != nil {
		log.Error("saving watermarks failed", "err", err)
	}

	res.Categories.Sort()
	res.Articles = res.Categories.All()
	res.Stats.ArticlesIngested = len(res.Articles)

	log.Info("ingestion finished",
		"articles", len(res.Articles),
		"sources_ok", res.Stats.SourcesSucceeded,
		"sources_failed", res.Stats.SourcesFailed,
		"filtered", res.Stats.EntriesFiltered,
	)
	return res, runErr
}

func (e *Engine) scrapeSource(ctx context.Context, log *slog.Logger, src rss.Source, seen map[string]struct{}, res *Result) {
	log = log.With("source", src.Name)
	wm := e.marks.Get(src.Name)
	now := e.now().UTC()

	entries, err := e.fetcher.Fetch(ctx, src)
	if err != nil {
		log.Error("fetching source failed", "url", src.URL, "err", err)
		res.Stats.SourcesFailed++
		res.Failures[src.Name] = err
		return
	}
	res.Stats.SourcesSucceeded++

	var maxSeen time.Time
	var added int
	for _, entry := range entries {
		res.Stats.EntriesSeen++

		a, ts, out, err := e.processEntry(ctx, src, entry, wm, now, seen)
		if ts.After(maxSeen) {
			maxSeen = ts
		}

		switch out {
		case accepted:
			seen[a.ID] = struct{}{}
			res.Categories.Add(a)
			added++
		case stale:
			res.Stats.EntriesStale++
		case filtered:
			res.Stats.EntriesFiltered++
		case duplicate:
			res.Stats.EntriesDuplicate++
		case failed:
			res.Stats.EntriesFailed++
			log.Warn("skipping entry", "title", entry.Title, "url", entry.Link, "err", err)
		}
	}

	if maxSeen.After(wm) {
		e.marks.Set(src.Name, maxSeen)
	}
	log.Info("source scraped", "entries", len(entries), "new", added, "watermark", datetime.Format(e.marks.Get(src.Name)))
}

// processEntry classifies one entry. The returned timestamp is set whenever
// it could be determined, including for stale and filtered entries.
func (e *Engine) processEntry(ctx context.Context, src rss.Source, en rss.Entry, wm, now time.Time, seen map[string]struct{}) (a news.Article, ts time.Time, out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, out, err = news.Article{}, failed, fmt.Errorf("panic processing entry: %v", r)
		}
	}()

	ts, err = entryTime(src.Name, en, now)
	if err != nil {
		return news.Article{}, time.Time{}, failed, err
	}
	if !ts.After(wm) {
		return news.Article{}, ts, stale, nil
	}

	id := news.CanonicalURL(en.Link)
	if id == "" {
		return news.Article{}, ts, failed, &errs.ParseError{Source: src.Name, What: "entry link", Err: errors.New("entry has no link")}
	}
	if _, dup := seen[id]; dup {
		return news.Article{}, ts, duplicate, nil
	}

	body := e.bodies.Body(ctx, src, en)
	if !e.filter.Accept(en.Title, en.Description, body) {
		return news.Article{}, ts, filtered, nil
	}

	a = news.Article{
		ID:          id,
		Title:       strings.TrimSpace(en.Title),
		Body:        body,
		Summary:     strings.TrimSpace(en.Description),
		URL:         en.Link,
		Source:      src.Name,
		Category:    src.Category,
		Author:      en.Author,
		PublishedAt: ts,
	}
	if a.Summary == "" && e.summarizer != nil && body != "" {
		summary, err := e.summarizer.Summarize(ctx, a.Title, scraper.StripHTML(body))
		if err != nil {
			e.log.Debug("summary not generated", "source", src.Name, "url", en.Link, "err", err)
		} else {
			a.Summary = summary
		}
	}
	return a, ts, accepted, nil
}

// entryTime picks the published time, then the updated time, then now.
// A timestamp that is present but unreadable is an error.
func entryTime(source string, en rss.Entry, now time.Time) (time.Time, error) {
	candidates := []struct {
		name   string
		raw    string
		parsed *time.Time
	}{
		{"published", en.Published, en.PublishedParsed},
		{"updated", en.Updated, en.UpdatedParsed},
	}
	for _, c := range candidates {
		if strings.TrimSpace(c.raw) != "" {
			t, err := datetime.Parse(c.raw)
			if err == nil {
				return t, nil
			}
			if c.parsed != nil {
				return c.parsed.UTC(), nil
			}
			return time.Time{}, &errs.ParseError{Source: source, What: c.name + " timestamp", Err: err}
		}
		if c.parsed != nil {
			return c.parsed.UTC(), nil
		}
	}
	return now, nil
}

func categories(sources []rss.Source) []string {
	reg := rss.Registry{Feeds: sources}
	return reg.Categories()
}
