package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/deusflow/aidigest/internal/filter"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/normalize"
	"github.com/deusflow/aidigest/internal/rss"
	"github.com/deusflow/aidigest/internal/watermark"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	entries map[string][]rss.Entry
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, src rss.Source) ([]rss.Entry, error) {
	f.calls = append(f.calls, src.Name)
	if err := f.errs[src.Name]; err != nil {
		return nil, err
	}
	return f.entries[src.Name], nil
}

type panicBodies struct{}

func (panicBodies) Body(ctx context.Context, src rss.Source, e rss.Entry) string {
	if e.Title == "explode" {
		panic("boom")
	}
	return e.Description
}

type fakeSummarizer struct{ calls int }

func (f *fakeSummarizer) Summarize(ctx context.Context, title, body string) (string, error) {
	f.calls++
	return "generated: " + body, nil
}

type failingMarks struct{ *watermark.Store }

func (failingMarks) Save() error { return errors.New("disk full") }

func stamp(t time.Time) string { return t.Format(time.RFC1123Z) }

func newStore(t *testing.T) *watermark.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), watermark.FileName)
	return watermark.Load(path, logger.Discard(), watermark.WithClock(func() time.Time { return now }))
}

func newEngine(t *testing.T, sources []rss.Source, f Fetcher, marks Watermarks, keywords []string) *Engine {
	t.Helper()
	n := normalize.New(normalize.Options{})
	t.Cleanup(n.Close)
	return New(Config{
		Sources:    sources,
		Fetcher:    f,
		Bodies:     n,
		Watermarks: marks,
		Filter:     filter.New(keywords),
		Log:        logger.Discard(),
		Now:        func() time.Time { return now },
	})
}

func TestScrapeScenario(t *testing.T) {
	yesterday := now.Add(-24 * time.Hour)
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {{
			Title:       "AI breakthrough announced",
			Link:        "https://example.com/ai",
			Description: "machine learning advances",
			Published:   stamp(yesterday),
		}},
	}}
	marks := newStore(t)
	e := newEngine(t, []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}}, f, marks, filter.AIKeywords)

	res, err := e.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	got := res.Categories["news"]
	if len(got) != 1 {
		t.Fatalf("news bucket = %+v", got)
	}
	a := got[0]
	if a.Title != "AI breakthrough announced" || a.Source != "Src" || a.Category != "news" {
		t.Errorf("article = %+v", a)
	}
	if a.Summary != "machine learning advances" || a.Body != "machine learning advances" {
		t.Errorf("summary/body = %q / %q", a.Summary, a.Body)
	}
	if !a.PublishedAt.Equal(yesterday) {
		t.Errorf("PublishedAt = %v", a.PublishedAt)
	}
	if !marks.Get("Src").Equal(yesterday) {
		t.Errorf("watermark = %v, want %v", marks.Get("Src"), yesterday)
	}
	if marks.Dirty() {
		t.Errorf("watermarks not saved at end of run")
	}
	if res.RunID == "" {
		t.Errorf("missing run id")
	}
}

func TestScrapeIdempotent(t *testing.T) {
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {
			{Title: "LLM one", Link: "https://example.com/1", Published: stamp(now.Add(-2 * time.Hour))},
			{Title: "LLM two", Link: "https://example.com/2", Published: stamp(now.Add(-time.Hour))},
		},
	}}
	marks := newStore(t)
	e := newEngine(t, []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}}, f, marks, nil)

	first, _ := e.Scrape(context.Background())
	if len(first.Articles) != 2 {
		t.Fatalf("first run = %d articles", len(first.Articles))
	}
	if first.Articles[0].Title != "LLM two" {
		t.Errorf("articles not newest-first: %q", first.Articles[0].Title)
	}

	second, _ := e.Scrape(context.Background())
	if len(second.Articles) != 0 {
		t.Errorf("second run = %d articles, want 0", len(second.Articles))
	}
	if second.Stats.EntriesStale != 2 {
		t.Errorf("stale = %d, want 2", second.Stats.EntriesStale)
	}
	if !marks.Get("Src").Equal(now.Add(-time.Hour)) {
		t.Errorf("watermark moved: %v", marks.Get("Src"))
	}
}

func TestScrapeIsolatesFailingSource(t *testing.T) {
	f := &fakeFetcher{
		entries: map[string][]rss.Entry{
			"Good": {{Title: "News", Link: "https://good.example/1", Published: stamp(now.Add(-time.Hour))}},
		},
		errs: map[string]error{"Bad": errors.New("connection refused")},
	}
	sources := []rss.Source{
		{Name: "Bad", URL: "https://bad.example/feed", Category: "news"},
		{Name: "Good", URL: "https://good.example/feed", Category: "research"},
	}
	marks := newStore(t)
	e := newEngine(t, sources, f, marks, nil)

	res, err := e.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(res.Categories["research"]) != 1 {
		t.Errorf("good source lost: %+v", res.Categories)
	}
	if items, ok := res.Categories["news"]; !ok || len(items) != 0 {
		t.Errorf("failing source bucket = %v, %v", items, ok)
	}
	if res.Failures["Bad"] == nil || res.Stats.SourcesFailed != 1 || res.Stats.SourcesSucceeded != 1 {
		t.Errorf("failure accounting: %+v %+v", res.Failures, res.Stats)
	}
	if !marks.Get("Bad").Equal(watermark.Default(now)) {
		t.Errorf("failed source watermark changed")
	}
	if len(f.calls) != 2 || f.calls[0] != "Bad" || f.calls[1] != "Good" {
		t.Errorf("sources not processed in order: %v", f.calls)
	}
}

func TestWatermarkAdvancesOverFilteredEntries(t *testing.T) {
	latest := now.Add(-30 * time.Minute)
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {
			{Title: "Quarterly earnings report", Link: "https://example.com/q", Published: stamp(latest)},
			{Title: "New LLM released", Link: "https://example.com/llm", Published: stamp(now.Add(-2 * time.Hour))},
		},
	}}
	marks := newStore(t)
	e := newEngine(t, []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}}, f, marks, []string{"llm"})

	res, _ := e.Scrape(context.Background())
	if len(res.Articles) != 1 || res.Articles[0].Title != "New LLM released" {
		t.Fatalf("articles = %+v", res.Articles)
	}
	if res.Stats.EntriesFiltered != 1 {
		t.Errorf("filtered = %d", res.Stats.EntriesFiltered)
	}
	if !marks.Get("Src").Equal(latest) {
		t.Errorf("watermark = %v, want filtered entry time %v", marks.Get("Src"), latest)
	}
}

func TestSourceWithoutNewEntriesKeepsWatermark(t *testing.T) {
	marks := newStore(t)
	old := now.Add(-6 * time.Hour)
	marks.Set("Src", old)

	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {{Title: "old", Link: "https://example.com/old", Published: stamp(old.Add(-time.Hour))}},
	}}
	e := newEngine(t, []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}}, f, marks, nil)
	e.Scrape(context.Background())

	if !marks.Get("Src").Equal(old) {
		t.Errorf("watermark = %v, want unchanged %v", marks.Get("Src"), old)
	}
}

func TestEntryErrorsAreSkipped(t *testing.T) {
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {
			{Title: "bad date", Link: "https://example.com/a", Published: "sometime last week"},
			{Title: "no link", Published: stamp(now.Add(-time.Hour))},
			{Title: "explode", Link: "https://example.com/b", Published: stamp(now.Add(-time.Hour))},
			{Title: "undated", Link: "https://example.com/c", Description: "fine"},
			{Title: "updated only", Link: "https://example.com/d", Updated: "2024-05-10T09:00:00Z"},
		},
	}}
	e := New(Config{
		Sources:    []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}},
		Fetcher:    f,
		Bodies:     panicBodies{},
		Watermarks: newStore(t),
		Log:        logger.Discard(),
		Now:        func() time.Time { return now },
	})

	res, err := e.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.Stats.EntriesFailed != 3 {
		t.Errorf("failed = %d, want 3", res.Stats.EntriesFailed)
	}
	if len(res.Articles) != 2 {
		t.Fatalf("articles = %+v", res.Articles)
	}
	if res.Articles[0].Title != "undated" || !res.Articles[0].PublishedAt.Equal(now) {
		t.Errorf("undated entry = %+v", res.Articles[0])
	}
	if !res.Articles[1].PublishedAt.Equal(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("updated-only entry time = %v", res.Articles[1].PublishedAt)
	}
}

func TestDuplicateURLsCollapse(t *testing.T) {
	ts := stamp(now.Add(-time.Hour))
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"A": {{Title: "Shared story", Link: "https://example.com/story?utm_source=a", Published: ts}},
		"B": {{Title: "Shared story (syndicated)", Link: "https://example.com/story/", Published: ts}},
	}}
	sources := []rss.Source{
		{Name: "A", URL: "https://a.example/feed", Category: "news"},
		{Name: "B", URL: "https://b.example/feed", Category: "news"},
	}
	e := newEngine(t, sources, f, newStore(t), nil)

	res, _ := e.Scrape(context.Background())
	if len(res.Articles) != 1 || res.Articles[0].Source != "A" {
		t.Fatalf("articles = %+v", res.Articles)
	}
	if res.Stats.EntriesDuplicate != 1 {
		t.Errorf("duplicates = %d", res.Stats.EntriesDuplicate)
	}
}

func TestSummarizerFillsMissingSummary(t *testing.T) {
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {
			{Title: "With content", Link: "https://example.com/1", Content: []rss.ContentPart{{Value: "<p>Body</p>"}}, Published: stamp(now.Add(-time.Hour))},
			{Title: "With description", Link: "https://example.com/2", Description: "given", Published: stamp(now.Add(-time.Hour))},
		},
	}}
	sum := &fakeSummarizer{}
	n := normalize.New(normalize.Options{})
	defer n.Close()
	e := New(Config{
		Sources:    []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}},
		Fetcher:    f,
		Bodies:     n,
		Watermarks: newStore(t),
		Summarizer: sum,
		Log:        logger.Discard(),
		Now:        func() time.Time { return now },
	})

	res, _ := e.Scrape(context.Background())
	if sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", sum.calls)
	}
	for _, a := range res.Articles {
		switch a.ID {
		case "https://example.com/1":
			if a.Summary != "generated: Body" {
				t.Errorf("summary = %q", a.Summary)
			}
		case "https://example.com/2":
			if a.Summary != "given" {
				t.Errorf("summary = %q", a.Summary)
			}
		}
	}
}

func TestScrapeCancelledStillSaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	marks := newStore(t)
	marks.Set("Src", now.Add(-time.Hour))
	f := &fakeFetcher{}
	e := newEngine(t, []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}}, f, marks, nil)

	res, err := e.Scrape(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("fetched after cancellation")
	}
	if marks.Dirty() {
		t.Errorf("watermarks not saved")
	}
	if _, ok := res.Categories["news"]; !ok {
		t.Errorf("partition missing empty bucket")
	}
}

func TestSaveFailureIsNotFatal(t *testing.T) {
	f := &fakeFetcher{entries: map[string][]rss.Entry{
		"Src": {{Title: "x", Link: "https://example.com/x", Published: stamp(now.Add(-time.Hour))}},
	}}
	e := newEngine(t, []rss.Source{{Name: "Src", URL: "https://example.com/feed", Category: "news"}}, f, failingMarks{newStore(t)}, nil)

	res, err := e.Scrape(context.Background())
	if err != nil || len(res.Articles) != 1 {
		t.Errorf("Scrape = %d articles, %v", len(res.Articles), err)
	}
}

var _ Scraper = (*Engine)(nil)
