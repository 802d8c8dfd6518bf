package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/aidigest/internal/errs"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/retry"
)

const maxBodyBytes = 10 << 20

// Options configure a Fetcher. Zero values fall back to sane defaults.
type Options struct {
	Timeout       time.Duration
	SearchTimeout time.Duration
	UserAgent     string
	SearchURL     string // fmt template, %s receives the blog path
	Retry         retry.RetryConfig
	Log           *slog.Logger
	Now           func() time.Time
}

// Fetcher downloads feeds and maps them to entries. Sources with a blog
// path get a web-search fallback when their feed is unavailable.
type Fetcher struct {
	client       *http.Client
	searchClient *http.Client
	userAgent    string
	searchURL    string
	retry        retry.RetryConfig
	log          *slog.Logger
	now          func() time.Time
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "aidigest/1.0"
	}
	if opts.SearchURL == "" {
		opts.SearchURL = "https://www.google.com/search?q=site:%s"
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		client:       &http.Client{Timeout: opts.Timeout},
		searchClient: &http.Client{Timeout: opts.SearchTimeout},
		userAgent:    opts.UserAgent,
		searchURL:    opts.SearchURL,
		retry:        opts.Retry,
		log:          logger.Component(opts.Log, "fetch"),
		now:          opts.Now,
	}
}

// Fetch returns the raw entries of src.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]Entry, error) {
	entries, err := f.fetchFeed(ctx, src)
	if src.BlogPath == "" {
		return entries, err
	}
	if err == nil && len(entries) > 0 {
		return entries, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	if err != nil {
		f.log.Info("feed unavailable, trying search fallback", "source", src.Name, "err", err)
	} else {
		f.log.Info("feed empty, trying search fallback", "source", src.Name)
	}
	return f.searchFallback(ctx, src)
}

func (f *Fetcher) fetchFeed(ctx context.Context, src Source) ([]Entry, error) {
	var body []byte
	err := retry.WithRetry(ctx, f.retry, func() error {
		b, err := f.get(ctx, f.client, src.Name, src.URL)
		if err != nil {
			var fe *errs.FetchError
			if errors.As(err, &fe) && isPermanentStatus(fe.Status) {
				return retry.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		var fe *errs.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &errs.FetchError{Source: src.Name, URL: src.URL, Err: err}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &errs.FetchError{
			Source: src.Name,
			URL:    src.URL,
			Err:    &errs.ParseError{Source: src.Name, What: "feed", Err: err},
		}
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		entries = append(entries, entryFromItem(it))
	}
	f.log.Debug("feed fetched", "source", src.Name, "type", feed.FeedType, "count", len(entries))
	return entries, nil
}

// get performs one GET and returns the body of a 200 response.
func (f *Fetcher) get(ctx context.Context, client *http.Client, source, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.FetchError{Source: source, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &errs.FetchError{Source: source, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &errs.FetchError{Source: source, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &errs.FetchError{Source: source, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// isPermanentStatus reports client errors a retry will not fix.
func isPermanentStatus(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout
}
