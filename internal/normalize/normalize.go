// Package normalize turns the differently shaped entries of each feed
// dialect into a single body string.
package normalize

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/cache"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/ratelimit"
	"github.com/deusflow/aidigest/internal/rss"
)

// Dialect names how a source lays out entry content.
type Dialect string

const (
	Default          Dialect = "default"
	ContentFirst     Dialect = "content-first"
	DescriptionFirst Dialect = "description-first"
)

// Extractor pulls a body out of an entry. FetchPage allows a secondary
// request for the linked page when the entry itself carries no text.
type Extractor struct {
	Extract   func(rss.Entry) string
	FetchPage bool
}

var extractors = map[Dialect]Extractor{
	Default:          {Extract: contentFirst},
	ContentFirst:     {Extract: contentFirst},
	DescriptionFirst: {Extract: descriptionFirst, FetchPage: true},
}

// Known reports whether d has a registered extractor.
func Known(d Dialect) bool {
	_, ok := extractors[d]
	return ok
}

// Rule maps sources to a dialect by name or URL substring.
type Rule struct {
	Dialect     Dialect
	Name        string
	URLContains string
}

// DefaultRules is consulted when a source does not name its dialect.
var DefaultRules = []Rule{
	{Dialect: ContentFirst, URLContains: "huggingface.co"},
	{Dialect: ContentFirst, URLContains: "blog.google"},
	{Dialect: DescriptionFirst, Name: "OpenAI"},
}

// Resolve picks the dialect for src: explicit setting first, then the
// first matching rule, then Default.
func Resolve(src rss.Source, rules []Rule) Dialect {
	if src.Dialect != "" {
		return Dialect(src.Dialect)
	}
	for _, r := range rules {
		if r.Name != "" && r.Name == src.Name {
			return r.Dialect
		}
		if r.URLContains != "" && strings.Contains(src.URL, r.URLContains) {
			return r.Dialect
		}
	}
	return Default
}

// PageFetcher returns the readable text of a web page.
type PageFetcher interface {
	Extract(ctx context.Context, url string) (string, error)
}

type Options struct {
	Pages    PageFetcher // nil disables secondary page fetches
	Budget   *ratelimit.Budget
	CacheTTL time.Duration
	Rules    []Rule // nil means DefaultRules
	Log      *slog.Logger
}

// Normalizer extracts entry bodies according to each source's dialect.
type Normalizer struct {
	pages  PageFetcher
	budget *ratelimit.Budget
	cache  *cache.Cache[string]
	ttl    time.Duration
	rules  []Rule
	log    *slog.Logger
}

func New(opts Options) *Normalizer {
	if opts.Rules == nil {
		opts.Rules = DefaultRules
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Normalizer{
		pages:  opts.Pages,
		budget: opts.Budget,
		cache:  cache.New[string](opts.CacheTTL),
		ttl:    opts.CacheTTL,
		rules:  opts.Rules,
		log:    logger.Component(opts.Log, "normalize"),
	}
}

// Close releases the page cache.
func (n *Normalizer) Close() { n.cache.Close() }

// Body returns the entry's content as a string, possibly empty. It never
// fails; page fetch problems are logged and yield "".
func (n *Normalizer) Body(ctx context.Context, src rss.Source, e rss.Entry) string {
	d := Resolve(src, n.rules)
	ex, ok := extractors[d]
	if !ok {
		n.log.Warn("unknown dialect, using default", "source", src.Name, "dialect", d)
		ex = extractors[Default]
	}

	if body := ex.Extract(e); body != "" {
		return body
	}
	if !ex.FetchPage || e.Link == "" || n.pages == nil {
		return ""
	}
	return n.page(ctx, src.Name, e.Link)
}

func (n *Normalizer) page(ctx context.Context, source, link string) string {
	if text, ok := n.cache.Get(link); ok {
		return text
	}
	if !n.budget.Allow(ratelimit.PageFetch) {
		return ""
	}

	text, err := n.pages.Extract(ctx, link)
	if err != nil {
		n.log.Warn("page fetch failed", "source", source, "url", link, "err", err)
		text = ""
	}
	n.cache.Set(link, text, n.ttl)
	return text
}

func contentFirst(e rss.Entry) string {
	if e.HasContent() {
		return joinContent(e.Content)
	}
	if e.Summary != "" {
		return e.Summary
	}
	return e.Description
}

func descriptionFirst(e rss.Entry) string {
	if e.Description != "" {
		return e.Description
	}
	if e.Summary != "" {
		return e.Summary
	}
	return joinContent(e.Content)
}

func joinContent(parts []rss.ContentPart) string {
	var values []string
	for _, p := range parts {
		if v := strings.TrimSpace(p.Value); v != "" {
			values = append(values, v)
		}
	}
	return strings.Join(values, " ")
}
