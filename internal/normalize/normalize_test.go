package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/deusflow/aidigest/internal/ratelimit"
	"github.com/deusflow/aidigest/internal/rss"
)

type fakePages struct {
	text  string
	err   error
	calls int
}

func (f *fakePages) Extract(ctx context.Context, url string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestResolve(t *testing.T) {
	tests := []struct {
		src  rss.Source
		want Dialect
	}{
		{rss.Source{Name: "HF", URL: "https://huggingface.co/blog/feed.xml"}, ContentFirst},
		{rss.Source{Name: "Google AI", URL: "https://blog.google/technology/ai/rss/"}, ContentFirst},
		{rss.Source{Name: "OpenAI", URL: "https://openai.com/blog/rss.xml"}, DescriptionFirst},
		{rss.Source{Name: "Other", URL: "https://example.com/feed"}, Default},
		{rss.Source{Name: "Other", URL: "https://example.com/feed", Dialect: "description-first"}, DescriptionFirst},
	}
	for _, tt := range tests {
		if got := Resolve(tt.src, DefaultRules); got != tt.want {
			t.Errorf("Resolve(%s) = %q, want %q", tt.src.Name, got, tt.want)
		}
	}
}

func TestDefaultPrecedence(t *testing.T) {
	n := New(Options{})
	defer n.Close()
	src := rss.Source{Name: "Src", URL: "https://example.com/feed"}

	tests := []struct {
		name  string
		entry rss.Entry
		want  string
	}{
		{"content list joined", rss.Entry{
			Content:     []rss.ContentPart{{Value: "part one"}, {Value: " "}, {Value: "part two"}},
			Summary:     "sum",
			Description: "desc",
		}, "part one part two"},
		{"blank content skipped", rss.Entry{
			Content: []rss.ContentPart{{Value: "  "}},
			Summary: "sum",
		}, "sum"},
		{"summary next", rss.Entry{Summary: "sum", Description: "desc"}, "sum"},
		{"description last", rss.Entry{Description: "desc"}, "desc"},
		{"nothing", rss.Entry{Link: "https://example.com/x"}, ""},
	}
	for _, tt := range tests {
		if got := n.Body(context.Background(), src, tt.entry); got != tt.want {
			t.Errorf("%s: Body = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDescriptionFirstPrecedence(t *testing.T) {
	n := New(Options{})
	defer n.Close()
	src := rss.Source{Name: "OpenAI", URL: "https://openai.com/blog/rss.xml"}

	e := rss.Entry{Description: "desc", Summary: "sum", Content: []rss.ContentPart{{Value: "content"}}}
	if got := n.Body(context.Background(), src, e); got != "desc" {
		t.Errorf("Body = %q, want desc", got)
	}
	e.Description = ""
	if got := n.Body(context.Background(), src, e); got != "sum" {
		t.Errorf("Body = %q, want sum", got)
	}
	e.Summary = ""
	if got := n.Body(context.Background(), src, e); got != "content" {
		t.Errorf("Body = %q, want content", got)
	}
}

func TestPageFetchFallback(t *testing.T) {
	pages := &fakePages{text: "page text"}
	n := New(Options{Pages: pages})
	defer n.Close()
	src := rss.Source{Name: "OpenAI", URL: "https://openai.com/blog/rss.xml"}
	e := rss.Entry{Link: "https://openai.com/blog/post"}

	if got := n.Body(context.Background(), src, e); got != "page text" {
		t.Fatalf("Body = %q", got)
	}
	if got := n.Body(context.Background(), src, e); got != "page text" {
		t.Fatalf("cached Body = %q", got)
	}
	if pages.calls != 1 {
		t.Errorf("page fetched %d times, want 1", pages.calls)
	}

	// default dialect never fetches pages
	plain := rss.Source{Name: "Other", URL: "https://example.com/feed"}
	n.Body(context.Background(), plain, rss.Entry{Link: "https://example.com/other"})
	if pages.calls != 1 {
		t.Errorf("default dialect triggered page fetch")
	}
}

func TestPageFetchDegrades(t *testing.T) {
	pages := &fakePages{err: errors.New("timeout")}
	n := New(Options{Pages: pages})
	defer n.Close()
	src := rss.Source{Name: "OpenAI"}

	if got := n.Body(context.Background(), src, rss.Entry{Link: "https://openai.com/blog/a"}); got != "" {
		t.Errorf("Body = %q, want empty on fetch error", got)
	}
}

func TestPageFetchBudget(t *testing.T) {
	pages := &fakePages{text: "x"}
	budget := ratelimit.NewBudget(map[string]int{ratelimit.PageFetch: 1}, nil)
	n := New(Options{Pages: pages, Budget: budget})
	defer n.Close()
	src := rss.Source{Name: "OpenAI"}

	n.Body(context.Background(), src, rss.Entry{Link: "https://openai.com/blog/a"})
	if got := n.Body(context.Background(), src, rss.Entry{Link: "https://openai.com/blog/b"}); got != "" {
		t.Errorf("fetch beyond budget returned %q", got)
	}
	if pages.calls != 1 {
		t.Errorf("calls = %d, want 1", pages.calls)
	}
}

func TestUnknownDialectFallsBack(t *testing.T) {
	n := New(Options{})
	defer n.Close()
	src := rss.Source{Name: "X", Dialect: "klingon"}
	if Known(Dialect(src.Dialect)) {
		t.Fatalf("klingon registered")
	}
	if got := n.Body(context.Background(), src, rss.Entry{Summary: "s", Description: "d"}); got != "s" {
		t.Errorf("Body = %q, want default precedence", got)
	}
}
