package rss

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/aidigest/internal/errs"
)

// searchFallback finds recent posts of src through a site-scoped web search
// and synthesizes one entry per distinct result link.
func (f *Fetcher) searchFallback(ctx context.Context, src Source) ([]Entry, error) {
	searchURL := fmt.Sprintf(f.searchURL, src.BlogPath)
	body, err := f.get(ctx, f.searchClient, src.Name, searchURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &errs.FetchError{
			Source: src.Name,
			URL:    searchURL,
			Err:    &errs.ParseError{Source: src.Name, What: "search results", Err: err},
		}
	}

	now := f.now().UTC()
	seen := make(map[string]struct{})
	var entries []Entry

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, err := resultTarget(href)
		if err != nil {
			f.log.Debug("skipping search result", "source", src.Name, "href", href, "err", err)
			return
		}
		if link == "" || !strings.Contains(link, src.BlogPath) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		title := resultTitle(s, src.Name)
		entries = append(entries, Entry{
			Title:           title,
			Link:            link,
			Description:     fmt.Sprintf("%s blog post: %s", src.Name, title),
			Published:       now.Format(time.RFC1123Z),
			PublishedParsed: &now,
		})
	})

	f.log.Info("search fallback finished", "source", src.Name, "count", len(entries))
	return entries, nil
}

// resultTarget unwraps search-engine redirect links ("/url?q=...") and
// returns an absolute http(s) URL, or "" when href points elsewhere.
func resultTarget(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}

	if u.Path == "/url" {
		q := u.Query()
		target := q.Get("q")
		if target == "" {
			target = q.Get("url")
		}
		if target == "" {
			return "", nil
		}
		if u, err = url.Parse(target); err != nil {
			return "", err
		}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil
	}
	return u.String(), nil
}

// resultTitle picks the heading closest to a result link, then the link
// text, then a generic label.
func resultTitle(link *goquery.Selection, source string) string {
	candidates := []*goquery.Selection{
		link.Find("h3, h2").First(),
		link.Parent().Find("h3, h2").First(),
		link.Parent().PrevAll().Filter("h3, h2").First(),
	}
	for _, c := range candidates {
		if t := collapse(c.Text()); t != "" {
			return t
		}
	}
	if t := collapse(link.Text()); t != "" {
		return t
	}
	return source + " Blog Post"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
