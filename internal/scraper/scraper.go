package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxPageBytes = 5 << 20

// Main-region selectors in priority order.
var landmarkSelectors = []string{
	"article",
	"main",
	"div.content",
}

// fallbackParagraphs is how many <p> blocks are used when a page has none
// of the landmark regions.
const fallbackParagraphs = 5

// Extractor downloads article pages and pulls their readable text.
type Extractor struct {
	client    *http.Client
	userAgent string
}

func NewExtractor(timeout time.Duration, userAgent string) *Extractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Extract gets the main text of the page at url.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}
	return MainText(doc), nil
}

// MainText returns the text of the first landmark region, else the first
// few paragraphs.
func MainText(doc *goquery.Document) string {
	for _, sel := range landmarkSelectors {
		if region := doc.Find(sel).First(); region.Length() > 0 {
			if text := TextOf(region); text != "" {
				return text
			}
		}
	}

	var paragraphs []string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := TextOf(s); text != "" {
			paragraphs = append(paragraphs, text)
		}
		return len(paragraphs) < fallbackParagraphs
	})
	return strings.Join(paragraphs, " ")
}

// TextOf joins the text nodes under s with single spaces, skipping script
// and style content.
func TextOf(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return cleanContent(strings.Join(parts, " "))
}

// StripHTML renders an HTML fragment as plain text.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return cleanContent(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanContent(fragment)
	}
	return TextOf(doc.Selection)
}

// cleanContent collapses whitespace runs.
func cleanContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}
