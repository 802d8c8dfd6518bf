// Package publish renders a run's articles as RSS, Atom and JSON feeds plus
// static HTML pages.
package publish

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gorilla/feeds"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/scraper"
	"github.com/deusflow/aidigest/internal/storage"
)

// AllCategory names the feed holding every category of a run.
const AllCategory = "all"

const siteTitle = "AI News Daily Digest"

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Publisher writes feed files and pages into one output directory.
type Publisher struct {
	dir     string
	siteURL string
	log     *slog.Logger
	now     func() time.Time
}

func New(dir, siteURL string, log *slog.Logger) *Publisher {
	return &Publisher{
		dir:     dir,
		siteURL: siteURL,
		log:     logger.Component(log, "publish"),
		now:     time.Now,
	}
}

// Output lists what a Publish call wrote.
type Output struct {
	Files []string
	Feeds int
}

// Publish writes <category>.xml, .atom and .json for every category of run
// that has articles, the same three for "all", index.html for the run and
// archive.html for everything archived. A failed file does not stop the
// others; all failures are returned joined.
func (p *Publisher) Publish(run news.Partition, archived []news.Article) (Output, error) {
	var out Output
	var errList []error

	for _, cat := range run.Categories() {
		if len(run[cat]) == 0 {
			continue
		}
		files, err := p.writeFeeds(cat, run[cat])
		out.Files = append(out.Files, files...)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		out.Feeds++
	}

	latest := run.All()
	files, err := p.writeFeeds(AllCategory, latest)
	out.Files = append(out.Files, files...)
	if err != nil {
		errList = append(errList, err)
	} else {
		out.Feeds++
	}

	pages := []struct {
		name    string
		heading string
		items   []news.Article
		archive bool
	}{
		{name: "index.html", heading: "Latest Articles", items: latest, archive: true},
		{name: "archive.html", heading: "Archive", items: archived},
	}
	for _, pg := range pages {
		path := filepath.Join(p.dir, pg.name)
		if err := p.writePage(path, pg.heading, pg.items, pg.archive); err != nil {
			errList = append(errList, err)
			continue
		}
		out.Files = append(out.Files, path)
	}

	p.log.Info("published", "feeds", out.Feeds, "files", len(out.Files), "articles", len(latest))
	return out, errors.Join(errList...)
}

// Description is the text shown for an article in feeds and pages: its
// summary, or an excerpt of the tag-stripped body.
func Description(a news.Article) string {
	if a.Summary != "" {
		return a.Summary
	}
	return news.Excerpt(scraper.StripHTML(a.Body), news.ExcerptRunes)
}

func (p *Publisher) buildFeed(category string, items []news.Article) *feeds.Feed {
	now := p.now().UTC()
	feed := &feeds.Feed{
		Title:       "AI Daily Digest - " + news.CategoryTitle(category),
		Link:        &feeds.Link{Href: p.siteURL + "/"},
		Description: fmt.Sprintf("AI news digest: %s", news.CategoryTitle(category)),
		Id:          p.siteURL + "/" + category + ".atom",
		Created:     now,
		Updated:     now,
		Items:       make([]*feeds.Item, 0, len(items)),
	}
	for _, a := range items {
		item := &feeds.Item{
			Id:          a.ID,
			Title:       a.Title,
			Link:        &feeds.Link{Href: a.URL},
			Description: Description(a),
			Content:     a.Body,
			Created:     a.PublishedAt,
			Updated:     a.PublishedAt,
		}
		if a.Author != "" {
			item.Author = &feeds.Author{Name: a.Author}
		}
		feed.Items = append(feed.Items, item)
	}
	return feed
}

func (p *Publisher) writeFeeds(category string, items []news.Article) ([]string, error) {
	feed := p.buildFeed(category, items)

	renderers := []struct {
		ext    string
		render func() (string, error)
	}{
		{ext: ".xml", render: feed.ToRss},
		{ext: ".atom", render: feed.ToAtom},
		{ext: ".json", render: feed.ToJSON},
	}

	var written []string
	for _, r := range renderers {
		body, err := r.render()
		if err != nil {
			return written, fmt.Errorf("render %s%s: %w", category, r.ext, err)
		}
		path := filepath.Join(p.dir, category+r.ext)
		if err := writeFile(path, []byte(body)); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	p.log.Debug("feed written", "category", category, "count", len(items))
	return written, nil
}

type articleView struct {
	Title   string
	URL     string
	Source  string
	Author  string
	Date    string
	Summary string
}

type pageView struct {
	Title       string
	Heading     string
	Updated     string
	ArchiveLink string
	Articles    []articleView
}

func (p *Publisher) writePage(path, heading string, items []news.Article, linkArchive bool) error {
	view := pageView{
		Title:    siteTitle,
		Heading:  heading,
		Updated:  p.now().UTC().Format("2006-01-02 15:04:05") + " UTC",
		Articles: make([]articleView, 0, len(items)),
	}
	if linkArchive {
		view.ArchiveLink = "archive.html"
	}
	for _, a := range items {
		view.Articles = append(view.Articles, articleView{
			Title:   a.Title,
			URL:     a.URL,
			Source:  a.Source,
			Author:  a.Author,
			Date:    a.PublishedAt.UTC().Format("2006-01-02 15:04 UTC"),
			Summary: scraper.StripHTML(Description(a)),
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "layout", view); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	return storage.WriteFileAtomic(path, data, 0o644)
}
