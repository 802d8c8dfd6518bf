package rss

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// ContentPart is one element of an entry's structured content list.
type ContentPart struct {
	Type  string
	Value string
}

// Entry is a feed item before normalization. Fields keep whatever the
// publisher sent; timestamps are left raw for the engine to interpret.
type Entry struct {
	Title       string
	Link        string
	Description string
	Summary     string
	Content     []ContentPart
	Author      string

	Published       string
	Updated         string
	PublishedParsed *time.Time
	UpdatedParsed   *time.Time
}

// HasContent reports whether any structured content part carries text.
func (e Entry) HasContent() bool {
	for _, p := range e.Content {
		if strings.TrimSpace(p.Value) != "" {
			return true
		}
	}
	return false
}

// entryFromItem maps a gofeed item. Atom summaries arrive in Description;
// podcast feeds carry their summary in the iTunes extension.
func entryFromItem(it *gofeed.Item) Entry {
	e := Entry{
		Title:           strings.TrimSpace(it.Title),
		Link:            strings.TrimSpace(it.Link),
		Description:     it.Description,
		Published:       it.Published,
		Updated:         it.Updated,
		PublishedParsed: it.PublishedParsed,
		UpdatedParsed:   it.UpdatedParsed,
	}

	if e.Link == "" && len(it.Links) > 0 {
		e.Link = strings.TrimSpace(it.Links[0])
	}
	if e.Link == "" && strings.HasPrefix(it.GUID, "http") {
		e.Link = it.GUID
	}
	if it.Content != "" {
		e.Content = []ContentPart{{Type: "text/html", Value: it.Content}}
	}
	if it.ITunesExt != nil {
		e.Summary = it.ITunesExt.Summary
	}

	switch {
	case it.Author != nil && it.Author.Name != "":
		e.Author = it.Author.Name
	case len(it.Authors) > 0 && it.Authors[0] != nil:
		e.Author = it.Authors[0].Name
	}
	return e
}
