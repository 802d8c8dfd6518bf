// Package news holds the article record produced by ingestion and the
// helpers that group and order it.
package news

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Article is an accepted feed entry. ID is the canonical URL and the
// dedup key everywhere.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// ExcerptRunes is the length of a derived summary before the ellipsis.
const ExcerptRunes = 150

// Excerpt returns s cut to n runes with "..." appended when cut.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

// Partition groups articles by category.
type Partition map[string][]Article

// NewPartition returns a partition with an empty bucket per category.
func NewPartition(categories []string) Partition {
	p := make(Partition, len(categories))
	for _, c := range categories {
		p[c] = []Article{}
	}
	return p
}

func (p Partition) Add(a Article) {
	p[a.Category] = append(p[a.Category], a)
}

// Sort orders every bucket newest-first.
func (p Partition) Sort() {
	for _, items := range p {
		SortNewestFirst(items)
	}
}

// Len counts articles across all buckets.
func (p Partition) Len() int {
	n := 0
	for _, items := range p {
		n += len(items)
	}
	return n
}

// Categories returns the bucket names in sorted order.
func (p Partition) Categories() []string {
	out := make([]string, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// All flattens the partition newest-first.
func (p Partition) All() []Article {
	out := make([]Article, 0, p.Len())
	for _, c := range p.Categories() {
		out = append(out, p[c]...)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst sorts in place by PublishedAt descending. Ties keep a
// stable order by ID.
func SortNewestFirst(items []Article) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// CategoryTitle turns "ai_tools" into "Ai Tools".
func CategoryTitle(category string) string {
	words := strings.FieldsFunc(category, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
