// Package archive keeps every article ever published, keyed by ID.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/deusflow/aidigest/internal/errs"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/storage"
)

// FileName is the archive file kept in the output directory.
const FileName = "archive.json"

// Version is written into every archive file.
const Version = "1.0"

// Archive is append-only: entries are added, never replaced or removed.
type Archive struct {
	Version       string                  `json:"version"`
	Updated       time.Time               `json:"updated"`
	Items         map[string]news.Article `json:"items"`
	TotalArticles int                     `json:"total_articles"`
}

func New() *Archive {
	return &Archive{Version: Version, Items: make(map[string]news.Article)}
}

// Merge adds the articles whose ID is not archived yet and returns how many
// were added. Running it again with the same input adds nothing.
func Merge(a *Archive, articles []news.Article, now time.Time) int {
	return len(merge(a, articles, now))
}

func merge(a *Archive, articles []news.Article, now time.Time) []news.Article {
	if a.Items == nil {
		a.Items = make(map[string]news.Article)
	}
	var added []news.Article
	for _, art := range articles {
		if art.ID == "" {
			continue
		}
		if _, ok := a.Items[art.ID]; ok {
			continue
		}
		a.Items[art.ID] = art
		added = append(added, art)
	}
	a.Version = Version
	a.Updated = now.UTC()
	a.TotalArticles = len(a.Items)
	return added
}

// Sorted returns every archived article newest-first.
func (a *Archive) Sorted() []news.Article {
	out := make([]news.Article, 0, len(a.Items))
	for _, art := range a.Items {
		out = append(out, art)
	}
	news.SortNewestFirst(out)
	return out
}

// Store loads and saves an archive.
type Store interface {
	Load(ctx context.Context) (*Archive, error)
	Save(ctx context.Context, a *Archive) error
}

// Mirror receives newly archived articles, e.g. a database copy.
type Mirror interface {
	Mirror(ctx context.Context, articles []news.Article) (int, error)
}

// FileStore keeps the archive as one JSON document.
type FileStore struct {
	path string
	log  *slog.Logger
	now  func() time.Time
}

func NewFileStore(path string, log *slog.Logger) *FileStore {
	return &FileStore{path: path, log: logger.Component(log, "archive"), now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

// Load returns the stored archive. A missing file gives an empty archive.
// A corrupt file is moved aside and an empty archive returned, so a bad
// write never blocks later runs.
func (s *FileStore) Load(ctx context.Context) (*Archive, error) {
	a := New()
	found, err := storage.ReadJSON(s.path, a)
	if err == nil {
		if !found {
			s.log.Info("no archive yet, starting fresh", "path", s.path)
		}
		if a.Items == nil {
			a.Items = make(map[string]news.Article)
		}
		return a, nil
	}

	var pe *errs.ParseError
	if !errors.As(err, &pe) {
		return nil, err
	}

	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if rerr := os.Rename(s.path, backup); rerr != nil {
		s.log.Error("archive corrupt and could not be moved aside", "path", s.path, "err", rerr)
	} else {
		s.log.Warn("archive corrupt, starting fresh", "path", s.path, "backup", backup, "err", err)
	}
	return New(), nil
}

func (s *FileStore) Save(ctx context.Context, a *Archive) error {
	return storage.WriteJSONAtomic(s.path, a)
}

// Run loads the archive, merges articles into it and saves it. Newly added
// articles are then copied to mirror when one is given; mirror failures
// are only logged. The merged archive is returned even if saving failed.
// When the stored archive cannot be loaded the merge stays in memory only.
func Run(ctx context.Context, store Store, mirror Mirror, articles []news.Article, now time.Time, log *slog.Logger) (*Archive, []news.Article, error) {
	log = logger.Component(log, "archive")

	a, err := store.Load(ctx)
	if err != nil {
		// Saving now would replace the stored history with this run alone.
		a = New()
		added := merge(a, articles, now)
		return a, added, fmt.Errorf("load archive, not saving: %w", err)
	}

	added := merge(a, articles, now)
	if err := store.Save(ctx, a); err != nil {
		return a, added, fmt.Errorf("save archive: %w", err)
	}
	log.Info("archive updated", "added", len(added), "total", a.TotalArticles)

	if mirror != nil && len(added) > 0 {
		n, err := mirror.Mirror(ctx, added)
		if err != nil {
			log.Error("archive mirror failed", "err", err)
		} else {
			log.Debug("archive mirrored", "inserted", n)
		}
	}
	return a, added, nil
}
