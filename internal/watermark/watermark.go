// Package watermark remembers, per source, the newest publish time already
// ingested.
package watermark

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/aidigest/internal/datetime"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/storage"
)

// FileName is the state file kept in the output directory.
const FileName = "last_scrape_times.json"

// DefaultLookback is how far back a source without a watermark is read.
const DefaultLookback = 48 * time.Hour

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the watermark table. Set stages changes in memory; Save writes
// the whole table at once.
type Store struct {
	mu    sync.Mutex
	path  string
	marks map[string]time.Time
	dirty bool
	log   *slog.Logger
	now   func() time.Time
}

// Load reads the table at path. A missing, unreadable or corrupt file
// yields an empty table; bad entries are dropped.
func Load(path string, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		path:  path,
		marks: make(map[string]time.Time),
		log:   logger.Component(log, "watermark"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw := map[string]string{}
	found, err := storage.ReadJSON(path, &raw)
	if err != nil {
		s.log.Warn("watermarks unreadable, starting empty", "path", path, "err", err)
		return s
	}
	if !found {
		s.log.Debug("no watermark file", "path", path)
		return s
	}

	for source, value := range raw {
		t, err := datetime.Parse(value)
		if err != nil {
			s.log.Warn("dropping unparsable watermark", "source", source, "value", value, "err", err)
			continue
		}
		s.marks[source] = t
	}
	return s
}

// Default is the watermark of a source never seen before: midnight UTC of
// the day DefaultLookback ago.
func Default(now time.Time) time.Time {
	return datetime.StartOfDay(now.Add(-DefaultLookback))
}

// Get returns the stored watermark or the default.
func (s *Store) Get(source string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(source)
}

func (s *Store) get(source string) time.Time {
	if t, ok := s.marks[source]; ok {
		return t
	}
	return Default(s.now())
}

// Set stages t for source. Watermarks only move forward, so a t that is
// not after the current value is ignored and false is returned.
func (s *Store) Set(source string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.UTC()
	if !t.After(s.get(source)) {
		return false
	}
	s.marks[source] = t
	s.dirty = true
	return true
}

// Reset forgets every watermark. The file is rewritten on the next Save.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = make(map[string]time.Time)
	s.dirty = true
}

// Snapshot copies the current table.
func (s *Store) Snapshot() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.marks))
	for k, v := range s.marks {
		out[k] = v
	}
	return out
}

// Save writes the table atomically. The in-memory table is kept on
// failure so a later Save can retry.
func (s *Store) Save() error {
	s.mu.Lock()
	raw := make(map[string]string, len(s.marks))
	sources := make([]string, 0, len(s.marks))
	for source, t := range s.marks {
		raw[source] = datetime.Format(t)
		sources = append(sources, source)
	}
	s.mu.Unlock()

	if err := storage.WriteJSONAtomic(s.path, raw); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()

	sort.Strings(sources)
	s.log.Debug("watermarks saved", "path", s.path, "sources", sources)
	return nil
}

// Dirty reports unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
