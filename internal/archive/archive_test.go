package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func art(id string, offset time.Duration) news.Article {
	return news.Article{ID: id, Title: id, URL: id, Source: "Src", Category: "news", PublishedAt: now.Add(offset)}
}

func TestMergeGrowthAndIdempotence(t *testing.T) {
	a := New()
	Merge(a, []news.Article{art("a", 0), art("b", time.Hour), art("c", 2*time.Hour)}, now)
	if a.TotalArticles != 3 {
		t.Fatalf("N = %d", a.TotalArticles)
	}

	// K = 3 incoming, J = 2 already present
	incoming := []news.Article{art("b", 0), art("c", 0), art("d", 3*time.Hour)}
	if added := Merge(a, incoming, now.Add(time.Minute)); added != 1 {
		t.Errorf("added = %d", added)
	}
	if _, ok := a.Items["d"]; !ok {
		t.Errorf("new article missing")
	}
	if a.TotalArticles != 3+(3-2) || len(a.Items) != a.TotalArticles {
		t.Errorf("total = %d, items = %d", a.TotalArticles, len(a.Items))
	}
	if !a.Updated.Equal(now.Add(time.Minute)) {
		t.Errorf("Updated = %v", a.Updated)
	}

	if again := Merge(a, incoming, now); again != 0 || a.TotalArticles != 4 {
		t.Errorf("second merge added %d, total %d", again, a.TotalArticles)
	}
}

func TestMergeNeverOverwrites(t *testing.T) {
	a := New()
	Merge(a, []news.Article{art("a", 0)}, now)
	drifted := art("a", time.Hour)
	drifted.Title = "edited title"
	Merge(a, []news.Article{drifted}, now)

	if a.Items["a"].Title != "a" {
		t.Errorf("existing entry overwritten: %+v", a.Items["a"])
	}
}

func TestSorted(t *testing.T) {
	a := New()
	Merge(a, []news.Article{art("old", -time.Hour), art("new", time.Hour), art("mid", 0)}, now)
	got := a.Sorted()
	if got[0].ID != "new" || got[1].ID != "mid" || got[2].ID != "old" {
		t.Errorf("Sorted = %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := NewFileStore(path, logger.Discard())
	ctx := context.Background()

	a, err := s.Load(ctx)
	if err != nil || len(a.Items) != 0 {
		t.Fatalf("fresh Load = %+v, %v", a, err)
	}
	Merge(a, []news.Article{art("https://example.com/a", 0)}, now)
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, _ := os.ReadFile(path)
	for _, key := range []string{`"version"`, `"updated"`, `"items"`, `"total_articles": 1`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("archive file missing %s:\n%s", key, raw)
		}
	}

	b, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := b.Items["https://example.com/a"]; !got.PublishedAt.Equal(now) || got.Source != "Src" {
		t.Errorf("reloaded item = %+v", got)
	}
}

func TestFileStoreCorruptStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	os.WriteFile(path, []byte(`{"items": [broken`), 0o644)

	s := NewFileStore(path, logger.Discard())
	s.now = func() time.Time { return now }

	a, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(a.Items) != 0 {
		t.Errorf("corrupt archive produced items")
	}
	if _, err := os.Stat(path + ".corrupt-1715342400"); err != nil {
		t.Errorf("corrupt file not moved aside: %v", err)
	}
}

type memStore struct {
	a       *Archive
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load(ctx context.Context) (*Archive, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.a == nil {
		return New(), nil
	}
	return m.a, nil
}

func (m *memStore) Save(ctx context.Context, a *Archive) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.a = a
	return nil
}

type recordingMirror struct {
	got []news.Article
	err error
}

func (r *recordingMirror) Mirror(ctx context.Context, articles []news.Article) (int, error) {
	r.got = append(r.got, articles...)
	return len(articles), r.err
}

func TestRun(t *testing.T) {
	store := &memStore{}
	mirror := &recordingMirror{}
	ctx := context.Background()

	a, added, err := Run(ctx, store, mirror, []news.Article{art("a", 0), art("b", 0)}, now, logger.Discard())
	if err != nil || len(added) != 2 || a.TotalArticles != 2 {
		t.Fatalf("Run = %d added, %v", len(added), err)
	}

	_, added, _ = Run(ctx, store, mirror, []news.Article{art("b", 0), art("c", 0)}, now, logger.Discard())
	if len(added) != 1 || len(mirror.got) != 3 {
		t.Errorf("second run added %d, mirrored %d", len(added), len(mirror.got))
	}

	// mirror failures do not fail the run
	mirror.err = errors.New("db down")
	if _, _, err := Run(ctx, store, mirror, []news.Article{art("d", 0)}, now, logger.Discard()); err != nil {
		t.Errorf("mirror error surfaced: %v", err)
	}
}

func TestRunSaveError(t *testing.T) {
	store := &memStore{saveErr: errors.New("read-only")}
	a, added, err := Run(context.Background(), store, nil, []news.Article{art("a", 0)}, now, logger.Discard())
	if err == nil {
		t.Fatalf("save error swallowed")
	}
	if a == nil || len(added) != 1 {
		t.Errorf("merged archive not returned on save failure")
	}
}

func TestRunUnreadableArchiveIsNotOverwritten(t *testing.T) {
	store := &memStore{loadErr: errors.New("permission denied")}
	a, added, err := Run(context.Background(), store, nil, []news.Article{art("a", 0)}, now, logger.Discard())
	if err == nil {
		t.Fatalf("load error swallowed")
	}
	if store.saves != 0 {
		t.Errorf("archive saved %d times over an unreadable one", store.saves)
	}
	if a == nil || len(added) != 1 {
		t.Errorf("run articles not returned for publishing")
	}
}

func TestFileStoreUnreadableKeepsFile(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read any file")
	}
	path := filepath.Join(t.TempDir(), FileName)
	s := NewFileStore(path, logger.Discard())
	ctx := context.Background()

	a := New()
	Merge(a, []news.Article{art("old", 0)}, now)
	if err := s.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	os.Chmod(path, 0o000)
	defer os.Chmod(path, 0o644)

	if _, _, err := Run(ctx, s, nil, []news.Article{art("new", 0)}, now, logger.Discard()); err == nil {
		t.Fatalf("unreadable archive not reported")
	}

	os.Chmod(path, 0o644)
	b, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Items["old"]; !ok || len(b.Items) != 1 {
		t.Errorf("history replaced: %v", b.Items)
	}
}
