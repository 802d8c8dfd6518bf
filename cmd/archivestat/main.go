// Command archivestat prints what the article archive holds, either from
// archive.json or from the PostgreSQL mirror.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/archive"
	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/storage"
)

func main() {
	cfg, _ := config.Load()
	outputDir := config.DefaultOutputDir
	dsn := ""
	if cfg != nil {
		outputDir = cfg.OutputDir
		dsn = cfg.ArchiveDatabaseURL
	}

	flag.StringVar(&outputDir, "output-dir", outputDir, "directory holding archive.json")
	flag.StringVar(&dsn, "db", dsn, "PostgreSQL DSN; read the mirror instead of the file")
	limit := flag.Int("recent", 5, "number of recent articles to list")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if dsn != "" {
		err = fromDatabase(ctx, dsn, *limit)
	} else {
		err = fromFile(ctx, filepath.Join(outputDir, archive.FileName), *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "archivestat: %v\n", err)
		os.Exit(1)
	}
}

func fromFile(ctx context.Context, path string, limit int) error {
	a, err := archive.NewFileStore(path, logger.Discard()).Load(ctx)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, art := range a.Items {
		counts["category_"+art.Category]++
	}
	counts["total_items"] = len(a.Items)

	fmt.Printf("Archive: %s\n", path)
	if !a.Updated.IsZero() {
		fmt.Printf("Updated: %s\n", a.Updated.Format(time.RFC3339))
	}
	printStats(counts)
	printRecent(a.Sorted(), limit)
	return nil
}

func fromDatabase(ctx context.Context, dsn string, limit int) error {
	pg, err := storage.NewPostgresArchive(ctx, dsn)
	if err != nil {
		return err
	}
	defer pg.Close()

	fmt.Printf("Archive mirror: %s\n", maskPassword(dsn))
	stats, err := pg.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	printStats(stats)

	recent, err := pg.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("recent: %w", err)
	}
	printRecent(recent, limit)
	return nil
}

func printStats(stats map[string]int) {
	fmt.Printf("\nTotal articles: %d\n", stats["total_items"])
	keys := make([]string, 0, len(stats))
	for k := range stats {
		if strings.HasPrefix(k, "category_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", strings.TrimPrefix(k, "category_"), stats[k])
	}
}

func printRecent(items []news.Article, limit int) {
	fmt.Printf("\nRecent articles (last %d):\n", limit)
	if len(items) == 0 {
		fmt.Println("  (none yet)")
		return
	}
	for i, a := range items {
		if i >= limit {
			break
		}
		fmt.Printf("  %d. %s\n", i+1, a.Title)
		fmt.Printf("     %s | %s | %s\n", a.Source, a.Category, a.PublishedAt.Format("2006-01-02 15:04"))
	}
}

// maskPassword hides the password part of a postgres:// DSN.
func maskPassword(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return dsn[:scheme+3] + creds[:colon] + ":***" + dsn[at:]
	}
	return dsn
}
