package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/deusflow/aidigest/internal/news"
)

// PostgresArchive mirrors archived articles into PostgreSQL so they can be
// queried outside the static site.
type PostgresArchive struct {
	db *sql.DB
}

// NewPostgresArchive connects, pings and makes sure the schema exists.
func NewPostgresArchive(ctx context.Context, connectionString string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pa := &PostgresArchive{db: db}
	if err := pa.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return pa, nil
}

func (pa *PostgresArchive) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		source VARCHAR(200) NOT NULL,
		category VARCHAR(100) NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
	`
	if _, err := pa.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Mirror inserts articles that are not stored yet and returns how many were
// new. Existing rows are never modified.
func (pa *PostgresArchive) Mirror(ctx context.Context, articles []news.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := pa.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (id, title, body, summary, url, source, category, author, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range articles {
		res, err := stmt.ExecContext(ctx, a.ID, a.Title, a.Body, a.Summary, a.URL, a.Source, a.Category, a.Author, a.PublishedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// GetStats returns total and per-category counts.
func (pa *PostgresArchive) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var total int
	if err := pa.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&total); err != nil {
		return nil, err
	}
	stats["total_items"] = total

	rows, err := pa.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM articles GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats["category_"+category] = count
	}
	return stats, rows.Err()
}

// Recent returns the newest articles first.
func (pa *PostgresArchive) Recent(ctx context.Context, limit int) ([]news.Article, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := pa.db.QueryContext(ctx, `
		SELECT id, title, body, summary, url, source, category, author, published_at
		FROM articles
		ORDER BY published_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []news.Article
	for rows.Next() {
		var a news.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.Summary, &a.URL, &a.Source, &a.Category, &a.Author, &a.PublishedAt); err != nil {
			return nil, err
		}
		a.PublishedAt = a.PublishedAt.UTC()
		items = append(items, a)
	}
	return items, rows.Err()
}

func (pa *PostgresArchive) Close() error {
	if pa.db != nil {
		return pa.db.Close()
	}
	return nil
}
