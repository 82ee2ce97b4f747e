//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/noteapi/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search scans the documents table with LIKE.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.SearchDocument) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, errClosed)
	}
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	like := "%" + strings.TrimSpace(query) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, title, content, 1.0
		FROM documents
		WHERE title LIKE ? OR headings LIKE ? OR content LIKE ? OR path LIKE ?
		ORDER BY path
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows, func(s string) string {
		s = snippetAround(s, query)
		if opts.Highlight {
			s = markTerms(s, query)
		}
		return s
	})
}
