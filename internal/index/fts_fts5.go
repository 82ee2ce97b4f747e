//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/noteapi/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			id UNINDEXED,
			title,
			headings,
			content,
			path,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, d models.SearchDocument) error {
	if err := ftsDelete(tx, d.ID); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO documents_fts (id, title, headings, content, path) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Title, strings.Join(d.Headings, "\n"), d.Content, d.Path)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM documents_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// ftsQuery quotes every term so user input cannot trip the FTS5 syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " OR ")
}

// Search performs an FTS5 query and returns hits with engine snippets.
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
	open, closing := "", ""
	if opts.Highlight {
		open, closing = "<mark>", "</mark>"
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT documents.id,
		       documents.path,
		       documents.title,
		       snippet(documents_fts, 3, ?, ?, '…', 64),
		       -bm25(documents_fts)
		FROM documents_fts
		JOIN documents ON documents.id = documents_fts.id
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, open, closing, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanHits(rows, func(s string) string { return truncate(s, MaxSnippet) })
}
