package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/noteapi/internal/models"
)

// AddDocuments upserts docs and their FTS rows in one transaction.
func (db *DB) AddDocuments(_ context.Context, docs []models.SearchDocument) (TaskInfo, error) {
	docs = append([]models.SearchDocument(nil), docs...)
	return db.submit(TaskAddDocuments, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO documents (id, path, title, headings, frontmatter, content, mtime)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				path        = excluded.path,
				title       = excluded.title,
				headings    = excluded.headings,
				frontmatter = excluded.frontmatter,
				content     = excluded.content,
				mtime       = excluded.mtime
		`)
		if err != nil {
			return fmt.Errorf("index: prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, d := range docs {
			headings, _ := json.Marshal(d.Headings)
			fm, err := json.Marshal(d.FrontMatter)
			if err != nil {
				return fmt.Errorf("index: encode front matter of %s: %w", d.Path, err)
			}
			if _, err := stmt.Exec(d.ID, d.Path, d.Title, string(headings), string(fm), d.Content, d.MTime); err != nil {
				return fmt.Errorf("index: upsert %s: %w", d.Path, err)
			}
			if err := ftsUpsert(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDocuments removes ids. Unknown ids are ignored.
func (db *DB) DeleteDocuments(_ context.Context, ids []string) (TaskInfo, error) {
	ids = append([]string(nil), ids...)
	return db.submit(TaskDeleteDocuments, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := ftsDelete(tx, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
				return fmt.Errorf("index: delete %s: %w", id, err)
			}
		}
		return nil
	})
}

// DeleteDocument removes one id.
func (db *DB) DeleteDocument(ctx context.Context, id string) (TaskInfo, error) {
	return db.DeleteDocuments(ctx, []string{id})
}

// WaitForTask blocks until uid reaches a terminal status or ctx ends.
func (db *DB) WaitForTask(ctx context.Context, uid string) (Task, error) {
	return db.tasks.wait(ctx, uid)
}

// submit queues fn to run inside its own transaction.
func (db *DB) submit(typ TaskType, fn func(*sql.Tx) error) (TaskInfo, error) {
	db.mu.RLock()
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return TaskInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, errClosed)
	}
	info, err := db.tasks.submit(typ, func() error {
		db.mu.RLock()
		defer db.mu.RUnlock()
		if db.closed {
			return errClosed
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("index: begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return TaskInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return info, nil
}

// Count returns the number of stored documents.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// scanHits reads (id, path, title, text, score) rows; snippet turns the text
// column into the hit snippet.
func scanHits(rows *sql.Rows, snippet func(string) string) ([]Hit, error) {
	defer rows.Close()
	out := []Hit{}
	for rows.Next() {
		var (
			h    Hit
			text string
		)
		if err := rows.Scan(&h.ID, &h.Path, &h.Title, &text, &h.Score); err != nil {
			return nil, err
		}
		h.Snippet = snippet(text)
		out = append(out, h)
	}
	return out, rows.Err()
}
