//go:build !sqlite_fts5

package graph

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; keyword search uses the LIKE fallback on
	// the notes table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error {
	// Body already lives in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsRename(_ *sql.Tx, _, _, _ string) {}

// SearchNotes performs a LIKE-based keyword search (fallback when FTS5 is
// not compiled in).
func (s *SQLite) SearchNotes(ctx context.Context, query string, limit int, tag string) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	q := `
		SELECT path, title, substr(body, 1, 200)
		FROM notes
		WHERE (title LIKE ? OR body LIKE ?)`
	args := []any{like, like}
	if tag != "" {
		q += ` AND path IN (SELECT path FROM tagged_with WHERE tag = ?)`
		args = append(args, tag)
	}
	q += ` ORDER BY modified_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
