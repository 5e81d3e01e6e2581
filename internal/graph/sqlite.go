package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path         TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	content_hash TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title);

CREATE TABLE IF NOT EXISTS tags (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS tagged_with (
	path TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE ON UPDATE CASCADE,
	tag  TEXT NOT NULL REFERENCES tags(name) ON DELETE CASCADE ON UPDATE CASCADE,
	UNIQUE(path, tag)
);
CREATE INDEX IF NOT EXISTS idx_tagged_with_tag ON tagged_with(tag);

CREATE TABLE IF NOT EXISTS links_to (
	source TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE ON UPDATE CASCADE,
	target TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE ON UPDATE CASCADE,
	UNIQUE(source, target)
);
CREATE INDEX IF NOT EXISTS idx_links_to_target ON links_to(target);

CREATE TABLE IF NOT EXISTS chunks (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	note_path TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE ON UPDATE CASCADE,
	idx       INTEGER NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_note ON chunks(note_path);

CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS relations (
	source_table TEXT NOT NULL,
	source_key   TEXT NOT NULL,
	relation     TEXT NOT NULL,
	target_table TEXT NOT NULL,
	target_key   TEXT NOT NULL,
	UNIQUE(source_table, source_key, relation, target_table, target_key)
);

CREATE TABLE IF NOT EXISTS graph_schema (
	name     TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	internal INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS index_meta (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	model TEXT NOT NULL DEFAULT '',
	dims  INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO graph_schema (name, kind, internal) VALUES
	('tagged_with', 'relation', 0),
	('links_to', 'relation', 0),
	('from_document', 'relation', 1);
`

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	conn *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database and applies the core schema.
// An unreachable or unwritable database is fatal to the caller.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("graph: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: apply fts schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// UpsertNote inserts or updates a note row. created_at and content_hash
// survive updates; the FTS entry is refreshed alongside.
func (s *SQLite) UpsertNote(ctx context.Context, n models.Note) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	metaJSON, _ := json.Marshal(n.Metadata)
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	modified := n.ModifiedAt
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (path, title, body, metadata, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			body        = excluded.body,
			metadata    = excluded.metadata,
			modified_at = excluded.modified_at
	`, n.Path, n.Title, n.Body, string(metaJSON), created, modified)
	if err != nil {
		return fmt.Errorf("graph: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, n.Path, n.Title, n.Body); err != nil {
		return err
	}

	return tx.Commit()
}

// GetNote returns one note with its tags and outgoing link targets.
func (s *SQLite) GetNote(ctx context.Context, path string) (*models.Note, error) {
	var n models.Note
	var metaJSON string
	err := s.conn.QueryRowContext(ctx, `
		SELECT path, title, body, metadata, content_hash, created_at, modified_at
		FROM notes WHERE path = ?
	`, path).Scan(&n.Path, &n.Title, &n.Body, &metaJSON, &n.ContentHash, &n.CreatedAt, &n.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("graph: note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get note: %w", err)
	}
	if metaJSON != "" && metaJSON != "null" {
		_ = json.Unmarshal([]byte(metaJSON), &n.Metadata)
	}

	n.Tags, err = s.queryStrings(ctx, `SELECT tag FROM tagged_with WHERE path = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, err
	}
	n.Links, err = s.queryStrings(ctx, `SELECT target FROM links_to WHERE source = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotes returns a page of notes plus the unfiltered total for the
// given tag filter.
func (s *SQLite) ListNotes(ctx context.Context, limit, offset int, tag, sortBy string) ([]models.Note, int, error) {
	if limit <= 0 {
		limit = 100
	}
	order := "modified_at DESC"
	switch sortBy {
	case "title":
		order = "title ASC"
	case "path":
		order = "path ASC"
	}

	where := ""
	args := []any{}
	if tag != "" {
		where = `WHERE path IN (SELECT path FROM tagged_with WHERE tag = ?)`
		args = append(args, tag)
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("graph: count notes: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT path, title, content_hash, created_at, modified_at
		FROM notes `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("graph: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.Path, &n.Title, &n.ContentHash, &n.CreatedAt, &n.ModifiedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// NotePaths returns the set of every known note path.
func (s *SQLite) NotePaths(ctx context.Context) (map[string]struct{}, error) {
	paths, err := s.queryStrings(ctx, `SELECT path FROM notes`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out, nil
}

// DeleteNote prunes a note; foreign keys cascade to chunks and edges, and
// dynamic relations with a note endpoint are removed explicitly.
func (s *SQLite) DeleteNote(ctx context.Context, path string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.ExecContext(ctx, `DELETE FROM relations WHERE (source_table = 'note' AND source_key = ?) OR (target_table = 'note' AND target_key = ?)`, path, path)
	ftsDelete(tx, path)
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("graph: delete note: %w", err)
	}
	return tx.Commit()
}

// RenameNote moves a note row to a new path and title; edges, chunks, and
// dynamic relations follow.
func (s *SQLite) RenameNote(ctx context.Context, oldPath, newPath, newTitle string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE notes SET path = ?, title = ?, modified_at = ? WHERE path = ?`,
		newPath, newTitle, time.Now().UTC(), oldPath)
	if err != nil {
		return fmt.Errorf("graph: rename note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("graph: rename %s: %w", oldPath, apperr.ErrNotFound)
	}

	// Edges and chunks follow through ON UPDATE CASCADE; dynamic relations
	// are not FK-constrained and move by hand.
	for _, q := range []string{
		`UPDATE relations SET source_key = ? WHERE source_table = 'note' AND source_key = ?`,
		`UPDATE relations SET target_key = ? WHERE target_table = 'note' AND target_key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, newPath, oldPath); err != nil {
			return fmt.Errorf("graph: rename relations: %w", err)
		}
	}
	ftsRename(tx, oldPath, newPath, newTitle)

	return tx.Commit()
}

// ContentHash returns the stored dirty bit, "" when the note is unknown.
func (s *SQLite) ContentHash(ctx context.Context, path string) (string, error) {
	var h string
	err := s.conn.QueryRowContext(ctx, `SELECT content_hash FROM notes WHERE path = ?`, path).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("graph: content hash: %w", err)
	}
	return h, nil
}

// SetContentHash advances the dirty bit for one note.
func (s *SQLite) SetContentHash(ctx context.Context, path, hash string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE notes SET content_hash = ? WHERE path = ?`, hash, path); err != nil {
		return fmt.Errorf("graph: set content hash: %w", err)
	}
	return nil
}

// ClearContentHashes forgets every dirty bit.
func (s *SQLite) ClearContentHashes(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE notes SET content_hash = ''`); err != nil {
		return fmt.Errorf("graph: clear content hashes: %w", err)
	}
	return nil
}

// ClearNoteEdges removes a note's outgoing tag and link edges.
func (s *SQLite) ClearNoteEdges(ctx context.Context, path string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM tagged_with WHERE path = ?`, path); err != nil {
		return fmt.Errorf("graph: clear tag edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM links_to WHERE source = ?`, path); err != nil {
		return fmt.Errorf("graph: clear link edges: %w", err)
	}
	return tx.Commit()
}

// AddTag connects a note to a tag, creating the tag node lazily.
func (s *SQLite) AddTag(ctx context.Context, path, tag string) error {
	if _, err := s.conn.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
		return fmt.Errorf("graph: ensure tag: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, `INSERT OR IGNORE INTO tagged_with (path, tag) VALUES (?, ?)`, path, tag); err != nil {
		return fmt.Errorf("graph: tag edge: %w", err)
	}
	return nil
}

// AddLink connects a note to the note titled targetTitle, if one exists.
// Wikilink targets resolve by exact title; no placeholder node is created
// for unmatched links.
func (s *SQLite) AddLink(ctx context.Context, sourcePath, targetTitle string) (bool, error) {
	var target string
	err := s.conn.QueryRowContext(ctx, `SELECT path FROM notes WHERE title = ? LIMIT 1`, targetTitle).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("graph: resolve link target: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, `INSERT OR IGNORE INTO links_to (source, target) VALUES (?, ?)`, sourcePath, target); err != nil {
		return false, fmt.Errorf("graph: link edge: %w", err)
	}
	return true, nil
}

// PruneOrphanTags deletes tags with no remaining edges.
func (s *SQLite) PruneOrphanTags(ctx context.Context) (int, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM tags WHERE name NOT IN (SELECT DISTINCT tag FROM tagged_with)`)
	if err != nil {
		return 0, fmt.Errorf("graph: prune orphan tags: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Backlinks returns the paths of notes linking to path.
func (s *SQLite) Backlinks(ctx context.Context, path string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT source FROM links_to WHERE target = ? ORDER BY source`, path)
}

// Neighbors returns a note's direct graph surroundings.
func (s *SQLite) Neighbors(ctx context.Context, path string) (*Neighborhood, error) {
	out, err := s.queryStrings(ctx, `SELECT target FROM links_to WHERE source = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, err
	}
	in, err := s.queryStrings(ctx, `SELECT source FROM links_to WHERE target = ? ORDER BY source`, path)
	if err != nil {
		return nil, err
	}
	tags, err := s.queryStrings(ctx, `SELECT tag FROM tagged_with WHERE path = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, err
	}
	return &Neighborhood{Out: out, In: in, Tags: tags}, nil
}

// EnsureVectorIndex checks the stored embedding model and dimensionality
// against the configured ones. On a mismatch the entire chunk set and every
// content hash are dropped in one transaction, forcing a full re-embed. The
// rebuild is not resumable: a failure here must surface, never be treated
// as success.
func (s *SQLite) EnsureVectorIndex(ctx context.Context, model string, dims int) (bool, error) {
	var curModel string
	var curDims int
	err := s.conn.QueryRowContext(ctx, `SELECT model, dims FROM index_meta WHERE id = 1`).Scan(&curModel, &curDims)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.conn.ExecContext(ctx, `INSERT INTO index_meta (id, model, dims) VALUES (1, ?, ?)`, model, dims); err != nil {
			return false, fmt.Errorf("graph: init index meta: %w", err)
		}
		return false, nil
	case err != nil:
		return false, fmt.Errorf("graph: read index meta: %w", err)
	}

	if curModel == model && curDims == dims {
		return false, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return false, fmt.Errorf("graph: drop chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notes SET content_hash = ''`); err != nil {
		return false, fmt.Errorf("graph: clear hashes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE index_meta SET model = ?, dims = ? WHERE id = 1`, model, dims); err != nil {
		return false, fmt.Errorf("graph: rewrite index meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("graph: commit index rebuild: %w", err)
	}
	return true, nil
}

// ReplaceChunks swaps a note's entire chunk set in one transaction.
func (s *SQLite) ReplaceChunks(ctx context.Context, path string, chunks []Chunk) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE note_path = ?`, path); err != nil {
		return fmt.Errorf("graph: delete chunks: %w", err)
	}
	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (note_path, idx, text, embedding) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("graph: prepare chunk insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range chunks {
			blob, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("graph: encode embedding: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, path, c.Index, c.Text, blob); err != nil {
				return fmt.Errorf("graph: insert chunk: %w", err)
			}
		}
	}
	return tx.Commit()
}

// SearchChunks scores every stored chunk by cosine similarity against the
// query embedding. Brute force is fine at vault scale.
func (s *SQLite) SearchChunks(ctx context.Context, embedding []float32, limit int, tag string) ([]ChunkMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT c.note_path, n.title, c.idx, c.text, c.embedding
		FROM chunks c JOIN notes n ON n.path = c.note_path`
	args := []any{}
	if tag != "" {
		query += ` WHERE c.note_path IN (SELECT path FROM tagged_with WHERE tag = ?)`
		args = append(args, tag)
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: search chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var blob []byte
		if err := rows.Scan(&m.Path, &m.Title, &m.Index, &m.Text, &blob); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal(blob, &vec); err != nil {
			continue
		}
		m.Score = cosineSimilarity(embedding, vec)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLite) CreateMemory(ctx context.Context, m models.Memory) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := s.conn.ExecContext(ctx, `INSERT INTO memories (id, type, content, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.Type, m.Content, created); err != nil {
		return fmt.Errorf("graph: create memory: %w", err)
	}
	return nil
}

func (s *SQLite) GetMemory(ctx context.Context, id string) (*models.Memory, error) {
	var m models.Memory
	err := s.conn.QueryRowContext(ctx, `SELECT id, type, content, created_at FROM memories WHERE id = ?`, id).
		Scan(&m.ID, &m.Type, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("graph: memory %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get memory: %w", err)
	}
	return &m, nil
}

func (s *SQLite) ListMemories(ctx context.Context, limit int) ([]models.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, type, content, created_at FROM memories ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("graph: list memories: %w", err)
	}
	defer rows.Close()

	var out []models.Memory
	for rows.Next() {
		var m models.Memory
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateMemory(ctx context.Context, id, content string) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE memories SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("graph: update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("graph: memory %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQLite) DeleteMemory(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.ExecContext(ctx, `DELETE FROM relations WHERE (source_table = 'memory' AND source_key = ?) OR (target_table = 'memory' AND target_key = ?)`, id, id)
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("graph: delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("graph: memory %s: %w", id, apperr.ErrNotFound)
	}
	return tx.Commit()
}

// EnsureEntityTable declares a custom entity type: a dedicated table plus a
// catalog row. The name is re-sanitized here because it gets interpolated
// into the CREATE statement.
func (s *SQLite) EnsureEntityTable(ctx context.Context, name string) error {
	safe, err := EntityTypeName(name)
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS entity_`+safe+` (name TEXT PRIMARY KEY, created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		return fmt.Errorf("graph: create entity table %s: %w", safe, err)
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO graph_schema (name, kind, internal) VALUES (?, 'entity', 0)`, safe); err != nil {
		return fmt.Errorf("graph: register entity type: %w", err)
	}
	return nil
}

// UpsertEntity creates or reuses the named row of a custom entity type.
func (s *SQLite) UpsertEntity(ctx context.Context, table, name string) (Ref, error) {
	safe, err := EntityTypeName(table)
	if err != nil {
		return Ref{}, err
	}
	if _, err := s.conn.ExecContext(ctx, `INSERT OR IGNORE INTO entity_`+safe+` (name) VALUES (?)`, name); err != nil {
		return Ref{}, fmt.Errorf("graph: upsert entity: %w", err)
	}
	return Ref{Table: safe, Key: name}, nil
}

// FindNoteByTitle resolves a note endpoint by exact title. Lookup only.
func (s *SQLite) FindNoteByTitle(ctx context.Context, title string) (Ref, error) {
	var path string
	err := s.conn.QueryRowContext(ctx, `SELECT path FROM notes WHERE title = ? LIMIT 1`, title).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, fmt.Errorf("graph: note titled %q: %w", title, apperr.ErrNotFound)
	}
	if err != nil {
		return Ref{}, fmt.Errorf("graph: find note: %w", err)
	}
	return Ref{Table: "note", Key: path}, nil
}

// FindMemory resolves a memory endpoint by id or exact content. Lookup only.
func (s *SQLite) FindMemory(ctx context.Context, key string) (Ref, error) {
	var id string
	err := s.conn.QueryRowContext(ctx, `SELECT id FROM memories WHERE id = ? OR content = ? LIMIT 1`, key, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, fmt.Errorf("graph: memory %q: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return Ref{}, fmt.Errorf("graph: find memory: %w", err)
	}
	return Ref{Table: "memory", Key: id}, nil
}

// EnsureRelationType declares a relation type in the schema catalog.
func (s *SQLite) EnsureRelationType(ctx context.Context, name string) error {
	safe, err := RelationTypeName(name)
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO graph_schema (name, kind, internal) VALUES (?, 'relation', 0)`, safe); err != nil {
		return fmt.Errorf("graph: register relation type: %w", err)
	}
	return nil
}

// EdgeExists reports whether the exact (source, relation, target) triple
// is already present.
func (s *SQLite) EdgeExists(ctx context.Context, source Ref, relation string, target Ref) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, `
		SELECT 1 FROM relations
		WHERE source_table = ? AND source_key = ? AND relation = ? AND target_table = ? AND target_key = ?
	`, source.Table, source.Key, relation, target.Table, target.Key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("graph: edge exists: %w", err)
	}
	return true, nil
}

func (s *SQLite) CreateEdge(ctx context.Context, source Ref, relation string, target Ref) error {
	if _, err := s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO relations (source_table, source_key, relation, target_table, target_key)
		VALUES (?, ?, ?, ?, ?)
	`, source.Table, source.Key, relation, target.Table, target.Key); err != nil {
		return fmt.Errorf("graph: create edge: %w", err)
	}
	return nil
}

// RelationTypes lists declared relation types from the catalog.
func (s *SQLite) RelationTypes(ctx context.Context, includeInternal bool) ([]string, error) {
	q := `SELECT name FROM graph_schema WHERE kind = 'relation'`
	if !includeInternal {
		q += ` AND internal = 0`
	}
	return s.queryStrings(ctx, q+` ORDER BY name`)
}

// EntityTypes lists custom entity types from the catalog.
func (s *SQLite) EntityTypes(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT name FROM graph_schema WHERE kind = 'entity' ORDER BY name`)
}

// Stats counts every core record and edge kind.
func (s *SQLite) Stats(ctx context.Context) (models.GraphStats, error) {
	var st models.GraphStats
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM notes`, &st.Notes},
		{`SELECT COUNT(*) FROM tags`, &st.Tags},
		{`SELECT COUNT(*) FROM chunks`, &st.Chunks},
		{`SELECT COUNT(*) FROM memories`, &st.Memories},
		{`SELECT COUNT(*) FROM links_to`, &st.Links},
		{`SELECT COUNT(*) FROM tagged_with`, &st.Taggings},
		{`SELECT COUNT(*) FROM graph_schema WHERE kind = 'entity'`, &st.Entities},
		{`SELECT COUNT(*) FROM relations`, &st.Relations},
	}
	for _, c := range counts {
		if err := s.conn.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return st, fmt.Errorf("graph: stats: %w", err)
		}
	}
	return st, nil
}

func (s *SQLite) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
