// Package graph provides the property-graph store behind the sync engine:
// note nodes, tag and link edges, embedded chunks, agent memories, and
// dynamically declared entity/relation types. Two backends implement the
// same contract: a persistent SQLite store and an in-process one.
package graph

import (
	"context"

	"github.com/starford/ansuz/internal/models"
)

// Ref identifies one edge endpoint: a logical table plus the key of a row
// in it (path for notes, id for memories, name for custom entities).
type Ref struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

// Chunk is one embedded slice of a note's body.
type Chunk struct {
	Index     int
	Text      string
	Embedding []float32
}

// ChunkMatch is one semantic search hit.
type ChunkMatch struct {
	Path  string  `json:"path"`
	Title string  `json:"title"`
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SearchResult is one keyword search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Neighborhood holds the direct graph surroundings of one note.
type Neighborhood struct {
	Out  []string `json:"out"`
	In   []string `json:"in"`
	Tags []string `json:"tags"`
}

// Store is the contract every graph backend implements. Query dialects stay
// behind this interface; callers never assemble backend query text.
//
// Notes are keyed by corpus-relative path. Tag and link edge sets are always
// rebuilt whole (ClearNoteEdges then AddTag/AddLink per item), never diffed.
// Link edges are created only when the target title resolves to an existing
// note. Content hashes advance independently of note upserts.
type Store interface {
	// UpsertNote creates or updates the node for a parsed document.
	// created_at is set on first insertion only; tags/links are ignored
	// here and maintained through edge calls.
	UpsertNote(ctx context.Context, n models.Note) error
	// GetNote returns a note with tags and outgoing link targets attached,
	// or apperr.ErrNotFound.
	GetNote(ctx context.Context, path string) (*models.Note, error)
	// ListNotes returns a page of notes plus the unfiltered total.
	// sort is one of "modified_at" (default, descending), "title", "path".
	ListNotes(ctx context.Context, limit, offset int, tag, sort string) ([]models.Note, int, error)
	// NotePaths returns the set of every known note path.
	NotePaths(ctx context.Context) (map[string]struct{}, error)
	// DeleteNote prunes a note and cascades to its chunks and edges in both
	// directions, including dynamic relations. Idempotent.
	DeleteNote(ctx context.Context, path string) error
	// RenameNote updates a note's path and title in place; edges and chunks
	// follow the new path.
	RenameNote(ctx context.Context, oldPath, newPath, newTitle string) error

	// ContentHash returns the stored dirty bit for a note, "" when unset.
	ContentHash(ctx context.Context, path string) (string, error)
	SetContentHash(ctx context.Context, path, hash string) error
	// ClearContentHashes forgets every dirty bit, forcing full re-embedding.
	ClearContentHashes(ctx context.Context) error

	// ClearNoteEdges removes a note's outgoing tag and link edges.
	ClearNoteEdges(ctx context.Context, path string) error
	// AddTag connects a note to a tag, creating the tag node lazily.
	AddTag(ctx context.Context, path, tag string) error
	// AddLink connects a note to the note titled targetTitle, if one
	// exists. Reports whether an edge was created.
	AddLink(ctx context.Context, sourcePath, targetTitle string) (bool, error)
	// PruneOrphanTags deletes tags with no remaining edges.
	PruneOrphanTags(ctx context.Context) (int, error)
	// Backlinks returns the paths of notes linking to path.
	Backlinks(ctx context.Context, path string) ([]string, error)
	// Neighbors returns a note's direct graph surroundings.
	Neighbors(ctx context.Context, path string) (*Neighborhood, error)

	// EnsureVectorIndex guarantees the chunk index matches the configured
	// embedding model and dimensionality. On a mismatch all chunks and all
	// content hashes are dropped and the index is re-declared; the return
	// value reports whether that destructive rebuild happened.
	EnsureVectorIndex(ctx context.Context, model string, dims int) (bool, error)
	// ReplaceChunks swaps a note's entire chunk set in one operation.
	ReplaceChunks(ctx context.Context, path string, chunks []Chunk) error
	// SearchChunks returns the closest chunks by cosine similarity,
	// optionally restricted to notes carrying tag.
	SearchChunks(ctx context.Context, embedding []float32, limit int, tag string) ([]ChunkMatch, error)

	// SearchNotes performs keyword search over titles and bodies.
	SearchNotes(ctx context.Context, query string, limit int, tag string) ([]SearchResult, error)

	CreateMemory(ctx context.Context, m models.Memory) error
	GetMemory(ctx context.Context, id string) (*models.Memory, error)
	ListMemories(ctx context.Context, limit int) ([]models.Memory, error)
	UpdateMemory(ctx context.Context, id, content string) error
	DeleteMemory(ctx context.Context, id string) error

	// EnsureEntityTable declares a custom entity type. name must already be
	// sanitized and non-reserved; backends sanitize again before any
	// identifier interpolation.
	EnsureEntityTable(ctx context.Context, name string) error
	// UpsertEntity creates or reuses the named row of a custom entity type.
	UpsertEntity(ctx context.Context, table, name string) (Ref, error)
	// FindNoteByTitle resolves a note endpoint by exact title (lookup-only).
	FindNoteByTitle(ctx context.Context, title string) (Ref, error)
	// FindMemory resolves a memory endpoint by id or exact content
	// (lookup-only).
	FindMemory(ctx context.Context, key string) (Ref, error)
	// EnsureRelationType declares a relation type in the schema catalog.
	EnsureRelationType(ctx context.Context, name string) error
	// EdgeExists reports whether the exact (source, relation, target)
	// triple is already present.
	EdgeExists(ctx context.Context, source Ref, relation string, target Ref) (bool, error)
	CreateEdge(ctx context.Context, source Ref, relation string, target Ref) error
	// RelationTypes lists declared relation types; internal ones (the
	// chunk-to-note edge) are excluded unless includeInternal is set.
	RelationTypes(ctx context.Context, includeInternal bool) ([]string, error)
	// EntityTypes lists custom entity types, excluding core tables.
	EntityTypes(ctx context.Context) ([]string, error)

	Stats(ctx context.Context) (models.GraphStats, error)

	Close() error
}

// Open creates a Store for the configured driver: "sqlite" (persistent)
// or "memory" (in-process, ephemeral).
func Open(driver, path string) (Store, error) {
	if driver == "memory" {
		return NewMem(), nil
	}
	return OpenSQLite(path)
}
