// Package models defines the domain types for Ansuz.
package models

import "time"

// Note is one vault document as mirrored into the graph: path is the
// corpus-relative key, title the filename stem, body the content with
// frontmatter stripped.
type Note struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Links       []string       `json:"links,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ModifiedAt  time.Time      `json:"modified_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrashEntry describes one soft-deleted file inside the trash subtree.
// Path is relative to the trash root and mirrors the note's original
// location (possibly carrying a collision suffix).
type TrashEntry struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	TrashedAt time.Time `json:"trashed_at"`
}

// Memory is an agent-authored knowledge record with no backing file.
type Memory struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// StructuralStats reports one structural sync pass.
type StructuralStats struct {
	Notes  int `json:"notes"`
	Tags   int `json:"tags"`
	Links  int `json:"links"`
	Pruned int `json:"pruned"`
}

// SemanticStats reports one semantic sync pass.
type SemanticStats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// SyncReport combines both passes of a full sync.
type SyncReport struct {
	Structural StructuralStats `json:"structural"`
	Semantic   SemanticStats   `json:"semantic"`
}

// GraphStats counts every core record and edge kind in the store.
type GraphStats struct {
	Notes     int `json:"notes"`
	Tags      int `json:"tags"`
	Chunks    int `json:"chunks"`
	Memories  int `json:"memories"`
	Links     int `json:"links"`
	Taggings  int `json:"taggings"`
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// GraphNode is a node in a neighborhood or overview response.
type GraphNode struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
}

// GraphEdge is an edge in a neighborhood or overview response.
type GraphEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// RenameResult reports a completed rename, including how many referencing
// files had their wikilinks rewritten.
type RenameResult struct {
	Path         string `json:"path"`
	Title        string `json:"title"`
	OldTitle     string `json:"old_title"`
	LinksUpdated int    `json:"links_updated"`
}
