package api

import "github.com/starford/ansuz/internal/noteservice"

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"topics/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// RenameRequest is the request body for renaming a note.
type RenameRequest struct {
	Path     string `json:"path" example:"topics/old.md" validate:"required"`
	NewTitle string `json:"new_title" example:"new" validate:"required"`
}

// RestoreRequest is the request body for restoring a trashed note.
type RestoreRequest struct {
	Path string `json:"path" example:"topics/old.md" validate:"required"`
}

// CreateMemoryRequest is the request body for storing a memory.
type CreateMemoryRequest struct {
	Type    string `json:"type" example:"insight"`
	Content string `json:"content" example:"vault prefers short titles" validate:"required"`
}

// CreateConnectionRequest is the request body for the dynamic connection
// tool.
type CreateConnectionRequest struct {
	SourceType string `json:"source_type" example:"note" validate:"required"`
	SourceName string `json:"source_name" example:"Go" validate:"required"`
	Relation   string `json:"relation" example:"implemented in" validate:"required"`
	TargetType string `json:"target_type" example:"person" validate:"required"`
	TargetName string `json:"target_name" example:"Rob Pike" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}
