package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrPathTraversal marks a path that resolves outside the vault root.
	// Checked before any file or store I/O happens.
	ErrPathTraversal = errors.New("path escapes vault root")

	// ErrReservedName marks an attempt to use a core table name as a
	// dynamic entity or relation type.
	ErrReservedName = errors.New("reserved name")

	ErrInvalidTitle = errors.New("invalid title")

	// ErrEmbedderUnavailable is returned by semantic operations when no
	// embedding endpoint is configured.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
)
