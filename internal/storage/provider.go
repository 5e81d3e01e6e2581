// Package storage defines the vault file-system abstraction, including the
// soft-delete trash subtree and corpus-wide link rewriting.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for vault file operations. All paths are
// corpus-relative with forward slashes; implementations reject any path
// that resolves outside the vault root.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault
	// root), skipping the trash subtree and dot-directories.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete permanently removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath. Callers check for conflicts first.
	Move(oldPath, newPath string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool

	// Trash moves path into the trash subtree, preserving its relative
	// layout. On a name collision a timestamp suffix is appended. Returns
	// the trash-relative path actually used.
	Trash(path string) (string, error)
	// Restore moves a trash entry back to its vault location. Fails with
	// apperr.ErrConflict if that location is occupied.
	Restore(trashPath string) (string, error)
	// ListTrash returns every trashed note.
	ListTrash() ([]models.TrashEntry, error)
	// EmptyTrash permanently deletes all trashed files and empty folders,
	// returning the number of files removed.
	EmptyTrash() (int, error)

	// RewriteLinks rewrites every [[oldTitle]] and [[oldTitle|alias]]
	// reference across the corpus to point at newTitle, preserving aliases.
	// Returns the number of files modified.
	RewriteLinks(oldTitle, newTitle string) (int, error)

	// Root returns the absolute vault root path.
	Root() string
}
