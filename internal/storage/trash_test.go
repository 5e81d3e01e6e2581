package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func TestTrashAndRestoreRoundTrip(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("sub/keep.md", []byte("precious"))

	trashRel, err := s.Trash("sub/keep.md")
	if err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if trashRel != "sub/keep.md" {
		t.Errorf("trashRel = %q, want sub/keep.md", trashRel)
	}
	if s.Exists("sub/keep.md") {
		t.Error("file should be gone from vault")
	}

	restored, err := s.Restore(trashRel)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored != "sub/keep.md" {
		t.Errorf("restored = %q", restored)
	}
	got, err := s.Read("sub/keep.md")
	if err != nil {
		t.Fatalf("Read after restore: %v", err)
	}
	if string(got) != "precious" {
		t.Errorf("content = %q", got)
	}
}

func TestTrashCollisionSuffix(t *testing.T) {
	s := tempVault(t)

	_ = s.Write("note.md", []byte("first"))
	first, err := s.Trash("note.md")
	if err != nil {
		t.Fatalf("Trash first: %v", err)
	}

	_ = s.Write("note.md", []byte("second"))
	second, err := s.Trash("note.md")
	if err != nil {
		t.Fatalf("Trash second: %v", err)
	}

	if first == second {
		t.Fatalf("trash paths collide: %q", first)
	}
	if !strings.HasPrefix(second, "note_") || !strings.HasSuffix(second, ".md") {
		t.Errorf("second = %q, want timestamp-suffixed name", second)
	}

	entries, err := s.ListTrash()
	if err != nil {
		t.Fatalf("ListTrash: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	// Both remain independently restorable.
	if _, err := s.Restore(first); err != nil {
		t.Fatalf("Restore first: %v", err)
	}
	if _, err := s.Restore(second); err != nil {
		t.Fatalf("Restore second: %v", err)
	}
	got, _ := s.Read("note.md")
	if string(got) != "first" {
		t.Errorf("note.md = %q, want first", got)
	}
	got, _ = s.Read(second)
	if string(got) != "second" {
		t.Errorf("%s = %q, want second", second, got)
	}
}

func TestRestoreConflict(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("busy.md", []byte("old"))
	trashRel, _ := s.Trash("busy.md")

	// Occupy the original path.
	_ = s.Write("busy.md", []byte("new"))

	if _, err := s.Restore(trashRel); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Restore = %v, want ErrConflict", err)
	}
}

func TestRestoreMissing(t *testing.T) {
	s := tempVault(t)
	if _, err := s.Restore("never/was.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Restore = %v, want ErrNotFound", err)
	}
}

func TestTrashMissing(t *testing.T) {
	s := tempVault(t)
	if _, err := s.Trash("ghost.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Trash = %v, want ErrNotFound", err)
	}
}

func TestEmptyTrash(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("deep/b.md", []byte("b"))
	_, _ = s.Trash("a.md")
	_, _ = s.Trash("deep/b.md")

	count, err := s.EmptyTrash()
	if err != nil {
		t.Fatalf("EmptyTrash: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	entries, _ := s.ListTrash()
	if len(entries) != 0 {
		t.Errorf("trash not empty: %v", entries)
	}

	// Emptying an already-empty trash is a no-op.
	count, err = s.EmptyTrash()
	if err != nil || count != 0 {
		t.Errorf("second EmptyTrash = (%d, %v), want (0, nil)", count, err)
	}
}
