package graph

import (
	"context"
	"os"
	"testing"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	s, err := OpenSQLite(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_ClearNoteEdgesSurfacesFailure(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	mustUpsert(t, s, "a.md", "a", "body")
	if err := s.AddTag(ctx, "a.md", "alpha"); err != nil {
		t.Fatal(err)
	}

	// Break the edge table out from under the store: the clear must report
	// the failure instead of committing a partial result.
	if _, err := s.conn.ExecContext(ctx, `DROP TABLE tagged_with`); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearNoteEdges(ctx, "a.md"); err == nil {
		t.Fatal("expected error after edge table dropped")
	}
}
