package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/syncer"
	"github.com/starford/ansuz/internal/testutil"
)

type fixedEmbedder struct{ dims int }

func (f fixedEmbedder) Model() string   { return "fixed" }
func (f fixedEmbedder) Dimensions() int { return f.dims }
func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newService(t *testing.T, withPipe bool) (*Service, storage.Provider, graph.Store) {
	t.Helper()
	_, store := testutil.TestVault(t)
	g := graph.NewMem()
	var pipe *pipeline.Pipeline
	if withPipe {
		var err error
		pipe, err = pipeline.New(context.Background(), g, fixedEmbedder{dims: 4}, 0, 0, discard())
		if err != nil {
			t.Fatal(err)
		}
	}
	sync := syncer.New(store, g, pipe, discard())
	return NewService(store, g, sync, pipe, discard()), store, g
}

func TestCreateNote(t *testing.T) {
	ctx := context.Background()
	svc, _, g := newService(t, false)

	detail, err := svc.CreateNote(ctx, "ideas.md", []byte("a thought #draft\n"))
	if err != nil {
		t.Fatal(err)
	}
	if detail.Title != "ideas" || len(detail.Tags) != 1 || detail.Tags[0] != "draft" {
		t.Errorf("detail = %+v", detail)
	}
	if detail.Checksum == "" {
		t.Error("checksum missing")
	}
	if _, err := g.GetNote(ctx, "ideas.md"); err != nil {
		t.Errorf("node not indexed after create: %v", err)
	}

	if _, err := svc.CreateNote(ctx, "ideas.md", []byte("again")); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v, want ErrAlreadyExists", err)
	}
}

func TestUpdateNote_IfMatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, false)

	created, err := svc.CreateNote(ctx, "n.md", []byte("v1"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateNote(ctx, "n.md", []byte("v2"), "deadbeef"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale checksum err = %v, want ErrConflict", err)
	}

	updated, err := svc.UpdateNote(ctx, "n.md", []byte("v2"), created.Checksum)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Content != "v2" {
		t.Errorf("content = %q", updated.Content)
	}

	// Empty If-Match skips the concurrency check.
	if _, err := svc.UpdateNote(ctx, "n.md", []byte("v3"), ""); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateNote(ctx, "missing.md", []byte("x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, g := newService(t, false)

	if _, err := svc.CreateNote(ctx, "keep.md", []byte("#shared\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "gone.md", []byte("#shared #solo\n")); err != nil {
		t.Fatal(err)
	}

	trashPath, err := svc.DeleteNote(ctx, "gone.md")
	if err != nil {
		t.Fatal(err)
	}
	if trashPath == "" {
		t.Fatal("no trash path returned")
	}
	if store.Exists("gone.md") {
		t.Error("file still in vault after delete")
	}
	if _, err := g.GetNote(ctx, "gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("node survived delete: %v", err)
	}

	// The tag only gone.md carried is orphaned and pruned; the shared one
	// survives.
	stats, err := svc.GraphStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Tags != 1 {
		t.Errorf("tags = %d after delete, want 1", stats.Tags)
	}

	entries, err := svc.ListTrash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != trashPath {
		t.Errorf("trash = %+v", entries)
	}

	restored, err := svc.RestoreNote(ctx, trashPath)
	if err != nil {
		t.Fatal(err)
	}
	if restored != "gone.md" {
		t.Errorf("restored to %q", restored)
	}
	if _, err := g.GetNote(ctx, "gone.md"); err != nil {
		t.Errorf("node not re-indexed after restore: %v", err)
	}
}

func TestEmptyTrash(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, false)

	if _, err := svc.CreateNote(ctx, "a.md", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DeleteNote(ctx, "a.md"); err != nil {
		t.Fatal(err)
	}

	count, err := svc.EmptyTrash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	entries, _ := svc.ListTrash(ctx)
	if len(entries) != 0 {
		t.Errorf("trash not empty: %+v", entries)
	}
}

func TestRenameNote(t *testing.T) {
	ctx := context.Background()
	svc, store, g := newService(t, false)

	if _, err := svc.CreateNote(ctx, "Old Name.md", []byte("content\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "ref.md", []byte("see [[Old Name|the one]]\n")); err != nil {
		t.Fatal(err)
	}

	res, err := svc.RenameNote(ctx, "Old Name.md", "New Name")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "New Name.md" || res.OldTitle != "Old Name" || res.LinksUpdated != 1 {
		t.Errorf("result = %+v", res)
	}
	if store.Exists("Old Name.md") || !store.Exists("New Name.md") {
		t.Error("file not moved")
	}

	// The alias survives the rewrite.
	data, err := store.Read("ref.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[[New Name|the one]]") {
		t.Errorf("ref.md = %q", data)
	}

	bl, err := svc.Backlinks(ctx, "New Name.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 1 || bl[0] != "ref.md" {
		t.Errorf("backlinks = %v", bl)
	}
	if _, err := g.GetNote(ctx, "Old Name.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("old node survived rename")
	}
}

func TestRenameNote_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, false)

	if _, err := svc.CreateNote(ctx, "alpha.md", []byte("content\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "ref.md", []byte("see [[alpha]]\n")); err != nil {
		t.Fatal(err)
	}

	if res, err := svc.RenameNote(ctx, "alpha.md", "beta"); err != nil || res.LinksUpdated != 1 {
		t.Fatalf("rename to beta: res=%+v err=%v", res, err)
	}
	if res, err := svc.RenameNote(ctx, "beta.md", "alpha"); err != nil || res.LinksUpdated != 1 {
		t.Fatalf("rename back to alpha: res=%+v err=%v", res, err)
	}

	data, err := store.Read("ref.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[[alpha]]") {
		t.Errorf("ref.md = %q, want link restored", data)
	}
	bl, err := svc.Backlinks(ctx, "alpha.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 1 || bl[0] != "ref.md" {
		t.Errorf("backlinks = %v", bl)
	}
}

func TestRenameNote_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, false)

	if _, err := svc.CreateNote(ctx, "a.md", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "b.md", []byte("b")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RenameNote(ctx, "a.md", "bad/title"); !errors.Is(err, apperr.ErrInvalidTitle) {
		t.Errorf("err = %v, want ErrInvalidTitle", err)
	}
	if _, err := svc.RenameNote(ctx, "a.md", "b"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if _, err := svc.RenameNote(ctx, "missing.md", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSemanticSearch_Degraded(t *testing.T) {
	svc, _, _ := newService(t, false)
	if _, err := svc.SemanticSearch(context.Background(), "anything", 5, ""); !errors.Is(err, apperr.ErrEmbedderUnavailable) {
		t.Errorf("err = %v, want ErrEmbedderUnavailable", err)
	}
}

func TestSemanticSearch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, true)

	if _, err := svc.CreateNote(ctx, "a.md", []byte("some content here")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SyncSemantic(ctx); err != nil {
		t.Fatal(err)
	}

	matches, err := svc.SemanticSearch(ctx, "query", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Path != "a.md" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestMemories(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, false)

	m, err := svc.StoreMemory(ctx, "insight", "the vault prefers short titles")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.Type != "insight" {
		t.Errorf("memory = %+v", m)
	}

	if _, err := svc.StoreMemory(ctx, "insight", ""); err == nil {
		t.Error("empty content accepted")
	}

	mems, err := svc.ListMemories(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(mems) != 1 {
		t.Errorf("memories = %+v", mems)
	}

	if err := svc.DeleteMemory(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	mems, _ = svc.ListMemories(ctx, 10)
	if len(mems) != 0 {
		t.Error("memory survived delete")
	}
}

func TestCreateConnection(t *testing.T) {
	ctx := context.Background()
	svc, _, g := newService(t, false)

	if _, err := svc.CreateNote(ctx, "Go.md", []byte("the language")); err != nil {
		t.Fatal(err)
	}

	if err := svc.CreateConnection(ctx, "note", "Go", "implemented in", "Person", "Rob Pike"); err != nil {
		t.Fatal(err)
	}
	// Same triple again: silent no-op.
	if err := svc.CreateConnection(ctx, "note", "Go", "implemented in", "Person", "Rob Pike"); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.GraphStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Relations != 1 {
		t.Errorf("relations = %d, want 1", stats.Relations)
	}

	rels, err := g.RelationTypes(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range rels {
		if r == "implemented_in" {
			found = true
		}
	}
	if !found {
		t.Errorf("relation types = %v, want implemented_in declared", rels)
	}
}

func TestCreateConnection_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _, g := newService(t, false)

	if err := svc.CreateConnection(ctx, "note", "Nope", "mentions", "Topic", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note err = %v, want ErrNotFound", err)
	}
	if err := svc.CreateConnection(ctx, "Topic", "x", "links_to", "Topic", "y"); !errors.Is(err, apperr.ErrReservedName) {
		t.Errorf("reserved relation err = %v, want ErrReservedName", err)
	}
	if err := svc.CreateConnection(ctx, "tag", "x", "mentions", "Topic", "y"); !errors.Is(err, apperr.ErrReservedName) {
		t.Errorf("reserved entity err = %v, want ErrReservedName", err)
	}

	// A rejected call must not declare anything: the new source type is
	// validated along with relation and target before any resolution.
	if err := svc.CreateConnection(ctx, "person", "Alice", "mentions", "tag", "x"); !errors.Is(err, apperr.ErrReservedName) {
		t.Errorf("reserved target err = %v, want ErrReservedName", err)
	}
	types, err := g.EntityTypes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 0 {
		t.Errorf("entity types = %v, want none after rejected calls", types)
	}
}

func TestNeighborhood(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, false)

	if _, err := svc.CreateNote(ctx, "a.md", []byte("[[b]] #alpha\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "b.md", []byte("[[c]]\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "c.md", []byte("leaf\n")); err != nil {
		t.Fatal(err)
	}

	// Depth 1 from a: a, b, and a's tag; c is two hops away.
	nb, err := svc.Neighborhood(ctx, "a.md", 1)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, n := range nb.Nodes {
		ids[n.ID] = true
	}
	if !ids["a.md"] || !ids["b.md"] || !ids["tag:alpha"] {
		t.Errorf("depth-1 nodes = %v", ids)
	}
	if ids["c.md"] {
		t.Error("c.md reachable at depth 1")
	}

	nb, err = svc.Neighborhood(ctx, "a.md", 2)
	if err != nil {
		t.Fatal(err)
	}
	ids = map[string]bool{}
	for _, n := range nb.Nodes {
		ids[n.ID] = true
	}
	if !ids["c.md"] {
		t.Error("c.md not reachable at depth 2")
	}

	if _, err := svc.Neighborhood(ctx, "missing.md", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
