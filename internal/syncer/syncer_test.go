package syncer

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

type stubEmbedder struct{ dims int }

func (s stubEmbedder) Model() string   { return "stub" }
func (s stubEmbedder) Dimensions() int { return s.dims }
func (s stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, s.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newSyncer(t *testing.T, withPipe bool) (*Syncer, storage.Provider, graph.Store) {
	t.Helper()
	_, store := testutil.TestVault(t)
	g := graph.NewMem()
	var pipe *pipeline.Pipeline
	if withPipe {
		var err error
		pipe, err = pipeline.New(context.Background(), g, stubEmbedder{dims: 4}, 0, 0, discard())
		if err != nil {
			t.Fatal(err)
		}
	}
	return New(store, g, pipe, discard()), store, g
}

func TestStructural_UpsertAndEdges(t *testing.T) {
	ctx := context.Background()
	s, store, g := newSyncer(t, false)

	testutil.WriteNote(t, store, "a.md", "links to [[b]] and tagged #Python #python\n")
	testutil.WriteNote(t, store, "b.md", "plain note\n")

	stats, err := s.Structural(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != 2 || stats.Pruned != 0 {
		t.Errorf("stats = %+v", stats)
	}
	// #Python and #python collapse to one tag edge.
	if stats.Tags != 1 {
		t.Errorf("tags = %d, want 1", stats.Tags)
	}
	if stats.Links != 1 {
		t.Errorf("links = %d, want 1", stats.Links)
	}

	n, err := g.GetNote(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(n.Tags, []string{"python"}) {
		t.Errorf("tags = %v, want [python]", n.Tags)
	}
	if !reflect.DeepEqual(n.Links, []string{"b.md"}) {
		t.Errorf("links = %v, want [b.md]", n.Links)
	}
}

func TestStructural_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, store, g := newSyncer(t, false)

	testutil.WriteNote(t, store, "a.md", "#tag and [[b]]\n")
	testutil.WriteNote(t, store, "b.md", "target\n")

	first, err := s.Structural(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Structural(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("stats drifted: %+v vs %+v", first, second)
	}

	st, err := g.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Links != 1 || st.Taggings != 1 {
		t.Errorf("edges duplicated: %+v", st)
	}
}

func TestStructural_EditRemovesTagEdge(t *testing.T) {
	ctx := context.Background()
	s, store, g := newSyncer(t, false)

	testutil.WriteNote(t, store, "a.md", "#keep #drop\n")
	if _, err := s.Structural(ctx); err != nil {
		t.Fatal(err)
	}

	testutil.WriteNote(t, store, "a.md", "#keep\n")
	if _, err := s.Structural(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := g.GetNote(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(n.Tags, []string{"keep"}) {
		t.Errorf("tags = %v, want [keep]", n.Tags)
	}
}

func TestStructural_LinkAppearsWhenTargetCreated(t *testing.T) {
	ctx := context.Background()
	s, store, g := newSyncer(t, false)

	testutil.WriteNote(t, store, "n.md", "see [[Target]]\n")
	stats, err := s.Structural(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Links != 0 {
		t.Errorf("links = %d before target exists, want 0", stats.Links)
	}

	testutil.WriteNote(t, store, "Target.md", "now here\n")
	stats, err = s.Structural(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Links != 1 {
		t.Errorf("links = %d after target created, want 1", stats.Links)
	}
	n, _ := g.GetNote(ctx, "n.md")
	if !reflect.DeepEqual(n.Links, []string{"Target.md"}) {
		t.Errorf("links = %v", n.Links)
	}
}

func TestStructural_PrunesDeletedFiles(t *testing.T) {
	ctx := context.Background()
	s, store, g := newSyncer(t, false)

	testutil.WriteNote(t, store, "gone.md", "#solo\n")
	if _, err := s.Structural(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("gone.md"); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Structural(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", stats.Pruned)
	}
	st, _ := g.Stats(ctx)
	if st.Notes != 0 || st.Tags != 0 {
		t.Errorf("prune left notes=%d tags=%d", st.Notes, st.Tags)
	}
}

func TestSemantic_HashGate(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newSyncer(t, true)

	testutil.WriteNote(t, store, "a.md", "content a\n")
	testutil.WriteNote(t, store, "b.md", "content b\n")
	if _, err := s.Structural(ctx); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Semantic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 2 || stats.Skipped != 0 {
		t.Errorf("first pass = %+v, want 2 processed", stats)
	}

	// Unmodified corpus: nothing processed.
	stats, err = s.Semantic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 0 || stats.Skipped != 2 {
		t.Errorf("second pass = %+v, want 2 skipped", stats)
	}

	// Editing exactly one file reprocesses exactly that file.
	testutil.WriteNote(t, store, "a.md", "content a changed\n")
	stats, err = s.Semantic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 1 || stats.Skipped != 1 {
		t.Errorf("after edit = %+v, want 1 processed 1 skipped", stats)
	}
}

func TestSemantic_EmptyBodySkipped(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newSyncer(t, true)

	testutil.WriteNote(t, store, "empty.md", "")
	if _, err := s.Structural(ctx); err != nil {
		t.Fatal(err)
	}
	stats, err := s.Semantic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 0 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSemantic_NoEmbedder(t *testing.T) {
	s, _, _ := newSyncer(t, false)
	if _, err := s.Semantic(context.Background()); !errors.Is(err, apperr.ErrEmbedderUnavailable) {
		t.Errorf("err = %v, want ErrEmbedderUnavailable", err)
	}
}

func TestFull_DegradedWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newSyncer(t, false)
	testutil.WriteNote(t, store, "a.md", "hello\n")

	report, err := s.Full(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Structural.Notes != 1 {
		t.Errorf("structural notes = %d", report.Structural.Notes)
	}
	if report.Semantic.Processed != 0 {
		t.Errorf("semantic ran without embedder: %+v", report.Semantic)
	}
}

func TestFull_BothPasses(t *testing.T) {
	ctx := context.Background()
	s, store, g := newSyncer(t, true)
	testutil.WriteNote(t, store, "a.md", "hello #tag\n")

	report, err := s.Full(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Structural.Notes != 1 || report.Semantic.Processed != 1 {
		t.Errorf("report = %+v", report)
	}
	st, _ := g.Stats(ctx)
	if st.Chunks == 0 {
		t.Error("no chunks written by full sync")
	}
}
