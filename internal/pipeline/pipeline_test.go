package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
)

type fakeEmbedder struct {
	model string
	dims  int
	fail  bool
	calls int
}

func (f *fakeEmbedder) Model() string    { return f.model }
func (f *fakeEmbedder) Dimensions() int  { return f.dims }
func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newPipeline(t *testing.T, emb Embedder) (*Pipeline, graph.Store) {
	t.Helper()
	store := graph.NewMem()
	p, err := New(context.Background(), store, emb, 100, 10, discard())
	if err != nil {
		t.Fatal(err)
	}
	return p, store
}

func TestRun_WritesChunkSet(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{model: "fake", dims: 3}
	p, store := newPipeline(t, emb)

	if err := store.UpsertNote(ctx, models.Note{Path: "a.md", Title: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(ctx, "a.md", strings.Repeat("x", 250)); err != nil {
		t.Fatal(err)
	}
	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Chunks != 3 {
		t.Errorf("chunks = %d, want 3 (step 90 over 250 chars)", st.Chunks)
	}

	// A shorter body replaces the whole set, never patches.
	if err := p.Run(ctx, "a.md", "short"); err != nil {
		t.Fatal(err)
	}
	st, _ = store.Stats(ctx)
	if st.Chunks != 1 {
		t.Errorf("chunks after rewrite = %d, want 1", st.Chunks)
	}
}

func TestRun_EmptyBodyClearsChunks(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{model: "fake", dims: 3}
	p, store := newPipeline(t, emb)

	if err := store.UpsertNote(ctx, models.Note{Path: "a.md", Title: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(ctx, "a.md", "body"); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(ctx, "a.md", ""); err != nil {
		t.Fatal(err)
	}
	st, _ := store.Stats(ctx)
	if st.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", st.Chunks)
	}
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want 1 (empty body never embeds)", emb.calls)
	}
}

func TestRun_EmbedFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{model: "fake", dims: 3, fail: true}
	p, store := newPipeline(t, emb)

	if err := store.UpsertNote(ctx, models.Note{Path: "a.md", Title: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(ctx, "a.md", "body"); err == nil {
		t.Fatal("expected error from failing embedder")
	}
	st, _ := store.Stats(ctx)
	if st.Chunks != 0 {
		t.Errorf("chunks = %d after failed embed, want 0", st.Chunks)
	}
}

func TestNew_DimensionChangeForcesRebuild(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMem()

	if _, err := New(ctx, store, &fakeEmbedder{model: "m", dims: 3}, 0, 0, discard()); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertNote(ctx, models.Note{Path: "a.md", Title: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetContentHash(ctx, "a.md", "h"); err != nil {
		t.Fatal(err)
	}
	if err := store.ReplaceChunks(ctx, "a.md", []graph.Chunk{{Text: "t", Embedding: []float32{1, 2, 3}}}); err != nil {
		t.Fatal(err)
	}

	// New dimensionality drops chunks and hashes at construction.
	if _, err := New(ctx, store, &fakeEmbedder{model: "m", dims: 8}, 0, 0, discard()); err != nil {
		t.Fatal(err)
	}
	st, _ := store.Stats(ctx)
	if st.Chunks != 0 {
		t.Errorf("chunks survived dimension change: %d", st.Chunks)
	}
	h, _ := store.ContentHash(ctx, "a.md")
	if h != "" {
		t.Errorf("hash survived dimension change: %q", h)
	}
}

func TestEmbedQuery(t *testing.T) {
	p, _ := newPipeline(t, &fakeEmbedder{model: "fake", dims: 3})
	vec, err := p.EmbedQuery(context.Background(), "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Errorf("query vector dims = %d, want 3", len(vec))
	}
}
