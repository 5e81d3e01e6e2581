package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/graph"
)

// Pipeline rewrites a note's chunk set from its current body. The vector
// index is verified once at construction; a model or dimension change
// forces the destructive full-corpus rebuild.
type Pipeline struct {
	store     graph.Store
	embedder  Embedder
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// New verifies the store's vector index against the embedder's model and
// dimensionality, then returns a ready pipeline. A dimension migration is
// non-interruptible: any error here must be treated as a failed startup,
// never skipped.
func New(ctx context.Context, store graph.Store, embedder Embedder, chunkSize, overlap int, logger *slog.Logger) (*Pipeline, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}

	rebuilt, err := store.EnsureVectorIndex(ctx, embedder.Model(), embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("pipeline: ensure vector index: %w", err)
	}
	if rebuilt {
		logger.Warn("vector index dimensionality changed; all chunks dropped, full re-embed required",
			slog.String("model", embedder.Model()),
			slog.Int("dims", embedder.Dimensions()))
	}

	return &Pipeline{
		store:     store,
		embedder:  embedder,
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    logger,
	}, nil
}

// Run replaces the chunk set for one note: split, embed, write whole.
// Nothing is persisted if embedding fails, so the caller's content hash
// stays untouched and the note retries on the next pass.
func (p *Pipeline) Run(ctx context.Context, path, body string) error {
	windows := Split(body, p.chunkSize, p.overlap)
	if len(windows) == 0 {
		return p.store.ReplaceChunks(ctx, path, nil)
	}

	vectors, err := p.embedder.Embed(ctx, windows)
	if err != nil {
		return fmt.Errorf("pipeline: embed %s: %w", path, err)
	}
	if len(vectors) != len(windows) {
		return fmt.Errorf("pipeline: embed %s: got %d vectors for %d chunks", path, len(vectors), len(windows))
	}

	chunks := make([]graph.Chunk, len(windows))
	for i, text := range windows {
		chunks[i] = graph.Chunk{Index: i, Text: text, Embedding: vectors[i]}
	}
	if err := p.store.ReplaceChunks(ctx, path, chunks); err != nil {
		return fmt.Errorf("pipeline: write chunks %s: %w", path, err)
	}
	p.logger.Debug("chunks rewritten", slog.String("path", path), slog.Int("count", len(chunks)))
	return nil
}

// EmbedQuery embeds one query text for similarity search.
func (p *Pipeline) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("pipeline: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("pipeline: embed query: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}
