// Package syncer keeps the graph store consistent with the on-disk vault.
// Structural sync rebuilds nodes and tag/link edges from parsed documents;
// semantic sync re-embeds changed documents behind a content-hash gate.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/storage"
)

// Syncer drives both sync passes. It is safe for concurrent use: the
// structural pass holds one process-wide mutex so overlapping triggers
// (watcher, API, CLI) cannot interleave edge rebuilding, while the
// semantic pass relies on the hash gate for idempotence instead.
type Syncer struct {
	store  storage.Provider
	graph  graph.Store
	pipe   *pipeline.Pipeline // nil when no embedder is configured
	logger *slog.Logger

	structuralMu sync.Mutex
}

// New creates a Syncer. pipe may be nil; semantic sync then reports
// apperr.ErrEmbedderUnavailable while structural sync keeps working.
func New(store storage.Provider, g graph.Store, pipe *pipeline.Pipeline, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, graph: g, pipe: pipe, logger: logger}
}

// parsedDoc pairs a corpus-relative path with its parsed content.
type parsedDoc struct {
	path string
	res  *parser.Result
}

// Structural runs the two-pass structural sync under the process-wide
// lock. Pass 1 upserts a node per on-disk document and prunes nodes whose
// files are gone (cascading to chunks and edges, then orphaned tags).
// Pass 2 rebuilds each note's tag and link edge sets from scratch. There
// is no hash gating: the pass runs whole every time.
func (s *Syncer) Structural(ctx context.Context) (models.StructuralStats, error) {
	s.structuralMu.Lock()
	defer s.structuralMu.Unlock()

	var stats models.StructuralStats

	metas, err := s.store.List("")
	if err != nil {
		return stats, fmt.Errorf("syncer: list vault: %w", err)
	}

	known, err := s.graph.NotePaths(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncer: known paths: %w", err)
	}

	// Pass 1: upsert every on-disk document.
	docs := make([]parsedDoc, 0, len(metas))
	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}

		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("structural: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		res := parser.Parse(m.Path, data)
		if err := s.graph.UpsertNote(ctx, models.Note{
			Path:     m.Path,
			Title:    res.Title,
			Body:     res.Body,
			Metadata: res.Metadata,
		}); err != nil {
			s.logger.Warn("structural: upsert failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, parsedDoc{path: m.Path, res: res})
		stats.Notes++
	}

	// Prune nodes whose files disappeared.
	for p := range known {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := s.graph.DeleteNote(ctx, p); err != nil {
			s.logger.Warn("structural: prune failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Pruned++
	}
	if stats.Pruned > 0 {
		if n, err := s.graph.PruneOrphanTags(ctx); err != nil {
			s.logger.Warn("structural: orphan tag prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.Debug("structural: pruned orphan tags", slog.Int("count", n))
		}
	}

	// Pass 2: rebuild edge sets whole, never diffed.
	for _, doc := range docs {
		if err := s.graph.ClearNoteEdges(ctx, doc.path); err != nil {
			s.logger.Warn("structural: clear edges failed", slog.String("path", doc.path), slog.String("error", err.Error()))
			continue
		}
		for _, tag := range doc.res.Tags {
			if err := s.graph.AddTag(ctx, doc.path, tag); err != nil {
				s.logger.Warn("structural: tag edge failed", slog.String("path", doc.path), slog.String("tag", tag), slog.String("error", err.Error()))
				continue
			}
			stats.Tags++
		}
		for _, target := range doc.res.Links {
			created, err := s.graph.AddLink(ctx, doc.path, target)
			if err != nil {
				s.logger.Warn("structural: link edge failed", slog.String("path", doc.path), slog.String("target", target), slog.String("error", err.Error()))
				continue
			}
			if created {
				stats.Links++
			}
		}
	}

	s.logger.Info("structural sync complete",
		slog.Int("notes", stats.Notes),
		slog.Int("tags", stats.Tags),
		slog.Int("links", stats.Links),
		slog.Int("pruned", stats.Pruned))
	return stats, nil
}

// Semantic runs the hash-gated embedding pass. Per note: an unchanged
// content hash skips; otherwise the chunk set is rewritten and only then
// the new hash persisted, so a failed embed retries next pass. One note's
// failure never aborts the batch.
func (s *Syncer) Semantic(ctx context.Context) (models.SemanticStats, error) {
	var stats models.SemanticStats
	if s.pipe == nil {
		return stats, fmt.Errorf("syncer: semantic sync: %w", apperr.ErrEmbedderUnavailable)
	}

	metas, err := s.store.List("")
	if err != nil {
		return stats, fmt.Errorf("syncer: list vault: %w", err)
	}

	for _, m := range metas {
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("semantic: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		res := parser.Parse(m.Path, data)
		if res.Body == "" {
			stats.Skipped++
			continue
		}

		current := checksum.Sum(data)
		stored, err := s.graph.ContentHash(ctx, m.Path)
		if err != nil {
			s.logger.Warn("semantic: hash lookup failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		if stored == current {
			stats.Skipped++
			continue
		}

		if err := s.pipe.Run(ctx, m.Path, res.Body); err != nil {
			// Hash stays untouched so this note retries next pass.
			s.logger.Warn("semantic: embed failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		if err := s.graph.SetContentHash(ctx, m.Path, current); err != nil {
			s.logger.Warn("semantic: hash persist failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		stats.Processed++
	}

	s.logger.Info("semantic sync complete",
		slog.Int("processed", stats.Processed),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

// Full runs structural sync then semantic sync. With no embedder
// configured the semantic half is skipped and the structural result still
// returned (degraded mode).
func (s *Syncer) Full(ctx context.Context) (models.SyncReport, error) {
	var report models.SyncReport

	structural, err := s.Structural(ctx)
	if err != nil {
		return report, err
	}
	report.Structural = structural

	if s.pipe == nil {
		s.logger.Warn("full sync: no embedder configured, semantic pass skipped")
		return report, nil
	}
	semantic, err := s.Semantic(ctx)
	if err != nil {
		return report, err
	}
	report.Semantic = semantic
	return report, nil
}
