// Package noteservice is the facade over storage, graph, and sync that the
// API and MCP layers consume. It owns the note CRUD lifecycle, the trash
// and rename flows, memories, and the dynamic connection tool.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/syncer"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Neighborhood is a bounded breadth-first slice of the graph around one
// note.
type Neighborhood struct {
	Nodes []models.GraphNode `json:"nodes"`
	Edges []models.GraphEdge `json:"edges"`
}

// Notifier receives change notifications for event streaming. Methods must
// not block.
type Notifier interface {
	PublishNoteEvent(kind, path string)
}

// Service coordinates storage, graph, and sync operations.
type Service struct {
	store    storage.Provider
	graph    graph.Store
	sync     *syncer.Syncer
	pipe     *pipeline.Pipeline // nil in degraded mode
	logger   *slog.Logger
	notifier Notifier // nil when event streaming is off
}

// NewService creates the facade. pipe may be nil; semantic operations then
// return apperr.ErrEmbedderUnavailable while everything else still works.
func NewService(store storage.Provider, g graph.Store, sync *syncer.Syncer, pipe *pipeline.Pipeline, logger *slog.Logger) *Service {
	return &Service{store: store, graph: g, sync: sync, pipe: pipe, logger: logger}
}

// SetNotifier attaches an event sink for note change notifications.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) publish(kind, path string) {
	if s.notifier != nil {
		s.notifier.PublishNoteEvent(kind, path)
	}
}

// SyncStructural runs one structural pass.
func (s *Service) SyncStructural(ctx context.Context) (models.StructuralStats, error) {
	return s.sync.Structural(ctx)
}

// SyncSemantic runs one semantic pass.
func (s *Service) SyncSemantic(ctx context.Context) (models.SemanticStats, error) {
	return s.sync.Semantic(ctx)
}

// SyncFull runs both passes.
func (s *Service) SyncFull(ctx context.Context) (models.SyncReport, error) {
	return s.sync.Full(ctx)
}

// GetNote reads a note from storage, parses it, and enriches it with
// backlinks from the graph.
func (s *Service) GetNote(ctx context.Context, notePath string) (*NoteDetail, error) {
	data, err := s.store.Read(notePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(ctx, notePath, data)
}

// CreateNote writes a new note and runs structural sync so the node and
// its edges appear immediately.
func (s *Service) CreateNote(ctx context.Context, notePath string, content []byte) (*NoteDetail, error) {
	if s.store.Exists(notePath) {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(notePath, content); err != nil {
		return nil, err
	}
	if _, err := s.sync.Structural(ctx); err != nil {
		return nil, err
	}
	s.publish("created", notePath)
	return s.buildNoteDetail(ctx, notePath, content)
}

// UpdateNote writes updated content with optimistic concurrency: when
// ifMatch is non-empty it must equal the current content checksum.
func (s *Service) UpdateNote(ctx context.Context, notePath string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(notePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(notePath, content); err != nil {
		return nil, err
	}
	if _, err := s.sync.Structural(ctx); err != nil {
		return nil, err
	}
	s.publish("updated", notePath)
	return s.buildNoteDetail(ctx, notePath, content)
}

// DeleteNote soft-deletes: the file moves into the trash subtree and the
// graph node is pruned (cascading to chunks and edges) along with any
// now-orphaned tags.
func (s *Service) DeleteNote(ctx context.Context, notePath string) (string, error) {
	trashPath, err := s.store.Trash(notePath)
	if err != nil {
		return "", err
	}
	if err := s.graph.DeleteNote(ctx, notePath); err != nil {
		return trashPath, err
	}
	if _, err := s.graph.PruneOrphanTags(ctx); err != nil {
		s.logger.Warn("delete: orphan tag prune failed", slog.String("error", err.Error()))
	}
	s.publish("deleted", notePath)
	return trashPath, nil
}

// RestoreNote moves a trash entry back to its vault location and re-runs
// structural sync so the node reappears.
func (s *Service) RestoreNote(ctx context.Context, trashPath string) (string, error) {
	restored, err := s.store.Restore(trashPath)
	if err != nil {
		return "", err
	}
	if _, err := s.sync.Structural(ctx); err != nil {
		return restored, err
	}
	return restored, nil
}

// ListTrash returns every soft-deleted entry.
func (s *Service) ListTrash(_ context.Context) ([]models.TrashEntry, error) {
	entries, err := s.store.ListTrash()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(entries), nil
}

// EmptyTrash permanently deletes trashed files; their graph nodes were
// already pruned at delete time, so only orphaned tags need a sweep.
func (s *Service) EmptyTrash(ctx context.Context) (int, error) {
	count, err := s.store.EmptyTrash()
	if err != nil {
		return 0, err
	}
	if _, err := s.graph.PruneOrphanTags(ctx); err != nil {
		s.logger.Warn("empty trash: orphan tag prune failed", slog.String("error", err.Error()))
	}
	return count, nil
}

// RenameNote renames a file, updates its graph node, rewrites every
// wikilink referencing the old title across the corpus (aliases
// preserved), and re-runs structural sync so edges follow.
func (s *Service) RenameNote(ctx context.Context, notePath, newTitle string) (*models.RenameResult, error) {
	if err := storage.ValidateTitle(newTitle); err != nil {
		return nil, err
	}
	if !s.store.Exists(notePath) {
		return nil, apperr.ErrNotFound
	}

	oldTitle := parser.TitleFromPath(notePath)
	dir := path.Dir(notePath)
	newPath := newTitle + ".md"
	if dir != "." {
		newPath = dir + "/" + newPath
	}
	if newPath == notePath {
		return &models.RenameResult{Path: notePath, Title: oldTitle, OldTitle: oldTitle}, nil
	}
	if s.store.Exists(newPath) {
		return nil, fmt.Errorf("noteservice: rename to %s: %w", newPath, apperr.ErrConflict)
	}

	if err := s.store.Move(notePath, newPath); err != nil {
		return nil, err
	}
	if err := s.graph.RenameNote(ctx, notePath, newPath, newTitle); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		// Node not indexed yet; structural sync below creates it.
	}

	updated, err := s.store.RewriteLinks(oldTitle, newTitle)
	if err != nil {
		return nil, err
	}
	if _, err := s.sync.Structural(ctx); err != nil {
		return nil, err
	}

	s.publish("renamed", newPath)
	return &models.RenameResult{
		Path:         newPath,
		Title:        newTitle,
		OldTitle:     oldTitle,
		LinksUpdated: updated,
	}, nil
}

// ListNotes returns paginated notes with an optional tag filter.
func (s *Service) ListNotes(ctx context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	notes, total, err := s.graph.ListNotes(ctx, limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(notes))
	for i, n := range notes {
		items[i] = NoteListItem{
			Path:      n.Path,
			Title:     n.Title,
			Checksum:  n.ContentHash,
			UpdatedAt: n.ModifiedAt,
		}
	}
	return items, total, nil
}

// SearchNotes performs keyword search over titles and bodies.
func (s *Service) SearchNotes(ctx context.Context, query string, limit int, tag string) ([]graph.SearchResult, error) {
	results, err := s.graph.SearchNotes(ctx, query, limit, tag)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(results), nil
}

// SemanticSearch embeds the query and returns the closest chunks.
func (s *Service) SemanticSearch(ctx context.Context, query string, limit int, tag string) ([]graph.ChunkMatch, error) {
	if s.pipe == nil {
		return nil, fmt.Errorf("noteservice: semantic search: %w", apperr.ErrEmbedderUnavailable)
	}
	vec, err := s.pipe.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.graph.SearchChunks(ctx, vec, limit, tag)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(matches), nil
}

// Backlinks returns the paths of notes linking to notePath.
func (s *Service) Backlinks(ctx context.Context, notePath string) ([]string, error) {
	bl, err := s.graph.Backlinks(ctx, notePath)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// GraphStats counts every record and edge kind in the store.
func (s *Service) GraphStats(ctx context.Context) (models.GraphStats, error) {
	return s.graph.Stats(ctx)
}

// maxNeighborhoodDepth bounds the BFS so a dense vault cannot explode a
// single request.
const maxNeighborhoodDepth = 3

// Neighborhood walks the link graph breadth-first from notePath up to
// depth hops (clamped to 3) and returns the visited nodes and edges,
// including the tags of every visited note.
func (s *Service) Neighborhood(ctx context.Context, notePath string, depth int) (*Neighborhood, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > maxNeighborhoodDepth {
		depth = maxNeighborhoodDepth
	}
	if _, err := s.graph.GetNote(ctx, notePath); err != nil {
		return nil, err
	}

	out := &Neighborhood{Nodes: []models.GraphNode{}, Edges: []models.GraphEdge{}}
	visited := map[string]struct{}{}
	seenTags := map[string]struct{}{}
	frontier := []string{notePath}

	addNote := func(p string) {
		if _, ok := visited[p]; ok {
			return
		}
		visited[p] = struct{}{}
		out.Nodes = append(out.Nodes, models.GraphNode{ID: p, Kind: "note", Title: parser.TitleFromPath(p)})
	}
	addNote(notePath)

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, p := range frontier {
			nb, err := s.graph.Neighbors(ctx, p)
			if err != nil {
				return nil, err
			}
			for _, target := range nb.Out {
				if _, ok := visited[target]; !ok {
					next = append(next, target)
				}
				addNote(target)
				out.Edges = append(out.Edges, models.GraphEdge{Source: p, Target: target, Relation: "links_to"})
			}
			for _, source := range nb.In {
				if _, ok := visited[source]; !ok {
					next = append(next, source)
				}
				addNote(source)
				out.Edges = append(out.Edges, models.GraphEdge{Source: source, Target: p, Relation: "links_to"})
			}
			for _, tag := range nb.Tags {
				id := "tag:" + tag
				if _, ok := seenTags[tag]; !ok {
					seenTags[tag] = struct{}{}
					out.Nodes = append(out.Nodes, models.GraphNode{ID: id, Kind: "tag", Title: tag})
				}
				out.Edges = append(out.Edges, models.GraphEdge{Source: p, Target: id, Relation: "tagged_with"})
			}
		}
		frontier = next
	}
	return out, nil
}

// StoreMemory creates an agent-authored knowledge record.
func (s *Service) StoreMemory(ctx context.Context, memType, content string) (*models.Memory, error) {
	if content == "" {
		return nil, fmt.Errorf("noteservice: memory content is required")
	}
	if memType == "" {
		memType = "note"
	}
	m := models.Memory{
		ID:        uuid.NewString(),
		Type:      memType,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.graph.CreateMemory(ctx, m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemories returns recent memories, newest first.
func (s *Service) ListMemories(ctx context.Context, limit int) ([]models.Memory, error) {
	mems, err := s.graph.ListMemories(ctx, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(mems), nil
}

// DeleteMemory removes one memory and any dynamic edges touching it.
func (s *Service) DeleteMemory(ctx context.Context, id string) error {
	return s.graph.DeleteMemory(ctx, id)
}

// CreateConnection is the dynamic entity/relation tool: it relates two
// endpoints under an agent-declared relation type, creating entity tables
// and rows on demand. Documents and memories are lookup-only endpoints;
// any other type is upserted by name. The same triple is never duplicated.
func (s *Service) CreateConnection(ctx context.Context, sourceType, sourceName, relation, targetType, targetName string) error {
	// All three identifiers are sanitized and reserved-checked before any
	// endpoint resolution, so a rejected call mutates nothing.
	rel, err := graph.RelationTypeName(relation)
	if err != nil {
		return err
	}
	sourceKind, err := graph.EntityTypeName(sourceType)
	if err != nil {
		return err
	}
	targetKind, err := graph.EntityTypeName(targetType)
	if err != nil {
		return err
	}

	source, err := s.resolveEndpoint(ctx, sourceKind, sourceName)
	if err != nil {
		return err
	}
	target, err := s.resolveEndpoint(ctx, targetKind, targetName)
	if err != nil {
		return err
	}
	if err := s.graph.EnsureRelationType(ctx, rel); err != nil {
		return err
	}
	exists, err := s.graph.EdgeExists(ctx, source, rel, target)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.graph.CreateEdge(ctx, source, rel, target); err != nil {
		return err
	}
	s.logger.Debug("connection created",
		slog.String("source", source.Table+":"+source.Key),
		slog.String("relation", rel),
		slog.String("target", target.Table+":"+target.Key))
	return nil
}

// resolveEndpoint maps one (kind, name) pair to a graph Ref. kind must
// already be a sanitized, non-reserved entity type name. Notes resolve by
// exact title and memories by id or content, both lookup-only; every other
// type is a dynamic entity created on demand.
func (s *Service) resolveEndpoint(ctx context.Context, kind, name string) (graph.Ref, error) {
	switch kind {
	case "note":
		return s.graph.FindNoteByTitle(ctx, strings.TrimSuffix(name, ".md"))
	case "memory":
		return s.graph.FindMemory(ctx, name)
	default:
		if err := s.graph.EnsureEntityTable(ctx, kind); err != nil {
			return graph.Ref{}, err
		}
		return s.graph.UpsertEntity(ctx, kind, name)
	}
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading
// the file.
func (s *Service) buildNoteDetail(ctx context.Context, notePath string, data []byte) (*NoteDetail, error) {
	res := parser.Parse(notePath, data)
	bl, err := s.graph.Backlinks(ctx, notePath)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        notePath,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Metadata,
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   time.Now(),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
