package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

type memNote struct {
	title       string
	body        string
	metadata    map[string]any
	contentHash string
	createdAt   time.Time
	modifiedAt  time.Time
}

type edgeTriple struct {
	sourceTable, sourceKey, relation, targetTable, targetKey string
}

type schemaEntry struct {
	kind     string
	internal bool
}

// Mem is the in-process Store used by contract tests and as an ephemeral
// backend. All state lives behind one RWMutex; semantics mirror the SQLite
// backend exactly so the shared contract suite passes against both.
type Mem struct {
	mu sync.RWMutex

	notes    map[string]*memNote
	tags     map[string]struct{}
	tagged   map[string][]string // path -> tag names, insertion order
	links    map[string][]string // source path -> target paths, insertion order
	chunks   map[string][]Chunk
	memories map[string]models.Memory
	entities map[string]map[string]struct{} // entity table -> names
	edges    []edgeTriple
	schema   map[string]schemaEntry

	indexModel string
	indexDims  int
	indexSet   bool
}

var _ Store = (*Mem)(nil)

// NewMem creates an empty in-process store with the core relation types
// pre-declared, matching the SQLite schema bootstrap.
func NewMem() *Mem {
	return &Mem{
		notes:    make(map[string]*memNote),
		tags:     make(map[string]struct{}),
		tagged:   make(map[string][]string),
		links:    make(map[string][]string),
		chunks:   make(map[string][]Chunk),
		memories: make(map[string]models.Memory),
		entities: make(map[string]map[string]struct{}),
		schema: map[string]schemaEntry{
			"tagged_with":   {kind: "relation"},
			"links_to":      {kind: "relation"},
			"from_document": {kind: "relation", internal: true},
		},
	}
}

func (m *Mem) Close() error { return nil }

func (m *Mem) UpsertNote(_ context.Context, n models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	modified := n.ModifiedAt
	if modified.IsZero() {
		modified = now
	}
	if existing, ok := m.notes[n.Path]; ok {
		existing.title = n.Title
		existing.body = n.Body
		existing.metadata = n.Metadata
		existing.modifiedAt = modified
		return nil
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}
	m.notes[n.Path] = &memNote{
		title:      n.Title,
		body:       n.Body,
		metadata:   n.Metadata,
		createdAt:  created,
		modifiedAt: modified,
	}
	return nil
}

func (m *Mem) GetNote(_ context.Context, path string) (*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notes[path]
	if !ok {
		return nil, fmt.Errorf("graph: note %s: %w", path, apperr.ErrNotFound)
	}
	return &models.Note{
		Path:        path,
		Title:       n.title,
		Body:        n.body,
		Metadata:    n.metadata,
		Tags:        append([]string(nil), m.tagged[path]...),
		Links:       append([]string(nil), m.links[path]...),
		ContentHash: n.contentHash,
		CreatedAt:   n.createdAt,
		ModifiedAt:  n.modifiedAt,
	}, nil
}

func (m *Mem) ListNotes(_ context.Context, limit, offset int, tag, sortBy string) ([]models.Note, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var all []models.Note
	for path, n := range m.notes {
		if tag != "" && !contains(m.tagged[path], tag) {
			continue
		}
		all = append(all, models.Note{
			Path:        path,
			Title:       n.title,
			ContentHash: n.contentHash,
			CreatedAt:   n.createdAt,
			ModifiedAt:  n.modifiedAt,
		})
	}
	switch sortBy {
	case "title":
		sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })
	case "path":
		sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	default:
		sort.Slice(all, func(i, j int) bool { return all[i].ModifiedAt.After(all[j].ModifiedAt) })
	}
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *Mem) NotePaths(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]struct{}, len(m.notes))
	for p := range m.notes {
		out[p] = struct{}{}
	}
	return out, nil
}

func (m *Mem) DeleteNote(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.notes, path)
	delete(m.chunks, path)
	m.clearEdgesLocked(path)
	for src, targets := range m.links {
		m.links[src] = filterStrings(targets, path)
	}
	m.edges = filterEdges(m.edges, func(e edgeTriple) bool {
		return !(e.sourceTable == "note" && e.sourceKey == path) &&
			!(e.targetTable == "note" && e.targetKey == path)
	})
	return nil
}

func (m *Mem) RenameNote(_ context.Context, oldPath, newPath, newTitle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[oldPath]
	if !ok {
		return fmt.Errorf("graph: rename %s: %w", oldPath, apperr.ErrNotFound)
	}
	delete(m.notes, oldPath)
	n.title = newTitle
	n.modifiedAt = time.Now().UTC()
	m.notes[newPath] = n

	if tags, ok := m.tagged[oldPath]; ok {
		delete(m.tagged, oldPath)
		m.tagged[newPath] = tags
	}
	if out, ok := m.links[oldPath]; ok {
		delete(m.links, oldPath)
		m.links[newPath] = out
	}
	for src, targets := range m.links {
		for i, t := range targets {
			if t == oldPath {
				m.links[src][i] = newPath
			}
		}
	}
	if ch, ok := m.chunks[oldPath]; ok {
		delete(m.chunks, oldPath)
		m.chunks[newPath] = ch
	}
	for i, e := range m.edges {
		if e.sourceTable == "note" && e.sourceKey == oldPath {
			m.edges[i].sourceKey = newPath
		}
		if e.targetTable == "note" && e.targetKey == oldPath {
			m.edges[i].targetKey = newPath
		}
	}
	return nil
}

func (m *Mem) ContentHash(_ context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n, ok := m.notes[path]; ok {
		return n.contentHash, nil
	}
	return "", nil
}

func (m *Mem) SetContentHash(_ context.Context, path, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.notes[path]; ok {
		n.contentHash = hash
	}
	return nil
}

func (m *Mem) ClearContentHashes(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notes {
		n.contentHash = ""
	}
	return nil
}

func (m *Mem) ClearNoteEdges(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearEdgesLocked(path)
	return nil
}

// clearEdgesLocked removes outgoing tag and link edges only; incoming
// links are the linking note's responsibility.
func (m *Mem) clearEdgesLocked(path string) {
	delete(m.tagged, path)
	delete(m.links, path)
}

func (m *Mem) AddTag(_ context.Context, path, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tags[tag] = struct{}{}
	if !contains(m.tagged[path], tag) {
		m.tagged[path] = append(m.tagged[path], tag)
	}
	return nil
}

func (m *Mem) AddLink(_ context.Context, sourcePath, targetTitle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := ""
	for path, n := range m.notes {
		if n.title == targetTitle {
			target = path
			break
		}
	}
	if target == "" {
		return false, nil
	}
	if !contains(m.links[sourcePath], target) {
		m.links[sourcePath] = append(m.links[sourcePath], target)
	}
	return true, nil
}

func (m *Mem) PruneOrphanTags(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := make(map[string]struct{})
	for _, tags := range m.tagged {
		for _, t := range tags {
			used[t] = struct{}{}
		}
	}
	pruned := 0
	for t := range m.tags {
		if _, ok := used[t]; !ok {
			delete(m.tags, t)
			pruned++
		}
	}
	return pruned, nil
}

func (m *Mem) Backlinks(_ context.Context, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for src, targets := range m.links {
		if contains(targets, path) {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mem) Neighbors(_ context.Context, path string) (*Neighborhood, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var in []string
	for src, targets := range m.links {
		if contains(targets, path) {
			in = append(in, src)
		}
	}
	sort.Strings(in)
	return &Neighborhood{
		Out:  append([]string(nil), m.links[path]...),
		In:   in,
		Tags: append([]string(nil), m.tagged[path]...),
	}, nil
}

func (m *Mem) EnsureVectorIndex(_ context.Context, model string, dims int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.indexSet {
		m.indexModel, m.indexDims, m.indexSet = model, dims, true
		return false, nil
	}
	if m.indexModel == model && m.indexDims == dims {
		return false, nil
	}
	m.chunks = make(map[string][]Chunk)
	for _, n := range m.notes {
		n.contentHash = ""
	}
	m.indexModel, m.indexDims = model, dims
	return true, nil
}

func (m *Mem) ReplaceChunks(_ context.Context, path string, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunks) == 0 {
		delete(m.chunks, path)
		return nil
	}
	m.chunks[path] = append([]Chunk(nil), chunks...)
	return nil
}

func (m *Mem) SearchChunks(_ context.Context, embedding []float32, limit int, tag string) ([]ChunkMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	var out []ChunkMatch
	for path, chunks := range m.chunks {
		if tag != "" && !contains(m.tagged[path], tag) {
			continue
		}
		n := m.notes[path]
		if n == nil {
			continue
		}
		for _, c := range chunks {
			out = append(out, ChunkMatch{
				Path:  path,
				Title: n.title,
				Index: c.Index,
				Text:  c.Text,
				Score: cosineSimilarity(embedding, c.Embedding),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Mem) SearchNotes(_ context.Context, query string, limit int, tag string) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(query)
	var out []SearchResult
	for path, n := range m.notes {
		if tag != "" && !contains(m.tagged[path], tag) {
			continue
		}
		if !strings.Contains(strings.ToLower(n.title), needle) &&
			!strings.Contains(strings.ToLower(n.body), needle) {
			continue
		}
		snippet := n.body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		out = append(out, SearchResult{Path: path, Title: n.title, Snippet: snippet})
		if len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Mem) CreateMemory(_ context.Context, mem models.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	m.memories[mem.ID] = mem
	return nil
}

func (m *Mem) GetMemory(_ context.Context, id string) (*models.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.memories[id]
	if !ok {
		return nil, fmt.Errorf("graph: memory %s: %w", id, apperr.ErrNotFound)
	}
	return &mem, nil
}

func (m *Mem) ListMemories(_ context.Context, limit int) ([]models.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var out []models.Memory
	for _, mem := range m.memories {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Mem) UpdateMemory(_ context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.memories[id]
	if !ok {
		return fmt.Errorf("graph: memory %s: %w", id, apperr.ErrNotFound)
	}
	mem.Content = content
	m.memories[id] = mem
	return nil
}

func (m *Mem) DeleteMemory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memories[id]; !ok {
		return fmt.Errorf("graph: memory %s: %w", id, apperr.ErrNotFound)
	}
	delete(m.memories, id)
	m.edges = filterEdges(m.edges, func(e edgeTriple) bool {
		return !(e.sourceTable == "memory" && e.sourceKey == id) &&
			!(e.targetTable == "memory" && e.targetKey == id)
	})
	return nil
}

func (m *Mem) EnsureEntityTable(_ context.Context, name string) error {
	safe, err := EntityTypeName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[safe]; !ok {
		m.entities[safe] = make(map[string]struct{})
	}
	if _, ok := m.schema[safe]; !ok {
		m.schema[safe] = schemaEntry{kind: "entity"}
	}
	return nil
}

func (m *Mem) UpsertEntity(_ context.Context, table, name string) (Ref, error) {
	safe, err := EntityTypeName(table)
	if err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.entities[safe]
	if !ok {
		return Ref{}, fmt.Errorf("graph: entity table %s not declared", safe)
	}
	rows[name] = struct{}{}
	return Ref{Table: safe, Key: name}, nil
}

func (m *Mem) FindNoteByTitle(_ context.Context, title string) (Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for path, n := range m.notes {
		if n.title == title {
			return Ref{Table: "note", Key: path}, nil
		}
	}
	return Ref{}, fmt.Errorf("graph: note titled %q: %w", title, apperr.ErrNotFound)
}

func (m *Mem) FindMemory(_ context.Context, key string) (Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.memories[key]; ok {
		return Ref{Table: "memory", Key: key}, nil
	}
	for id, mem := range m.memories {
		if mem.Content == key {
			return Ref{Table: "memory", Key: id}, nil
		}
	}
	return Ref{}, fmt.Errorf("graph: memory %q: %w", key, apperr.ErrNotFound)
}

func (m *Mem) EnsureRelationType(_ context.Context, name string) error {
	safe, err := RelationTypeName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schema[safe]; !ok {
		m.schema[safe] = schemaEntry{kind: "relation"}
	}
	return nil
}

func (m *Mem) EdgeExists(_ context.Context, source Ref, relation string, target Ref) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := edgeTriple{source.Table, source.Key, relation, target.Table, target.Key}
	for _, e := range m.edges {
		if e == want {
			return true, nil
		}
	}
	return false, nil
}

func (m *Mem) CreateEdge(_ context.Context, source Ref, relation string, target Ref) error {
	want := edgeTriple{source.Table, source.Key, relation, target.Table, target.Key}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.edges {
		if e == want {
			return nil
		}
	}
	m.edges = append(m.edges, want)
	return nil
}

func (m *Mem) RelationTypes(_ context.Context, includeInternal bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for name, entry := range m.schema {
		if entry.kind != "relation" {
			continue
		}
		if entry.internal && !includeInternal {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mem) EntityTypes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for name, entry := range m.schema {
		if entry.kind == "entity" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mem) Stats(_ context.Context) (models.GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := models.GraphStats{
		Notes:     len(m.notes),
		Tags:      len(m.tags),
		Memories:  len(m.memories),
		Relations: len(m.edges),
	}
	for _, chunks := range m.chunks {
		st.Chunks += len(chunks)
	}
	for _, targets := range m.links {
		st.Links += len(targets)
	}
	for _, tags := range m.tagged {
		st.Taggings += len(tags)
	}
	for _, entry := range m.schema {
		if entry.kind == "entity" {
			st.Entities++
		}
	}
	return st, nil
}

func contains(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

func filterStrings(s []string, drop string) []string {
	out := s[:0]
	for _, item := range s {
		if item != drop {
			out = append(out, item)
		}
	}
	return out
}

func filterEdges(edges []edgeTriple, keep func(edgeTriple) bool) []edgeTriple {
	out := edges[:0]
	for _, e := range edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
