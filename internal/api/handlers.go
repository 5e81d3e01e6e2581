package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL (everything after /notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps domain sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	case errors.Is(err, apperr.ErrPathTraversal),
		errors.Is(err, apperr.ErrInvalidTitle),
		errors.Is(err, apperr.ErrReservedName):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrEmbedderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("embedder unavailable"))
	default:
		slog.Error(action+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// SyncStructural handles POST /sync/structural.
func (h *Handler) SyncStructural(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SyncStructural(r.Context())
	if err != nil {
		writeError(w, err, "structural sync")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SyncSemantic handles POST /sync/semantic.
func (h *Handler) SyncSemantic(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SyncSemantic(r.Context())
	if err != nil {
		writeError(w, err, "semantic sync")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SyncFull handles POST /sync/full.
func (h *Handler) SyncFull(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SyncFull(r.Context())
	if err != nil {
		writeError(w, err, "full sync")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("tag"), q.Get("sort"))
	if err != nil {
		writeError(w, err, "list notes")
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /notes/*.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, err, "get note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, err, "create note")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /notes/*. The If-Match header carries the expected
// content checksum for optimistic concurrency.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateNoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, err, "update note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/*. The note moves to trash; the response
// carries the trash path needed to restore it.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	trashPath, err := h.svc.DeleteNote(r.Context(), path)
	if err != nil {
		writeError(w, err, "delete note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"trash_path": trashPath})
}

// RenameNote handles POST /rename.
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.NewTitle == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and new_title are required"))
		return
	}
	res, err := h.svc.RenameNote(r.Context(), req.Path, req.NewTitle)
	if err != nil {
		writeError(w, err, "rename note")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListTrash handles GET /trash.
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListTrash(r.Context())
	if err != nil {
		writeError(w, err, "list trash")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// RestoreNote handles POST /trash/restore.
func (h *Handler) RestoreNote(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	restored, err := h.svc.RestoreNote(r.Context(), req.Path)
	if err != nil {
		writeError(w, err, "restore note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": restored})
}

// EmptyTrash handles DELETE /trash.
func (h *Handler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.EmptyTrash(r.Context())
	if err != nil {
		writeError(w, err, "empty trash")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

// Search handles GET /search. mode selects keyword (default) or semantic.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	tag := q.Get("tag")

	switch mode := q.Get("mode"); mode {
	case "", "keyword":
		results, err := h.svc.SearchNotes(r.Context(), query, limit, tag)
		if err != nil {
			writeError(w, err, "search")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	case "semantic":
		matches, err := h.svc.SemanticSearch(r.Context(), query, limit, tag)
		if err != nil {
			writeError(w, err, "semantic search")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": matches})
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("mode must be keyword or semantic"))
	}
}

// GraphStats handles GET /graph/stats.
func (h *Handler) GraphStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GraphStats(r.Context())
	if err != nil {
		writeError(w, err, "graph stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Neighborhood handles GET /graph/neighborhood.
func (h *Handler) Neighborhood(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	depth, _ := strconv.Atoi(q.Get("depth"))
	if depth == 0 {
		depth = 1
	}
	nb, err := h.svc.Neighborhood(r.Context(), path, depth)
	if err != nil {
		writeError(w, err, "neighborhood")
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// Backlinks handles GET /backlinks.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, err, "backlinks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": bl})
}

// ListMemories handles GET /memories.
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	mems, err := h.svc.ListMemories(r.Context(), limit)
	if err != nil {
		writeError(w, err, "list memories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

// CreateMemory handles POST /memories.
func (h *Handler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	m, err := h.svc.StoreMemory(r.Context(), req.Type, req.Content)
	if err != nil {
		writeError(w, err, "store memory")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// DeleteMemory handles DELETE /memories/{id}.
func (h *Handler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteMemory(r.Context(), id); err != nil {
		writeError(w, err, "delete memory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateConnection handles POST /connections.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SourceType == "" || req.SourceName == "" || req.Relation == "" ||
		req.TargetType == "" || req.TargetName == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source_type, source_name, relation, target_type, target_name are required"))
		return
	}
	err := h.svc.CreateConnection(r.Context(), req.SourceType, req.SourceName, req.Relation, req.TargetType, req.TargetName)
	if err != nil {
		writeError(w, err, "create connection")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}
