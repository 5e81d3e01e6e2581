package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// vaultRoot is used to resolve the attachments directory.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, vaultRoot string) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(vaultRoot)

	r := chi.NewRouter()

	// Liveness/readiness bypass auth.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := svc.GraphStats(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Sync passes.
		r.Post("/sync/structural", h.SyncStructural)
		r.Post("/sync/semantic", h.SyncSemantic)
		r.Post("/sync/full", h.SyncFull)

		// Notes CRUD and rename.
		r.Get("/notes", h.ListNotes)
		r.Post("/notes", h.CreateNote)
		r.Get("/notes/*", h.GetNote)
		r.Put("/notes/*", h.UpdateNote)
		r.Delete("/notes/*", h.DeleteNote)
		r.Post("/rename", h.RenameNote)

		// Trash lifecycle.
		r.Get("/trash", h.ListTrash)
		r.Post("/trash/restore", h.RestoreNote)
		r.Delete("/trash", h.EmptyTrash)

		// Search and graph.
		r.Get("/search", h.Search)
		r.Get("/graph/stats", h.GraphStats)
		r.Get("/graph/neighborhood", h.Neighborhood)
		r.Get("/backlinks", h.Backlinks)

		// Memories and dynamic connections.
		r.Get("/memories", h.ListMemories)
		r.Post("/memories", h.CreateMemory)
		r.Delete("/memories/{id}", h.DeleteMemory)
		r.Post("/connections", h.CreateConnection)

		// Attachments (binary passthrough).
		r.Get("/attachments/{filename}", ah.ServeFile)
		r.Put("/attachments/{filename}", ah.Upload)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
