package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeBee/notis/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// notesRoot is used to resolve the attachments directory.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, notesRoot string) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(notesRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/move", h.MoveNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search and library views.
	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)
	r.Get("/folders", h.Folders)
	r.Get("/stats", h.Stats)

	// Sync trigger.
	r.Post("/sync", h.TriggerSync)

	// Attachments (auth-protected like everything else).
	r.Post("/attachments", ah.Upload)
	r.Get("/attachments/{filename}", ah.ServeFile)

	// SSE endpoint.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
