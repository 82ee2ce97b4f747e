package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/noteapi/internal/attachment"
	"github.com/starford/noteapi/internal/noteservice"
)

// Deps are the collaborators mounted by NewRouter.
type Deps struct {
	Service     *noteservice.Service
	Attachments *attachment.Store
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Watcher, if non-nil, backs GET /watcher/stats.
	Watcher StatsSource
	Logger  *slog.Logger

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted. /health stays
// outside the auth group.
func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(d.Service, d.Watcher, logger)
	ah := NewAttachmentHandler(d.Attachments, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

		// Notes.
		r.Get("/notes", h.ListNotes)
		r.Post("/notes", h.CreateNote)
		r.Get("/notes/*", h.GetNote)
		r.Patch("/notes/*", h.UpdateNote)
		r.Post("/notes/*", h.MoveNote)
		r.Delete("/notes/*", h.DeleteNote)

		// Folders.
		r.Get("/folders", h.ListFolders)
		r.Post("/folders", h.CreateFolder)

		r.Get("/search", h.Search)

		// Graph.
		r.Get("/graph/backlinks/*", h.Backlinks)
		r.Get("/graph/aliases/*", h.Aliases)
		r.Get("/graph/neighbors/*", h.Neighbors)

		r.Post("/admin/reindex", h.Reindex)
		r.Get("/export", h.Export)
		r.Get("/watcher/stats", h.WatcherStats)

		r.Post("/attachments", ah.Upload)
		r.Get("/attachments/{filename}", ah.ServeFile)

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
