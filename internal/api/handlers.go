package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/checksum"
	"github.com/starford/noteapi/internal/noteservice"
	"github.com/starford/noteapi/internal/storage"
	"github.com/starford/noteapi/internal/watcher"
)

// StatsSource reports watcher counters.
type StatsSource interface {
	Stats() watcher.Stats
}

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	stats  StatsSource
	logger *slog.Logger
}

// NewHandler creates a new Handler. stats may be nil when the watcher is off.
func NewHandler(svc *noteservice.Service, stats StatsSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, stats: stats, logger: logger}
}

// notePath extracts the note path from the URL wildcard.
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

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	renderError(h.logger, w, r, err)
}

func requirePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: note path is required", apperr.ErrInvalidInput)
	}
	return nil
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": h.svc.Status(r.Context()),
	})
}

// ListNotes handles GET /notes?path=.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items})
}

// GetNote handles GET /notes/*.
//
// Optional query parameters: section (heading text) or lines=a-b. The ETag
// header always describes the whole file.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	p := notePath(r)
	if err := requirePath(p); err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := noteservice.GetOptions{Section: q.Get("section")}
	if lines := q.Get("lines"); lines != "" && opts.Section == "" {
		from, to, err := parseLines(lines)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		opts.From, opts.To = from, to
	}

	n, err := h.svc.Get(r.Context(), p, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", n.ETag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && checksum.MatchETag(inm, n.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.svc.Create(r.Context(), req.Path, req.FrontMatter, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", n.ETag)
	writeJSON(w, http.StatusCreated, WriteResponse{OK: true, Path: n.Path, ETag: n.ETag})
}

// UpdateNote handles PATCH /notes/*. If-Match is mandatory.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	p := notePath(r)
	if err := requirePath(p); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req UpdateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.svc.Update(r.Context(), p, r.Header.Get("If-Match"), storage.UpdateInput{
		FrontMatter: req.FrontMatter,
		Body:        req.Content,
		NewPath:     req.Path,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", n.ETag)
	writeJSON(w, http.StatusOK, WriteResponse{OK: true, Path: n.Path, ETag: n.ETag})
}

// MoveNote handles POST /notes/*/move.
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	p, ok := strings.CutSuffix(notePath(r), "/move")
	if !ok || p == "" {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	var req MoveNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.svc.Move(r.Context(), p, req.To, r.Header.Get("If-Match"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", n.ETag)
	writeJSON(w, http.StatusOK, WriteResponse{OK: true, Path: n.Path, ETag: n.ETag})
}

// DeleteNote handles DELETE /notes/*. If-Match is mandatory.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	p := notePath(r)
	if err := requirePath(p); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Delete(r.Context(), p, r.Header.Get("If-Match"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{OK: true, Path: res.Path, TrashedTo: res.TrashedTo})
}

// ListFolders handles GET /folders?path=.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.svc.Folders(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// CreateFolder handles POST /folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.CreateFolder(r.Context(), req.Path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "path": p})
}

// Search handles GET /search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := SearchQuery{Q: strings.TrimSpace(r.URL.Query().Get("q")), Limit: noteservice.DefaultSearchLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: limit must be an integer", apperr.ErrInvalidInput))
			return
		}
		q.Limit = n
	}
	if err := q.Validate(); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	hits, err := h.svc.Search(r.Context(), q.Q, q.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]SearchResult, len(hits))
	for i, hit := range hits {
		out[i] = SearchResult{Path: hit.Path, Title: hit.Title, Snippet: hit.Snippet, Score: hit.Score}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Hits: out})
}

// Backlinks handles GET /graph/backlinks/*.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	h.graphList(w, r, "backlinks", h.svc.Backlinks)
}

// Aliases handles GET /graph/aliases/*.
func (h *Handler) Aliases(w http.ResponseWriter, r *http.Request) {
	h.graphList(w, r, "aliases", h.svc.Aliases)
}

// Neighbors handles GET /graph/neighbors/*.
func (h *Handler) Neighbors(w http.ResponseWriter, r *http.Request) {
	h.graphList(w, r, "neighbors", h.svc.Neighbors)
}

func (h *Handler) graphList(w http.ResponseWriter, r *http.Request, key string, fn func(ctx context.Context, rel string) ([]string, error)) {
	p := notePath(r)
	if err := requirePath(p); err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := fn(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": p, key: items})
}

// Reindex handles POST /admin/reindex.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reindex(r.Context())
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles GET /export?path=.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.Export(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// WatcherStats handles GET /watcher/stats.
func (h *Handler) WatcherStats(w http.ResponseWriter, _ *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusOK, watcher.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}
