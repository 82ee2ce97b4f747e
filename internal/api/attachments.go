package api

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/starford/noteapi/internal/attachment"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AttachmentHandler serves and accepts attachment files.
type AttachmentHandler struct {
	store  *attachment.Store
	logger *slog.Logger
}

// NewAttachmentHandler creates a handler backed by store.
func NewAttachmentHandler(store *attachment.Store, logger *slog.Logger) *AttachmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentHandler{store: store, logger: logger}
}

// ServeFile handles GET /attachments/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.store.Open(chi.URLParam(r, "filename"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /attachments (multipart/form-data, field "file").
// An existing file of the same name is replaced.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	n, err := h.store.Save(header.Filename, file, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := filepath.Base(filepath.Clean(header.Filename))
	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{
		Filename: name,
		Size:     n,
		URL:      attachment.URL(name),
	})
}

func (h *AttachmentHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	renderError(h.logger, w, r, err)
}
