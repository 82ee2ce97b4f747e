package api

import (
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/frontmatter"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/noteservice"
)

const maxPathLen = 1024

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path        string                   `json:"path" example:"notes/hello.md"`
	FrontMatter *frontmatter.FrontMatter `json:"frontmatter,omitempty"`
	Content     string                   `json:"content" example:"# Hello\nWorld"`
}

// Validate validates the request.
func (r *CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required, validation.Length(1, maxPathLen)),
	)
}

// UpdateNoteRequest is the PATCH body. Absent fields keep their current
// value; a path different from the current one renames the note.
type UpdateNoteRequest struct {
	FrontMatter *frontmatter.FrontMatter `json:"frontmatter,omitempty"`
	Content     *string                  `json:"content,omitempty"`
	Path        *string                  `json:"path,omitempty"`
}

// Validate validates the request.
func (r *UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.NilOrNotEmpty, validation.Length(1, maxPathLen)),
	)
}

// MoveNoteRequest is the body of POST /notes/{path}/move.
type MoveNoteRequest struct {
	To string `json:"to" example:"archive/hello.md"`
}

// Validate validates the request.
func (r *MoveNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.To, validation.Required, validation.Length(1, maxPathLen)),
	)
}

// CreateFolderRequest is the body of POST /folders.
type CreateFolderRequest struct {
	Path string `json:"path" example:"projects/2024"`
}

// Validate validates the request.
func (r *CreateFolderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required, validation.Length(1, maxPathLen)),
	)
}

// SearchQuery holds the parsed query string of GET /search.
type SearchQuery struct {
	Q     string
	Limit int
}

// Validate validates the query.
func (q *SearchQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Q, validation.Required),
		validation.Field(&q.Limit, validation.Min(1), validation.Max(noteservice.MaxSearchLimit)),
	)
}

// parseLines parses "a-b", "a-" or "a" into a 1-based inclusive range.
func parseLines(s string) (int, int, error) {
	from, to, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil || a < 1 {
		return 0, 0, fmt.Errorf("%w: lines must look like 10-20", apperr.ErrInvalidInput)
	}
	if !found {
		return a, a, nil
	}
	if strings.TrimSpace(to) == "" {
		return a, 0, nil
	}
	b, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || b < a {
		return 0, 0, fmt.Errorf("%w: lines must look like 10-20", apperr.ErrInvalidInput)
	}
	return a, b, nil
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.NoteMetadata `json:"notes"`
}

// WriteResponse is returned by note writes.
type WriteResponse struct {
	OK   bool   `json:"ok"`
	Path string `json:"path"`
	ETag string `json:"etag,omitempty"`
}

// DeleteResponse is returned by DELETE /notes/{path}.
type DeleteResponse struct {
	OK        bool   `json:"ok"`
	Path      string `json:"path"`
	TrashedTo string `json:"trashed_to,omitempty"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string  `json:"path" example:"notes/hello.md"`
	Title   string  `json:"title" example:"Hello"`
	Snippet string  `json:"snippet" example:"...<mark>matched</mark> text..."`
	Score   float64 `json:"score"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Hits []SearchResult `json:"hits"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"image.png"`
	Size     int64  `json:"size" example:"12345"`
	URL      string `json:"url" example:"/attachments/image.png"`
}
