// Package apperr defines the error kinds shared by the note store, the index
// pipeline and the API layer. Callers branch on them with errors.Is.
package apperr

import "errors"

var (
	ErrPathTraversal        = errors.New("path traversal detected")
	ErrNotMarkdown          = errors.New("not a markdown path")
	ErrNotFound             = errors.New("not found")
	ErrExists               = errors.New("already exists")
	ErrPreconditionMissing  = errors.New("missing If-Match")
	ErrPreconditionMismatch = errors.New("etag mismatch")
	ErrInvalidInput         = errors.New("invalid input")
	ErrIndexUnavailable     = errors.New("search index unavailable")
	ErrReindexInFlight      = errors.New("reindex already in progress")
	ErrIndexWrite           = errors.New("index write failed")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrPathTraversal, "path_traversal"},
	{ErrNotMarkdown, "not_markdown"},
	{ErrNotFound, "not_found"},
	{ErrExists, "exists"},
	{ErrPreconditionMissing, "precondition_missing"},
	{ErrPreconditionMismatch, "precondition_mismatch"},
	{ErrInvalidInput, "invalid_input"},
	{ErrIndexUnavailable, "index_unavailable"},
	{ErrReindexInFlight, "reindex_in_flight"},
	{ErrIndexWrite, "index_write_failure"},
}

// Code returns the stable machine-readable code for err, or "internal" when
// err does not wrap one of the sentinels above.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
