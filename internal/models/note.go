// Package models defines the domain types shared across the vault service.
package models

import (
	"time"

	"github.com/starford/noteapi/internal/frontmatter"
)

// Note is a parsed Markdown file in the vault.
type Note struct {
	Path        string                   `json:"path"`
	FrontMatter *frontmatter.FrontMatter `json:"frontmatter"`
	Body        string                   `json:"content"`
	TOC         []TOCEntry               `json:"toc"`
	ETag        string                   `json:"etag"`
	ModTime     time.Time                `json:"mtime"`
	Raw         []byte                   `json:"-"`
}

// TOCEntry is a level 1-3 heading. Line is 1-based within the body.
type TOCEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Line  int    `json:"line"`
}

// NoteMetadata is the lightweight form returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int64     `json:"size"`
}

// ExportedNote is one entry of a subtree export.
type ExportedNote struct {
	Path        string                   `json:"path"`
	FrontMatter *frontmatter.FrontMatter `json:"frontmatter"`
	Content     string                   `json:"content"`
}

// SearchDocument is the projection of a note sent to the search index.
type SearchDocument struct {
	ID          string                   `json:"id"`
	Path        string                   `json:"path"`
	Title       string                   `json:"title"`
	Headings    []string                 `json:"headings"`
	FrontMatter *frontmatter.FrontMatter `json:"frontmatter"`
	Content     string                   `json:"content"`
	MTime       int64                    `json:"mtime"` // unix milliseconds
}
