// Package projector derives search documents from notes. It performs no I/O.
package projector

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/starford/noteapi/internal/frontmatter"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/parser"
)

// Project maps a note at rel to its search document. Title is the first
// level-1 heading or, failing that, the file name without extension.
func Project(rel string, fm *frontmatter.FrontMatter, body string, mtime time.Time) models.SearchDocument {
	var (
		title    string
		headings []string
	)
	for _, h := range parser.Headings(body) {
		headings = append(headings, h.Text)
		if title == "" && h.Level == 1 {
			title = h.Text
		}
	}
	if title == "" {
		base := path.Base(rel)
		title = strings.TrimSuffix(base, path.Ext(base))
	}
	if fm == nil {
		fm = frontmatter.New()
	}
	return models.SearchDocument{
		ID:          EncodeID(rel),
		Path:        rel,
		Title:       title,
		Headings:    headings,
		FrontMatter: fm,
		Content:     body,
		MTime:       mtime.UnixMilli(),
	}
}

// ProjectNote is Project over a loaded note.
func ProjectNote(n *models.Note) models.SearchDocument {
	return Project(n.Path, n.FrontMatter, n.Body, n.ModTime)
}

// EncodeID turns a vault path into an index key made of [A-Za-z0-9_-].
func EncodeID(rel string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rel))
}

// DecodeID inverts EncodeID.
func DecodeID(id string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("projector: decode id %q: %w", id, err)
	}
	return string(b), nil
}
