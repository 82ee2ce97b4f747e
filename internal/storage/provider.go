// Package storage is the vault's note store: sandboxed, atomic and guarded by
// ETag preconditions.
package storage

import (
	"github.com/starford/noteapi/internal/frontmatter"
	"github.com/starford/noteapi/internal/models"
)

// Reader is the read side of the store used by indexing and graph code.
type Reader interface {
	Root() string
	Read(rel string) (*models.Note, error)
	Load(abs string) (*models.Note, error)
	Walk(dir string, fn WalkFunc) error
}

// Provider is the full note store.
type Provider interface {
	Reader
	Canonical(rel string) (string, error)
	List(dir string) ([]models.NoteMetadata, error)
	Folders(dir string) ([]string, error)
	MkdirAll(rel string) (string, error)
	Create(rel string, fm *frontmatter.FrontMatter, body string) (*models.Note, error)
	Update(rel, ifMatch string, in UpdateInput) (*models.Note, error)
	Move(rel, newRel, ifMatch string) (*models.Note, error)
	Delete(rel, ifMatch string) (DeleteResult, error)
}

var _ Provider = (*FS)(nil)
