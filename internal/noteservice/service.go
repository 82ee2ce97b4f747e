// Package noteservice orchestrates the note store, the search index and the
// link graph behind the API and MCP surfaces.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/checksum"
	"github.com/starford/noteapi/internal/frontmatter"
	"github.com/starford/noteapi/internal/graph"
	"github.com/starford/noteapi/internal/index"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/parser"
	"github.com/starford/noteapi/internal/projector"
	"github.com/starford/noteapi/internal/reindex"
	"github.com/starford/noteapi/internal/storage"
	"github.com/starford/noteapi/internal/watcher"
)

// Search limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Publisher receives note change notifications.
type Publisher interface {
	PublishNoteEvent(kind, path string)
}

// GetOptions narrow the body returned by Get. Section wins over a line range.
type GetOptions struct {
	Section string
	// From and To are 1-based inclusive body lines; To <= 0 means the end.
	From, To int
}

// Status summarises the service for health checks.
type Status struct {
	Vault        string         `json:"vault"`
	IndexEnabled bool           `json:"index_enabled"`
	Reindex      reindex.Status `json:"reindex"`
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends note events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// Service coordinates storage and index operations.
type Service struct {
	store   storage.Provider
	index   *index.Gate
	hashes  *watcher.HashCache
	reindex *reindex.Coordinator
	events  Publisher
	logger  *slog.Logger
}

// New creates a note service. hashes is shared with the watcher so inline
// index writes are not repeated when the filesystem echo arrives.
func New(store storage.Provider, gate *index.Gate, hashes *watcher.HashCache, rx *reindex.Coordinator, logger *slog.Logger, opts ...Option) *Service {
	if hashes == nil {
		hashes = watcher.NewHashCache()
	}
	s := &Service{
		store:   store,
		index:   gate,
		hashes:  hashes,
		reindex: rx,
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get reads a note, optionally narrowed to one section or a line range.
func (s *Service) Get(_ context.Context, rel string, opts GetOptions) (*models.Note, error) {
	n, err := s.store.Read(rel)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.Section != "":
		body, ok := parser.Section(n.Body, opts.Section)
		if !ok {
			return nil, fmt.Errorf("%w: section %q", apperr.ErrNotFound, opts.Section)
		}
		n.Body = body
	case opts.From > 0:
		n.Body = parser.Lines(n.Body, opts.From, opts.To)
	}
	return n, nil
}

// List returns note metadata under dir.
func (s *Service) List(_ context.Context, dir string) ([]models.NoteMetadata, error) {
	return s.store.List(dir)
}

// Folders returns every folder under dir.
func (s *Service) Folders(_ context.Context, dir string) ([]string, error) {
	return s.store.Folders(dir)
}

// CreateFolder creates rel and its parents.
func (s *Service) CreateFolder(_ context.Context, rel string) (string, error) {
	return s.store.MkdirAll(rel)
}

// Create writes a new note and indexes it.
func (s *Service) Create(ctx context.Context, rel string, fm *frontmatter.FrontMatter, body string) (*models.Note, error) {
	n, err := s.store.Create(rel, fm, body)
	if err != nil {
		return nil, err
	}
	s.indexNote(ctx, n)
	s.publish("created", n.Path)
	return n, nil
}

// Update rewrites a note under an ETag precondition, optionally moving it.
func (s *Service) Update(ctx context.Context, rel, ifMatch string, in storage.UpdateInput) (*models.Note, error) {
	old, err := s.store.Canonical(rel)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Update(rel, ifMatch, in)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, old, n)
	return n, nil
}

// Move renames a note keeping its content.
func (s *Service) Move(ctx context.Context, rel, newRel, ifMatch string) (*models.Note, error) {
	old, err := s.store.Canonical(rel)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Move(rel, newRel, ifMatch)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, old, n)
	return n, nil
}

// afterWrite syncs the index and events for n. old is the canonical path the
// note had before the write.
func (s *Service) afterWrite(ctx context.Context, old string, n *models.Note) {
	if old != n.Path {
		s.unindex(ctx, old)
		s.publish("deleted", old)
		s.indexNote(ctx, n)
		s.publish("created", n.Path)
		return
	}
	s.indexNote(ctx, n)
	s.publish("updated", n.Path)
}

// Delete removes a note (or moves it to the trash) and drops it from the
// index.
func (s *Service) Delete(ctx context.Context, rel, ifMatch string) (storage.DeleteResult, error) {
	res, err := s.store.Delete(rel, ifMatch)
	if err != nil {
		return res, err
	}
	s.unindex(ctx, res.Path)
	s.publish("deleted", res.Path)
	return res, nil
}

// Search queries the index. limit 0 selects the default.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", apperr.ErrInvalidInput)
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", apperr.ErrInvalidInput, MaxSearchLimit)
	}
	if !s.index.Enabled() {
		return nil, apperr.ErrIndexUnavailable
	}
	hits, err := s.index.Search(ctx, query, index.SearchOptions{Limit: limit, Highlight: true})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Export returns every note under dir with its front matter and body.
func (s *Service) Export(ctx context.Context, dir string) ([]models.ExportedNote, error) {
	out := []models.ExportedNote{}
	err := s.store.Walk(dir, func(rel, abs string, _ fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.store.Load(abs)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			return err
		}
		out = append(out, models.ExportedNote{Path: rel, FrontMatter: n.FrontMatter, Content: n.Body})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Backlinks returns the notes linking to rel.
func (s *Service) Backlinks(ctx context.Context, rel string) ([]string, error) {
	g, rel, err := s.graph(ctx, rel)
	if err != nil {
		return nil, err
	}
	return g.Backlinks(rel)
}

// Aliases returns the aliases declared by rel.
func (s *Service) Aliases(ctx context.Context, rel string) ([]string, error) {
	g, rel, err := s.graph(ctx, rel)
	if err != nil {
		return nil, err
	}
	return g.Aliases(rel)
}

// Neighbors returns outgoing links and backlinks of rel.
func (s *Service) Neighbors(ctx context.Context, rel string) ([]string, error) {
	g, rel, err := s.graph(ctx, rel)
	if err != nil {
		return nil, err
	}
	return g.Neighbors(rel)
}

// graph checks that rel names an existing note and loads a fresh snapshot.
func (s *Service) graph(ctx context.Context, rel string) (*graph.Graph, string, error) {
	n, err := s.store.Read(rel)
	if err != nil {
		return nil, "", err
	}
	g, err := graph.Load(ctx, s.store)
	if err != nil {
		return nil, "", err
	}
	return g, n.Path, nil
}

// Reindex runs a full reindex.
func (s *Service) Reindex(ctx context.Context) (reindex.Result, error) {
	return s.reindex.ReindexAll(ctx)
}

// Status reports vault and index state.
func (s *Service) Status(context.Context) Status {
	return Status{
		Vault:        s.store.Root(),
		IndexEnabled: s.index.Enabled(),
		Reindex:      s.reindex.Status(),
	}
}

// indexNote sends n to the index and waits for the task. Failures are
// logged and never fail the write.
func (s *Service) indexNote(ctx context.Context, n *models.Note) {
	if !s.index.Enabled() {
		return
	}
	info, err := s.index.AddDocuments(ctx, []models.SearchDocument{projector.ProjectNote(n)})
	if err == nil {
		err = index.Await(ctx, s.index, info)
	}
	if err != nil {
		s.logger.Error("index write failed",
			slog.String("op", "upsert"),
			slog.String("path", n.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	s.hashes.Set(s.abs(n.Path), checksum.Fast(n.Raw))
}

func (s *Service) unindex(ctx context.Context, rel string) {
	s.hashes.Forget(s.abs(rel))
	if !s.index.Enabled() {
		return
	}
	info, err := s.index.DeleteDocument(ctx, projector.EncodeID(rel))
	if err == nil {
		err = index.Await(ctx, s.index, info)
	}
	if err != nil {
		s.logger.Error("index write failed",
			slog.String("op", "delete"),
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) publish(kind, rel string) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, rel)
	}
}

func (s *Service) abs(rel string) string {
	return filepath.Join(s.store.Root(), filepath.FromSlash(rel))
}
