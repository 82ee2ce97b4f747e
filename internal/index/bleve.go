package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"

	"github.com/starford/noteapi/internal/models"
)

// Bleve is a Client backed by an embedded bleve index.
type Bleve struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	tasks  *taskQueue
}

var _ Client = (*Bleve)(nil)

// OpenBleve opens the index at path, creating it when missing. An empty path
// creates an in-memory index.
func OpenBleve(path string) (*Bleve, error) {
	im := noteMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("index: create dir: %w", err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("index: open bleve %q: %w", path, err)
	}

	return &Bleve{index: idx, path: path, tasks: newTaskQueue()}, nil
}

func noteMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.IncludeInAll = false
	stored.IncludeTermVectors = false

	num := bleve.NewNumericFieldMapping()
	num.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", text)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("headings", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("frontmatter", stored)
	doc.AddFieldMappingsAt("mtime", num)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func bleveDoc(d models.SearchDocument) (map[string]any, error) {
	fm, err := json.Marshal(d.FrontMatter)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"path":        d.Path,
		"title":       d.Title,
		"headings":    d.Headings,
		"content":     d.Content,
		"frontmatter": string(fm),
		"mtime":       float64(d.MTime),
	}, nil
}

// AddDocuments upserts docs by id.
func (b *Bleve) AddDocuments(_ context.Context, docs []models.SearchDocument) (TaskInfo, error) {
	docs = append([]models.SearchDocument(nil), docs...)
	return b.submit(TaskAddDocuments, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, d := range docs {
			data, err := bleveDoc(d)
			if err != nil {
				return fmt.Errorf("encode %s: %w", d.Path, err)
			}
			if err := batch.Index(d.ID, data); err != nil {
				return fmt.Errorf("index %s: %w", d.Path, err)
			}
		}
		return idx.Batch(batch)
	})
}

// DeleteDocuments removes ids. Unknown ids are ignored.
func (b *Bleve) DeleteDocuments(_ context.Context, ids []string) (TaskInfo, error) {
	ids = append([]string(nil), ids...)
	return b.submit(TaskDeleteDocuments, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		return idx.Batch(batch)
	})
}

// DeleteDocument removes one id.
func (b *Bleve) DeleteDocument(ctx context.Context, id string) (TaskInfo, error) {
	return b.DeleteDocuments(ctx, []string{id})
}

// WaitForTask blocks until uid reaches a terminal status or ctx ends.
func (b *Bleve) WaitForTask(ctx context.Context, uid string) (Task, error) {
	return b.tasks.wait(ctx, uid)
}

func (b *Bleve) submit(typ TaskType, fn func(bleve.Index) error) (TaskInfo, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return TaskInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, errClosed)
	}
	info, err := b.tasks.submit(typ, func() error {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if b.closed {
			return errClosed
		}
		return fn(b.index)
	})
	if err != nil {
		return TaskInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return info, nil
}

// Search matches query against title, headings, content and path. With
// Highlight set, snippets carry <mark> tags around matched terms.
func (b *Bleve) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, errClosed)
	}
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}

	title := bleve.NewMatchQuery(query)
	title.SetField("title")
	title.SetBoost(3)
	headings := bleve.NewMatchQuery(query)
	headings.SetField("headings")
	headings.SetBoost(2)
	content := bleve.NewMatchQuery(query)
	content.SetField("content")
	path := bleve.NewMatchQuery(query)
	path.SetField("path")

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(title, headings, content, path), limit, 0, false)
	req.Fields = []string{"path", "title", "content"}
	if opts.Highlight {
		req.Highlight = bleve.NewHighlightWithStyle(html.Name)
		req.Highlight.AddField("content")
	}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{
			ID:    h.ID,
			Path:  fieldString(h.Fields, "path"),
			Title: fieldString(h.Fields, "title"),
			Score: h.Score,
		}
		if frags := h.Fragments["content"]; len(frags) > 0 {
			hit.Snippet = truncate(strings.Join(frags, " … "), MaxSnippet)
		} else {
			hit.Snippet = snippetAround(fieldString(h.Fields, "content"), query)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func fieldString(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

// Health reports whether the index can serve requests.
func (b *Bleve) Health(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("%w: %v", ErrUnavailable, errClosed)
	}
	if _, err := b.index.DocCount(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DocCount returns the number of indexed documents.
func (b *Bleve) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errClosed
	}
	return b.index.DocCount()
}

// Close drains pending tasks and closes the index.
func (b *Bleve) Close() error {
	b.tasks.close()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
