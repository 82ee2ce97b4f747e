// Package testutil provides shared test helpers for setting up vaults and indexes.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/noteapi/internal/index"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/storage"
)

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a note store.
func TestVault(t *testing.T, opts ...storage.Option) (string, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}

// WriteFile writes content to rel under root, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

// Logger returns a logger that drops everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Eventually polls fn until it returns true or timeout expires.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// FakeIndex is an in-memory index.Client that records every call. Writes
// complete synchronously; failures are injected with the Set* methods.
type FakeIndex struct {
	mu        sync.Mutex
	docs      map[string]models.SearchDocument
	adds      [][]models.SearchDocument
	deletes   [][]string
	tasks     map[string]index.Task
	seq       int
	healthErr error
	submitErr error
	taskErr   error
	onAdd     func([]models.SearchDocument)
}

var _ index.Client = (*FakeIndex)(nil)

// NewFakeIndex returns an empty, healthy fake.
func NewFakeIndex() *FakeIndex {
	return &FakeIndex{
		docs:  make(map[string]models.SearchDocument),
		tasks: make(map[string]index.Task),
	}
}

// SetHealth makes Health return err.
func (f *FakeIndex) SetHealth(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
}

// SetSubmitErr makes write calls fail before a task is created.
func (f *FakeIndex) SetSubmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// SetTaskErr makes accepted tasks finish as failed with err.
func (f *FakeIndex) SetTaskErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskErr = err
}

// OnAdd registers fn to run at the start of every AddDocuments call, before
// the call is recorded. fn may block or call other FakeIndex methods.
func (f *FakeIndex) OnAdd(fn func([]models.SearchDocument)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAdd = fn
}

// AddCalls returns the batches passed to AddDocuments.
func (f *FakeIndex) AddCalls() [][]models.SearchDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]models.SearchDocument(nil), f.adds...)
}

// DeleteCalls returns the id lists passed to DeleteDocuments.
func (f *FakeIndex) DeleteCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.deletes...)
}

// Doc returns the stored document with id.
func (f *FakeIndex) Doc(id string) (models.SearchDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok
}

// Len returns the number of stored documents.
func (f *FakeIndex) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *FakeIndex) task(typ index.TaskType, apply func()) (index.TaskInfo, error) {
	if f.submitErr != nil {
		return index.TaskInfo{}, f.submitErr
	}
	f.seq++
	now := time.Now()
	t := index.Task{
		TaskInfo:   index.TaskInfo{UID: fmt.Sprintf("task-%d", f.seq), Type: typ, Status: index.StatusSucceeded, EnqueuedAt: now},
		FinishedAt: now,
	}
	if f.taskErr != nil {
		t.Status = index.StatusFailed
		t.Error = f.taskErr.Error()
	} else {
		apply()
	}
	f.tasks[t.UID] = t
	info := t.TaskInfo
	info.Status = index.StatusEnqueued
	return info, nil
}

func (f *FakeIndex) AddDocuments(_ context.Context, docs []models.SearchDocument) (index.TaskInfo, error) {
	f.mu.Lock()
	hook := f.onAdd
	f.mu.Unlock()
	if hook != nil {
		hook(docs)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, append([]models.SearchDocument(nil), docs...))
	return f.task(index.TaskAddDocuments, func() {
		for _, d := range docs {
			f.docs[d.ID] = d
		}
	})
}

func (f *FakeIndex) DeleteDocuments(_ context.Context, ids []string) (index.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, append([]string(nil), ids...))
	return f.task(index.TaskDeleteDocuments, func() {
		for _, id := range ids {
			delete(f.docs, id)
		}
	})
}

func (f *FakeIndex) DeleteDocument(ctx context.Context, id string) (index.TaskInfo, error) {
	return f.DeleteDocuments(ctx, []string{id})
}

func (f *FakeIndex) WaitForTask(_ context.Context, uid string) (index.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[uid]
	if !ok {
		return index.Task{}, index.ErrTaskNotFound
	}
	return t, nil
}

// Search does a case-insensitive substring match on title and content.
func (f *FakeIndex) Search(_ context.Context, query string, opts index.SearchOptions) ([]index.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	q := strings.ToLower(strings.TrimSpace(query))
	hits := []index.Hit{}
	if q == "" {
		return hits, nil
	}
	for _, d := range f.docs {
		if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Content), q) {
			hits = append(hits, index.Hit{ID: d.ID, Path: d.Path, Title: d.Title, Snippet: d.Content, Score: 1})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Path < hits[j].Path })
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (f *FakeIndex) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *FakeIndex) Close() error { return nil }

// OpenGate wraps c in a gate that has already been probed open.
func OpenGate(t *testing.T, c index.Client) *index.Gate {
	t.Helper()
	g := index.NewGate(c, Logger())
	if !g.Probe(context.Background()) {
		t.Fatal("index gate did not open")
	}
	return g
}
