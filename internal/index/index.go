// Package index is the search-engine boundary. Writes are asynchronous
// tasks; callers that need read-your-write wait on the returned task.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/models"
)

// Engines accepted by Open.
const (
	EngineBleve  = "bleve"
	EngineSQLite = "sqlite"
	EngineMemory = "memory"
)

// ErrTaskNotFound is returned by WaitForTask for an unknown or expired uid.
var ErrTaskNotFound = errors.New("index: task not found")

// ErrUnavailable marks engine connectivity failures.
var ErrUnavailable = apperr.ErrIndexUnavailable

// TaskStatus is the lifecycle state of an index task.
type TaskStatus string

const (
	StatusEnqueued   TaskStatus = "enqueued"
	StatusProcessing TaskStatus = "processing"
	StatusSucceeded  TaskStatus = "succeeded"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions will happen.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// TaskType names what a task does.
type TaskType string

const (
	TaskAddDocuments    TaskType = "documentAdditionOrUpdate"
	TaskDeleteDocuments TaskType = "documentDeletion"
)

// TaskInfo is the handle returned when a write is accepted.
type TaskInfo struct {
	UID        string     `json:"taskUid"`
	Type       TaskType   `json:"type"`
	Status     TaskStatus `json:"status"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}

// Task is the full state of an index task.
type Task struct {
	TaskInfo
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// SearchOptions tunes a query.
type SearchOptions struct {
	Limit     int
	Highlight bool
}

// Hit is one search result.
type Hit struct {
	ID      string  `json:"id"`
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// MaxSnippet bounds Hit.Snippet in runes.
const MaxSnippet = 400

// Client is the document store consumed by the vault service.
type Client interface {
	AddDocuments(ctx context.Context, docs []models.SearchDocument) (TaskInfo, error)
	DeleteDocuments(ctx context.Context, ids []string) (TaskInfo, error)
	DeleteDocument(ctx context.Context, id string) (TaskInfo, error)
	WaitForTask(ctx context.Context, uid string) (Task, error)
	Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error)
	Health(ctx context.Context) error
	Close() error
}

// Open creates the client for engine. path is the on-disk location for bleve
// and sqlite and is ignored for memory. name labels bleve indexes.
func Open(engine, path, name string) (Client, error) {
	switch engine {
	case EngineBleve, "":
		return openNamedBleve(path, name)
	case EngineMemory:
		return openNamedBleve("", name)
	case EngineSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("index: unknown engine %q", engine)
	}
}

func openNamedBleve(path, name string) (*Bleve, error) {
	b, err := OpenBleve(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		b.index.SetName(name)
	}
	return b, nil
}

// Await blocks until the task behind info finishes. A failed task is
// reported as an error wrapping apperr.ErrIndexWrite.
func Await(ctx context.Context, c Client, info TaskInfo) error {
	task, err := c.WaitForTask(ctx, info.UID)
	if err != nil {
		return err
	}
	if task.Status != StatusSucceeded {
		return fmt.Errorf("%w: task %s %s: %s", apperr.ErrIndexWrite, task.UID, task.Status, task.Error)
	}
	return nil
}
