// Package reindex rebuilds the search index from the vault.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/checksum"
	"github.com/starford/noteapi/internal/index"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/projector"
	"github.com/starford/noteapi/internal/storage"
	"github.com/starford/noteapi/internal/watcher"
)

// DefaultChunkSize is the number of documents sent per index task.
const DefaultChunkSize = 200

// Reasons a run was skipped.
const (
	ReasonDisabled = "disabled"
	ReasonInFlight = "in-flight"
)

// Result is the outcome of ReindexAll.
type Result struct {
	Indexed int    `json:"indexed"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Err maps a skipped result to its sentinel error.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonInFlight:
		return apperr.ErrReindexInFlight
	case ReasonDisabled:
		return apperr.ErrIndexUnavailable
	}
	return nil
}

// Status describes the last completed run.
type Status struct {
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"last_run,omitzero"`
	LastIndexed  int       `json:"last_indexed"`
	LastDuration string    `json:"last_duration,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithChunkSize sets the number of documents per index task.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunk = n
		}
	}
}

// Coordinator runs at most one full reindex at a time. A call made while a
// run is in progress is rejected, never queued.
type Coordinator struct {
	store  storage.Reader
	index  *index.Gate
	hashes *watcher.HashCache
	chunk  int
	logger *slog.Logger

	running atomic.Bool

	mu   sync.Mutex
	last Status
}

// New returns a Coordinator. hashes may be nil.
func New(store storage.Reader, gate *index.Gate, hashes *watcher.HashCache, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		index:  gate,
		hashes: hashes,
		chunk:  DefaultChunkSize,
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Running reports whether a run is in progress.
func (c *Coordinator) Running() bool { return c.running.Load() }

// Status returns the state of the last run.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.last
	s.Running = c.running.Load()
	return s
}

type staged struct {
	abs  string
	hash uint64
}

// ReindexAll walks the whole vault and sends every note to the index in
// chunks, waiting for each chunk before sending the next. A failed chunk
// stops the run and reports zero; chunks already applied stay applied. A
// missing vault or an unreachable engine also reports zero without error.
// Any other failure, such as a vault read error, is returned.
func (c *Coordinator) ReindexAll(ctx context.Context) (Result, error) {
	if !c.index.Enabled() {
		return Result{Skipped: true, Reason: ReasonDisabled}, nil
	}
	if !c.running.CompareAndSwap(false, true) {
		return Result{Skipped: true, Reason: ReasonInFlight}, nil
	}
	defer c.running.Store(false)

	start := time.Now()
	n, err := c.run(ctx)
	c.record(start, n, err)
	if err != nil && !zeroIndexed(err) {
		return Result{}, err
	}
	return Result{Indexed: n}, nil
}

// zeroIndexed reports whether err is a failure that ends a run with zero
// documents rather than an error.
func zeroIndexed(err error) bool {
	return errors.Is(err, index.ErrUnavailable) || errors.Is(err, apperr.ErrIndexWrite)
}

func (c *Coordinator) run(ctx context.Context) (int, error) {
	var (
		docs  []models.SearchDocument
		seen  []staged
		total int
	)
	err := c.store.Walk("", func(rel, abs string, _ fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.store.Load(abs)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("read %s: %w", rel, err)
		}
		docs = append(docs, projector.ProjectNote(n))
		seen = append(seen, staged{abs: abs, hash: checksum.Fast(n.Raw)})
		return nil
	})
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.logger.Warn("reindex: vault missing", slog.String("root", c.store.Root()))
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("reindex: walk: %w", err)
	}

	for i := 0; i < len(docs); i += c.chunk {
		end := min(i+c.chunk, len(docs))
		info, err := c.index.AddDocuments(ctx, docs[i:end])
		if err == nil {
			err = index.Await(ctx, c.index, info)
		}
		if err != nil {
			if errors.Is(err, index.ErrUnavailable) {
				c.logger.Warn("reindex: index unreachable", slog.String("error", err.Error()))
			} else {
				c.logger.Error("reindex: chunk failed",
					slog.Int("offset", i),
					slog.Int("size", end-i),
					slog.String("error", err.Error()),
				)
			}
			return 0, err
		}
		if c.hashes != nil {
			for _, s := range seen[i:end] {
				c.hashes.Set(s.abs, s.hash)
			}
		}
		total = end
	}
	return total, nil
}

func (c *Coordinator) record(start time.Time, n int, err error) {
	d := time.Since(start)
	c.mu.Lock()
	c.last = Status{LastRun: start, LastIndexed: n, LastDuration: d.Round(time.Millisecond).String()}
	if err != nil {
		c.last.LastIndexed = 0
		c.last.LastError = err.Error()
	}
	c.mu.Unlock()

	if err == nil {
		c.logger.Info("reindex complete", slog.Int("indexed", n), slog.Duration("took", d))
	}
}
