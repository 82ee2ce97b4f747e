// Package watcher keeps the search index in step with out-of-band edits to
// the vault. Filesystem events are filtered, coalesced per path and flushed
// to the index in bulk on a fixed interval.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/checksum"
	"github.com/starford/noteapi/internal/index"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/projector"
	"github.com/starford/noteapi/internal/storage"
)

// Action is the coalesced intent for one path.
type Action uint8

const (
	Upsert Action = iota + 1
	Delete
)

func (a Action) String() string {
	switch a {
	case Upsert:
		return "upsert"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Change kinds passed to the OnChange callback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Change describes one note that reached the index during a flush.
type Change struct {
	Kind string
	Path string
}

// Config tunes the watcher.
type Config struct {
	FlushInterval   time.Duration
	SummaryInterval time.Duration
	// Ignore holds extra doublestar patterns relative to the vault root.
	Ignore []string
	// IgnoredSample bounds the recent ignored paths kept for Stats.
	IgnoredSample int
	// FlushTimeout bounds the index calls of one flush.
	FlushTimeout time.Duration
}

func (c *Config) defaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = time.Minute
	}
	if c.IgnoredSample <= 0 {
		c.IgnoredSample = 50
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 30 * time.Second
	}
}

// FlushResult reports what one flush did.
type FlushResult struct {
	Upserted  int
	Deleted   int
	Unchanged int
	Deferred  int
	AddErr    error
	DeleteErr error
}

// Stats is a point-in-time view of the watcher counters.
type Stats struct {
	Watching      bool      `json:"watching"`
	Pending       int       `json:"pending"`
	Received      int64     `json:"events_received"`
	Sent          int64     `json:"documents_sent"`
	Ignored       int64     `json:"events_ignored"`
	TotalReceived int64     `json:"total_events_received"`
	TotalSent     int64     `json:"total_documents_sent"`
	TotalIgnored  int64     `json:"total_events_ignored"`
	IgnoredSample []string  `json:"ignored_sample"`
	LastFlush     time.Time `json:"last_flush,omitzero"`
	CachedPaths   int       `json:"cached_paths"`
	FlushInterval string    `json:"flush_interval"`
	SummaryEvery  string    `json:"summary_interval"`
}

type counters struct {
	received, sent, ignored int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithOnChange registers fn to be called for every note a flush upserted or
// deleted.
func WithOnChange(fn func(Change)) Option {
	return func(w *Watcher) { w.onChange = fn }
}

// Watcher turns filesystem events into bulk index updates.
type Watcher struct {
	cfg      Config
	store    storage.Reader
	index    *index.Gate
	hashes   *HashCache
	matcher  *Matcher
	logger   *slog.Logger
	onChange func(Change)

	mu      sync.Mutex
	pending map[string]Action
	counts  map[string]int
	window  counters
	total   counters
	sample  *lru.Cache[string, string]
	last    time.Time

	flushMu sync.Mutex

	fsw       *fsnotify.Watcher
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New builds a Watcher over store. It does not watch anything until Start.
func New(store storage.Reader, gate *index.Gate, hashes *HashCache, cfg Config, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	cfg.defaults()
	m, err := NewMatcher(cfg.Ignore...)
	if err != nil {
		return nil, err
	}
	sample, err := lru.New[string, string](cfg.IgnoredSample)
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if hashes == nil {
		hashes = NewHashCache()
	}
	w := &Watcher{
		cfg:     cfg,
		store:   store,
		index:   gate,
		hashes:  hashes,
		matcher: m,
		logger:  logger,
		pending: make(map[string]Action),
		counts:  make(map[string]int),
		sample:  sample,
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Start subscribes to the vault tree and launches the intake and flush
// goroutines.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := w.addDirsRecursive(fsw, w.store.Root(), nil); err != nil {
		fsw.Close()
		return fmt.Errorf("watcher: add dirs: %w", err)
	}
	w.fsw = fsw

	w.wg.Add(2)
	go w.intake()
	go w.tick()

	w.logger.Info("watcher started",
		slog.String("root", w.store.Root()),
		slog.Duration("flush_interval", w.cfg.FlushInterval),
	)
	return nil
}

// Run starts the watcher and blocks until ctx ends, then closes it.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Close()
}

// Close stops both goroutines, flushes what is pending, clears all state
// and releases the OS watch. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()

		if res := w.Flush(context.Background()); res.Upserted+res.Deleted > 0 {
			w.logger.Info("watcher final flush",
				slog.Int("upserted", res.Upserted),
				slog.Int("deleted", res.Deleted),
			)
		}

		w.mu.Lock()
		clear(w.pending)
		clear(w.counts)
		w.window = counters{}
		w.sample.Purge()
		w.mu.Unlock()
		w.hashes.Clear()

		if w.fsw != nil {
			w.closeErr = w.fsw.Close()
		}
		w.logger.Info("watcher stopped")
	})
	return w.closeErr
}

func (w *Watcher) intake() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher: fsnotify error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) tick() {
	defer w.wg.Done()
	flush := time.NewTicker(w.cfg.FlushInterval)
	defer flush.Stop()
	summary := time.NewTicker(w.cfg.SummaryInterval)
	defer summary.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-flush.C:
			w.Flush(context.Background())
		case <-summary.C:
			w.summarize()
		}
	}
}

// handle filters and coalesces one event. It never touches the index.
func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.handleNewDir(ev.Name, rel)
			return
		}
	}

	var act Action
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		act = Delete
		// A vanished directory takes every note we indexed under it along.
		for _, abs := range w.hashes.Under(ev.Name) {
			w.enqueue(abs, Delete)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		act = Upsert
	default:
		return
	}

	if reason, skip := w.matcher.Match(rel); skip {
		w.ignore(rel, reason)
		return
	}
	w.enqueue(ev.Name, act)
}

func (w *Watcher) handleNewDir(abs, rel string) {
	if w.matcher.MatchDir(rel) {
		w.ignore(rel, "hidden")
		return
	}
	var files []string
	if err := w.addDirsRecursive(w.fsw, abs, &files); err != nil {
		w.logger.Warn("watcher: watch new dir failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	for _, f := range files {
		frel, ok := w.rel(f)
		if !ok {
			continue
		}
		if reason, skip := w.matcher.Match(frel); skip {
			w.ignore(frel, reason)
			continue
		}
		w.enqueue(f, Upsert)
	}
}

// addDirsRecursive watches root and every non-excluded directory under it.
// Regular files found on the way are appended to files when non-nil.
func (w *Watcher) addDirsRecursive(fsw *fsnotify.Watcher, root string, files *[]string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			if files != nil {
				*files = append(*files, p)
			}
			return nil
		}
		if p != root {
			if rel, ok := w.rel(p); ok && w.matcher.MatchDir(rel) {
				return filepath.SkipDir
			}
		}
		return fsw.Add(p)
	})
}

func (w *Watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.store.Root(), abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) enqueue(abs string, act Action) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[abs] = act
	w.counts[abs]++
	w.window.received++
	w.total.received++
}

func (w *Watcher) ignore(rel, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.window.ignored++
	w.total.ignored++
	w.sample.Add(rel, reason)
}

// Flush drains the pending set and sends it to the index as at most one
// bulk upsert and one bulk delete. Each call is awaited and logged on its
// own so one failing does not hide the other. While the index is disabled
// nothing is drained and the pending set keeps coalescing.
func (w *Watcher) Flush(ctx context.Context) FlushResult {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	var res FlushResult
	w.mu.Lock()
	if !w.index.Enabled() {
		// Keep coalescing until the index is back.
		res.Deferred = len(w.pending)
		w.mu.Unlock()
		if res.Deferred > 0 {
			w.logger.Debug("watcher: index disabled, keeping batch", slog.Int("paths", res.Deferred))
		}
		return res
	}
	batch, counts := w.pending, w.counts
	w.pending = make(map[string]Action)
	w.counts = make(map[string]int)
	w.mu.Unlock()

	if len(batch) == 0 {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.FlushTimeout)
	defer cancel()

	paths := make([]string, 0, len(batch))
	for p := range batch {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var (
		docs     []models.SearchDocument
		upserts  []Change
		ids      []string
		gone     []string
		deletes  []Change
		coalesce int
	)
	staged := make(map[string]uint64)
	for _, abs := range paths {
		coalesce += counts[abs] - 1
		rel, _ := w.rel(abs)
		if batch[abs] == Upsert {
			n, err := w.store.Load(abs)
			switch {
			case err == nil:
				h := checksum.Fast(n.Raw)
				prev, known := w.hashes.Get(abs)
				if known && prev == h {
					res.Unchanged++
					continue
				}
				kind := ChangeCreated
				if known {
					kind = ChangeUpdated
				}
				docs = append(docs, projector.ProjectNote(n))
				staged[abs] = h
				upserts = append(upserts, Change{Kind: kind, Path: n.Path})
				continue
			case errors.Is(err, apperr.ErrNotFound):
				// Gone before we got to it.
			default:
				w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
				continue
			}
		}
		ids = append(ids, projector.EncodeID(rel))
		gone = append(gone, abs)
		deletes = append(deletes, Change{Kind: ChangeDeleted, Path: rel})
	}

	if len(docs) > 0 {
		res.AddErr = w.send(ctx, "upsert", len(docs), func() (index.TaskInfo, error) {
			return w.index.AddDocuments(ctx, docs)
		})
		if res.AddErr == nil {
			for abs, h := range staged {
				w.hashes.Set(abs, h)
			}
			res.Upserted = len(docs)
			w.notify(upserts)
		}
	}
	if len(ids) > 0 {
		res.DeleteErr = w.send(ctx, "delete", len(ids), func() (index.TaskInfo, error) {
			return w.index.DeleteDocuments(ctx, ids)
		})
		if res.DeleteErr == nil {
			for _, abs := range gone {
				w.hashes.Forget(abs)
			}
			res.Deleted = len(ids)
			w.notify(deletes)
		}
	}

	w.mu.Lock()
	w.window.sent += int64(res.Upserted + res.Deleted)
	w.total.sent += int64(res.Upserted + res.Deleted)
	w.last = time.Now()
	w.mu.Unlock()

	w.logger.Debug("watcher flush",
		slog.Int("upserted", res.Upserted),
		slog.Int("deleted", res.Deleted),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("coalesced", coalesce),
	)
	return res
}

func (w *Watcher) send(ctx context.Context, op string, n int, call func() (index.TaskInfo, error)) error {
	info, err := call()
	if err == nil {
		err = index.Await(ctx, w.index, info)
	}
	if err != nil {
		w.logger.Error("watcher: index "+op+" failed",
			slog.Int("documents", n),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (w *Watcher) notify(changes []Change) {
	if w.onChange == nil {
		return
	}
	for _, c := range changes {
		w.onChange(c)
	}
}

func (w *Watcher) summarize() {
	w.mu.Lock()
	win := w.window
	depth := len(w.pending)
	w.window = counters{}
	w.mu.Unlock()

	if win.received == 0 && win.ignored == 0 && win.sent == 0 {
		return
	}
	w.logger.Info("watcher summary",
		slog.Int64("events", win.received),
		slog.Int64("sent", win.sent),
		slog.Int64("ignored", win.ignored),
		slog.Int("queue_depth", depth),
	)
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	sample := w.sample.Keys()
	if sample == nil {
		sample = []string{}
	}
	return Stats{
		Watching:      w.fsw != nil && !w.stopped(),
		Pending:       len(w.pending),
		Received:      w.window.received,
		Sent:          w.window.sent,
		Ignored:       w.window.ignored,
		TotalReceived: w.total.received,
		TotalSent:     w.total.sent,
		TotalIgnored:  w.total.ignored,
		IgnoredSample: sample,
		LastFlush:     w.last,
		CachedPaths:   w.hashes.Len(),
		FlushInterval: w.cfg.FlushInterval.String(),
		SummaryEvery:  w.cfg.SummaryInterval.String(),
	}
}

func (w *Watcher) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}
