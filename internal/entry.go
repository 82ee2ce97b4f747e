// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/starford/noteapi/internal/api"
	"github.com/starford/noteapi/internal/attachment"
	"github.com/starford/noteapi/internal/index"
	"github.com/starford/noteapi/internal/mcpserver"
	"github.com/starford/noteapi/internal/noteservice"
	"github.com/starford/noteapi/internal/reindex"
	"github.com/starford/noteapi/internal/sse"
	"github.com/starford/noteapi/internal/storage"
	"github.com/starford/noteapi/internal/watcher"
)

// ErrIndexLocked is returned when another process holds the index lock.
var ErrIndexLocked = errors.New("index is locked by another process")

const shutdownTimeout = 10 * time.Second

// newLogger builds the process logger. "auto" picks text on a terminal and
// JSON otherwise.
func newLogger(w io.Writer, cfg ApplicationConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	format := cfg.LogFormat
	if format == "" || format == LogFormatAuto {
		format = LogFormatJSON
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = LogFormatText
		}
	}
	if format == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// components is the service graph shared by the HTTP and MCP entry points.
type components struct {
	store       *storage.FS
	lock        *flock.Flock
	index       index.Client
	gate        *index.Gate
	hashes      *watcher.HashCache
	reindex     *reindex.Coordinator
	broker      *sse.Broker
	service     *noteservice.Service
	attachments *attachment.Store
}

func build(cfg *Config, logger *slog.Logger) (_ *components, err error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	uid, gid := cfg.Vault.Owner()
	store, err := storage.NewFS(cfg.Vault.Path,
		storage.WithTrash(cfg.Vault.TrashEnabled),
		storage.WithFileMode(os.FileMode(cfg.Vault.FileMode)),
		storage.WithOwner(uid, gid),
	)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c := &components{store: store, hashes: watcher.NewHashCache()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	path := cfg.Index.Path
	if cfg.Index.Engine == index.EngineMemory {
		path = ""
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		c.lock = flock.New(path + ".lock")
		locked, err := c.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock index: %w", err)
		}
		if !locked {
			c.lock = nil
			return nil, fmt.Errorf("%w: %s", ErrIndexLocked, path)
		}
	}

	c.index, err = index.Open(cfg.Index.Engine, path, cfg.Index.Name)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	c.gate = index.NewGate(c.index, logger.With(slog.String("component", "index")))
	c.reindex = reindex.New(store, c.gate, c.hashes, logger.With(slog.String("component", "reindex")),
		reindex.WithChunkSize(cfg.Index.ChunkSize))
	c.broker = sse.NewBroker()
	c.attachments = attachment.New(store.Sandbox())
	c.service = noteservice.New(store, c.gate, c.hashes, c.reindex, logger.With(slog.String("component", "notes")),
		noteservice.WithPublisher(c.broker))
	return c, nil
}

// Close releases the index and its lock. The watcher must already be closed
// so its final flush still reaches the index.
func (c *components) Close() error {
	var errs []error
	if c.broker != nil {
		c.broker.Close()
	}
	if c.index != nil {
		errs = append(errs, c.index.Close())
	}
	if c.lock != nil {
		errs = append(errs, c.lock.Unlock())
	}
	return errors.Join(errs...)
}

// startupReindex opens the gate and rebuilds the index when the engine is
// reachable. A down engine is not fatal.
func (c *components) startupReindex(ctx context.Context, logger *slog.Logger) {
	if !c.gate.Probe(ctx) {
		logger.Warn("index unavailable at startup, running without search")
		return
	}
	c.rebuild(ctx, logger)
}

func (c *components) rebuild(ctx context.Context, logger *slog.Logger) {
	res, err := c.reindex.ReindexAll(ctx)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		logger.Warn("reindex failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("reindex done", slog.Int("indexed", res.Indexed))
}

// Run starts the HTTP server, the vault watcher and the index availability
// probe, and blocks until ctx ends or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("index_engine", cfg.Index.Engine),
		slog.String("index_path", cfg.Index.Path),
		slog.Bool("watcher", cfg.Watcher.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("close failed", slog.String("error", err.Error()))
		}
	}()

	c.startupReindex(ctx, logger)

	var w *watcher.Watcher
	if cfg.Watcher.Enabled {
		w, err = watcher.New(c.store, c.gate, c.hashes, cfg.Watcher.Watcher(),
			logger.With(slog.String("component", "watcher")),
			watcher.WithOnChange(func(ch watcher.Change) {
				c.broker.PublishNoteEvent(ch.Kind, ch.Path)
			}))
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
	}

	deps := api.Deps{
		Service:     c.service,
		Attachments: c.attachments,
		Events:      c.broker,
		Logger:      logger.With(slog.String("component", "http")),
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	}
	if w != nil {
		deps.Watcher = w
	}
	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if w != nil {
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	g.Go(func() error {
		return c.gate.WatchAvailability(gCtx, cfg.Index.ProbeInterval, func(ctx context.Context) {
			c.rebuild(ctx, logger)
		})
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App)
	slog.SetDefault(logger)

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	c.startupReindex(ctx, logger)

	srv := mcpserver.New(c.service, c.attachments, logger.With(slog.String("component", "mcp")))
	return srv.ServeStdio()
}
