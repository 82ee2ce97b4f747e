package index

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Gate wraps a Client with an availability flag. While the flag is down the
// vault keeps working and index work is skipped.
type Gate struct {
	Client
	enabled atomic.Bool
	logger  *slog.Logger
}

// NewGate returns a gate around c, initially closed. Call Probe to open it.
func NewGate(c Client, logger *slog.Logger) *Gate {
	return &Gate{Client: c, logger: logger}
}

// Enabled reports whether index work should be attempted.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// Probe checks engine health and updates the flag. It reports whether the
// gate went from closed to open.
func (g *Gate) Probe(ctx context.Context) bool {
	err := g.Client.Health(ctx)
	was := g.enabled.Swap(err == nil)
	switch {
	case err == nil && !was:
		g.logger.Info("index available")
		return true
	case err != nil && was:
		g.logger.Warn("index unavailable", slog.String("error", err.Error()))
	}
	return false
}

// WatchAvailability probes every interval until ctx ends, calling onAvailable
// each time the gate opens.
func (g *Gate) WatchAvailability(ctx context.Context, interval time.Duration, onAvailable func(context.Context)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if g.Probe(ctx) && onAvailable != nil {
				onAvailable(ctx)
			}
		}
	}
}
