package core

// janitor.go evicts idle sessions in the background.
//
// The janitor is long-running and context-aware for graceful shutdown. It
// runs one sweep immediately, then one per interval, and logs each eviction.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJanitorInterval is used when RunJanitor gets a non-positive interval.
const DefaultJanitorInterval = time.Minute

// RunJanitor blocks until ctx is cancelled, evicting idle sessions every
// interval.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	slog.Info("session janitor started",
		"interval", interval.String(),
		"idle_timeout", e.opts.IdleTimeout.String(),
	)

	e.sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	start := time.Now()
	evicted := e.EvictIdle(start)
	for _, id := range evicted {
		slog.Info("idle session evicted", "session_id", id)
	}
	slog.Debug("janitor sweep completed",
		"evicted", len(evicted),
		"sessions", e.Count(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
