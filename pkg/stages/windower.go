package stages

import (
	"context"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/logger"
)

// WindowStore is the slice of the queue store the windower needs.
type WindowStore interface {
	EnqueueNextLogWindow(ctx context.Context, windowSize, overlap int, flushAfter time.Duration) (bool, error)
}

// WindowerConfig tunes the resolution windower. FlushAfter bounds how
// long a trailing partial window may wait for more entries before it is
// cut short and enqueued anyway.
type WindowerConfig struct {
	WindowSize  int
	Overlap     int
	FlushAfter  time.Duration
	IdleBackoff time.Duration
}

func (c *WindowerConfig) withDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 8
	}
	if c.Overlap <= 0 || c.Overlap >= c.WindowSize {
		c.Overlap = min(3, c.WindowSize-1)
	}
	if c.FlushAfter <= 0 {
		c.FlushAfter = 10 * time.Minute
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = 30 * time.Second
	}
}

// RunWindower turns appended log entries into overlapping resolution
// windows until ctx is canceled. Consecutive windows share Overlap
// entries so reference chains spanning a window boundary stay
// resolvable. The cursor advance and the chunk enqueue commit together,
// so a crash never skips or double-cuts a window.
func RunWindower(ctx context.Context, cfg WindowerConfig, store WindowStore) error {
	cfg.withDefaults()

	logger.Info("[Windower] Starting", "window", cfg.WindowSize, "overlap", cfg.Overlap)

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("[Windower] Stopping")
			return err
		}

		enqueued, err := store.EnqueueNextLogWindow(ctx, cfg.WindowSize, cfg.Overlap, cfg.FlushAfter)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("[Windower] Window cut failed", "err", err)
		}
		if enqueued {
			continue
		}

		t := time.NewTimer(cfg.IdleBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}
