// Package worker provides the control loop shared by every pipeline
// stage: claim a bounded batch, process it, record per-chunk outcomes,
// idle when caught up.
package worker

import (
	"context"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

// Store is the slice of the queue store the runtime needs.
type Store interface {
	ClaimNext(ctx context.Context, stage pipeline.Stage, maxBatch int) ([]pipeline.Chunk, error)
	CompleteChunk(ctx context.Context, stage pipeline.Stage, chunkID string, outcome pipeline.Outcome, outputs []pipeline.Output) error
	ReleaseClaims(ctx context.Context, stage pipeline.Stage, chunkIDs []string) error
}

// Result is the per-chunk verdict a handler returns. Release returns the
// chunk to the waiting area without a completion row; otherwise the
// outcome and outputs are committed together.
type Result struct {
	ChunkID string
	Outcome pipeline.Outcome
	Outputs []pipeline.Output
	Err     error
	Release bool
}

// Handler processes one claimed batch. An error return means the whole
// batch could not be attempted (storage trouble, cancellation); the
// chunks stay claimed and become reclaimable when the claim TTL expires.
// Per-chunk failures belong in Results, not in the error.
type Handler interface {
	Process(ctx context.Context, chunks []pipeline.Chunk) ([]Result, error)
}

// Config tunes one stage loop.
type Config struct {
	Stage       pipeline.Stage
	MaxBatch    int
	IdleBackoff time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxBatch <= 0 {
		c.MaxBatch = 5
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = 30 * time.Second
	}
}

// RunForever runs the stage loop until ctx is canceled. Storage errors
// fail the current cycle, get logged, and are retried after the backoff;
// per-chunk failures are recorded in the ledger and never stop the loop.
func RunForever(ctx context.Context, cfg Config, store Store, handler Handler) error {
	cfg.withDefaults()

	logger.Info("[Worker] Starting", "stage", cfg.Stage, "max_batch", cfg.MaxBatch)

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("[Worker] Stopping", "stage", cfg.Stage)
			return err
		}

		chunks, err := store.ClaimNext(ctx, cfg.Stage, cfg.MaxBatch)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("[Worker] Claim failed", "stage", cfg.Stage, "err", err)
			if err := sleep(ctx, cfg.IdleBackoff); err != nil {
				continue
			}
			continue
		}

		if len(chunks) == 0 {
			if err := sleep(ctx, cfg.IdleBackoff); err != nil {
				continue
			}
			continue
		}

		results, err := handler.Process(ctx, chunks)
		if err != nil {
			// Chunks stay claimed; the claim TTL makes them reclaimable.
			logger.Error("[Worker] Batch failed", "stage", cfg.Stage, "chunks", len(chunks), "err", err)
			continue
		}

		for _, res := range results {
			if res.Release {
				if err := store.ReleaseClaims(ctx, cfg.Stage, []string{res.ChunkID}); err != nil {
					logger.Error("[Worker] Release failed", "stage", cfg.Stage, "chunk", res.ChunkID, "err", err)
				}
				continue
			}

			if res.Err != nil {
				logger.Warn("[Worker] Chunk failed", "stage", cfg.Stage, "chunk", res.ChunkID, "err", res.Err)
			}

			if err := store.CompleteChunk(ctx, cfg.Stage, res.ChunkID, res.Outcome, res.Outputs); err != nil {
				// No completion row was written, so the chunk will be
				// reclaimed and retried.
				logger.Error("[Worker] Completion failed", "stage", cfg.Stage, "chunk", res.ChunkID, "err", err)
			}
		}
	}
}

// PerChunk adapts a single-chunk function into a Handler with per-chunk
// failure isolation: one chunk's error becomes a failure outcome for that
// chunk alone, and cancellation releases the chunks not yet attempted.
func PerChunk(fn func(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error)) Handler {
	return perChunkHandler(fn)
}

type perChunkHandler func(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error)

func (h perChunkHandler) Process(ctx context.Context, chunks []pipeline.Chunk) ([]Result, error) {
	results := make([]Result, 0, len(chunks))
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			results = append(results, Result{ChunkID: chunk.ID, Release: true})
			continue
		}

		outputs, err := h(ctx, chunk)
		if err != nil {
			results = append(results, Result{ChunkID: chunk.ID, Outcome: pipeline.OutcomeFailure, Err: err})
			continue
		}
		results = append(results, Result{ChunkID: chunk.ID, Outcome: pipeline.OutcomeSuccess, Outputs: outputs})
	}
	return results, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
