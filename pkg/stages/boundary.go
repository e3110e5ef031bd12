package stages

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
)

// BoundaryConfig tunes Stage 1's sliding window. Threshold is the index
// the boundary scan starts from; FlushAfter bounds how long a partial
// window may wait for more statements before it is processed as-is.
type BoundaryConfig struct {
	WindowSize int
	Threshold  int
	FlushAfter time.Duration
}

func (c *BoundaryConfig) withDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 20
	}
	if c.Threshold <= 0 || c.Threshold >= c.WindowSize {
		c.Threshold = (c.WindowSize * 7) / 10
	}
	if c.FlushAfter <= 0 {
		c.FlushAfter = 10 * time.Minute
	}
}

// Segmenter is Stage 1: it groups a sliding window of resolved
// statements into discrete conversations via threshold-then-scan, so
// later extraction sees bounded, topically coherent context.
type Segmenter struct {
	oracle oracle.Client
	cfg    BoundaryConfig
}

// NewSegmenter creates the boundary stage handler. Run it with MaxBatch
// equal to the configured window size.
func NewSegmenter(o oracle.Client, cfg BoundaryConfig) *Segmenter {
	cfg.withDefaults()
	return &Segmenter{oracle: o, cfg: cfg}
}

// Process inspects one claimed window of statement chunks. A full window
// is segmented at the oracle-identified boundary; statements past the
// boundary are released for the next window. A partial window is
// released untouched until it is FlushAfter old, then treated as one
// conversation.
func (s *Segmenter) Process(ctx context.Context, chunks []pipeline.Chunk) ([]worker.Result, error) {
	stmts := make([]common.ResolvedStatement, 0, len(chunks))
	for _, chunk := range chunks {
		var p StatementPayload
		if err := chunk.Bind(&p); err != nil {
			return nil, fmt.Errorf("failed to decode statement payload: %w", err)
		}
		stmts = append(stmts, p.Statement)
	}

	full := len(chunks) >= s.cfg.WindowSize

	if !full {
		oldest := time.Now()
		for _, chunk := range chunks {
			if chunk.EnqueuedAt.Before(oldest) {
				oldest = chunk.EnqueuedAt
			}
		}
		if time.Since(oldest) < s.cfg.FlushAfter {
			// Wait for the window to fill.
			results := make([]worker.Result, 0, len(chunks))
			for _, chunk := range chunks {
				results = append(results, worker.Result{ChunkID: chunk.ID, Release: true})
			}
			return results, nil
		}
	}

	// A flushed partial window went quiet long ago; treat it as one
	// conversation without consulting the oracle.
	cut := len(chunks)
	if full {
		b, err := s.findBoundary(ctx, stmts)
		if err != nil {
			// Window-level oracle failure fails every statement chunk in it.
			results := make([]worker.Result, 0, len(chunks))
			for _, chunk := range chunks {
				results = append(results, worker.Result{ChunkID: chunk.ID, Outcome: pipeline.OutcomeFailure, Err: err})
			}
			return results, nil
		}
		cut = b
	}

	convID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	conversation := ConversationPayload{
		ConversationID: convID,
		Statements:     stmts[:cut],
	}

	results := make([]worker.Result, 0, len(chunks))
	for i, chunk := range chunks {
		if i >= cut {
			results = append(results, worker.Result{ChunkID: chunk.ID, Release: true})
			continue
		}
		res := worker.Result{ChunkID: chunk.ID, Outcome: pipeline.OutcomeSuccess}
		// The conversation rides on the first chunk so it is enqueued
		// exactly once.
		if i == 0 {
			res.Outputs = []pipeline.Output{{
				Stage:   pipeline.StageAtomize,
				BatchID: chunk.BatchID,
				Payload: conversation,
			}}
		}
		results = append(results, res)
	}

	logger.Debug("[Boundary] Window segmented",
		"statements", len(stmts), "conversation_len", cut, "released", len(stmts)-cut)

	return results, nil
}

// findBoundary asks the oracle for the best boundary at or after the
// threshold. No usable boundary means the whole window is one
// conversation.
func (s *Segmenter) findBoundary(ctx context.Context, stmts []common.ResolvedStatement) (int, error) {
	req := oracle.BoundaryRequest{Threshold: s.cfg.Threshold}
	for i, st := range stmts {
		req.Statements = append(req.Statements, oracle.BoundaryStatement{
			Index:     i,
			Role:      string(st.Role),
			Timestamp: st.Timestamp.Format(time.RFC3339),
			Text:      st.Text,
		})
	}

	var resp oracle.BoundaryResponse
	if err := s.oracle.Judge(ctx, oracle.TaskDetectBoundary, req, &resp); err != nil {
		return 0, err
	}

	if !resp.HasBoundary || resp.Index < s.cfg.Threshold || resp.Index >= len(stmts) {
		return len(stmts), nil
	}
	return resp.Index, nil
}
