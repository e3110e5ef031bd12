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
	"github.com/chronicler-ai/chronicler/pkg/pipeline/queuestore"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
)

// ResolveStore is the slice of the queue store the resolution stage
// needs for its side writes.
type ResolveStore interface {
	InsertResolvedStatements(ctx context.Context, stmts []common.ResolvedStatement) error
	MarkLogEntriesProcessed(ctx context.Context, ids []string) error
}

// ResolverConfig carries the canonical singleton labels resolved once at
// startup.
type ResolverConfig struct {
	CanonicalUser      string
	CanonicalAssistant string
}

// Resolver is Stage 0: it rewrites ambiguous references in raw log text
// using overlapping windows, so downstream stages never perform
// coreference resolution.
type Resolver struct {
	oracle oracle.Client
	store  ResolveStore
	cfg    ResolverConfig
}

// NewResolver creates the resolution stage handler.
func NewResolver(o oracle.Client, store ResolveStore, cfg ResolverConfig) worker.Handler {
	r := &Resolver{oracle: o, store: store, cfg: cfg}
	return worker.PerChunk(r.processWindow)
}

func (r *Resolver) processWindow(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error) {
	var window queuestore.LogWindow
	if err := chunk.Bind(&window); err != nil {
		return nil, fmt.Errorf("failed to decode window payload: %w", err)
	}

	byID := make(map[string]common.LogEntry, len(window.Entries))
	emitIDs := make([]string, 0, len(window.Entries))

	req := oracle.ResolveRequest{
		CanonicalUser:      r.cfg.CanonicalUser,
		CanonicalAssistant: r.cfg.CanonicalAssistant,
	}

	emittable := make(map[string]bool)
	for i, entry := range window.Entries {
		byID[entry.ID] = entry
		owned := i >= window.EmitFrom
		if owned {
			emitIDs = append(emitIDs, entry.ID)
		}
		if isNoise(entry.Text) {
			continue
		}
		// Context entries from the previous window's overlap ride along
		// so cross-boundary references resolve, but only owned entries
		// produce output.
		req.Entries = append(req.Entries, oracle.WindowEntry{
			ID:        entry.ID,
			Role:      string(entry.Role),
			Timestamp: entry.Timestamp.Format(time.RFC3339),
			Text:      entry.Text,
		})
		if owned {
			emittable[entry.ID] = true
		}
	}

	// A window of pure noise produces no output but still marks its
	// entries processed.
	if len(emittable) == 0 {
		if err := r.store.MarkLogEntriesProcessed(ctx, emitIDs); err != nil {
			return nil, err
		}
		logger.Debug("[Resolve] Window had no resolvable entries", "chunk", chunk.ID, "entries", len(emitIDs))
		return nil, nil
	}

	var resp oracle.ResolveResponse
	if err := r.oracle.Judge(ctx, oracle.TaskResolveReferences, req, &resp); err != nil {
		return nil, err
	}

	stmts := make([]common.ResolvedStatement, 0, len(resp.Statements))
	for _, rs := range resp.Statements {
		if !emittable[rs.LogEntryID] {
			continue
		}
		entry := byID[rs.LogEntryID]
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, common.ResolvedStatement{
			ID:         id,
			LogEntryID: entry.ID,
			Text:       rs.Text,
			Rationale:  rs.Rationale,
			Timestamp:  entry.Timestamp,
			Role:       entry.Role,
			Source:     entry.Source,
		})
	}

	if err := r.store.InsertResolvedStatements(ctx, stmts); err != nil {
		return nil, err
	}
	if err := r.store.MarkLogEntriesProcessed(ctx, emitIDs); err != nil {
		return nil, err
	}

	outputs := make([]pipeline.Output, 0, len(stmts))
	for _, st := range stmts {
		outputs = append(outputs, pipeline.Output{
			Stage:   pipeline.StageBoundary,
			BatchID: chunk.BatchID,
			Payload: StatementPayload{Statement: st},
		})
	}

	logger.Debug("[Resolve] Window resolved",
		"chunk", chunk.ID, "entries", len(window.Entries), "statements", len(stmts))

	return outputs, nil
}
