// Package queuestore implements the durable inter-stage hand-off over
// Postgres: per-stage waiting areas, per-(stage, chunk) completion
// ledgers, and atomic claim semantics safe under concurrent pollers.
package queuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

// Archiver receives successfully completed chunks before they are pruned
// from the waiting area.
type Archiver interface {
	ArchiveChunk(ctx context.Context, chunk pipeline.Chunk) error
}

// Store is the durable queue store. All pipeline coordination runs
// through it; stages never talk to each other directly.
type Store struct {
	db       *pgxpool.Pool
	claimTTL time.Duration
}

// NewStoreParams configures a Store. ClaimTTL is how long a claim shields
// a chunk from other pollers; a worker that crashes mid-batch frees its
// chunks after the TTL.
type NewStoreParams struct {
	ClaimTTL time.Duration
}

// NewStore creates a queue store over the given pool.
func NewStore(db *pgxpool.Pool, params NewStoreParams) *Store {
	ttl := params.ClaimTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{db: db, claimTTL: ttl}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(pipeline.ErrStorageUnavailable, err))
}

// Enqueue appends one chunk to the stage's waiting area and returns its
// identifier.
func (s *Store) Enqueue(ctx context.Context, stage pipeline.Stage, batchID string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chunk payload: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	if _, err := s.db.Exec(ctx, enqueueSQL, id, string(stage), batchID, data); err != nil {
		return "", storageErr("enqueue", err)
	}
	return id, nil
}

// ClaimNext atomically claims up to maxBatch chunks from the stage's
// waiting area, ordered by sequence position, skipping chunks already in
// the stage's completion ledger and chunks claimed by live pollers. An
// empty result is the normal caught-up condition, not an error.
func (s *Store) ClaimNext(ctx context.Context, stage pipeline.Stage, maxBatch int) ([]pipeline.Chunk, error) {
	if maxBatch <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, claimNextSQL, string(stage), maxBatch, s.claimTTL.Milliseconds())
	if err != nil {
		return nil, storageErr("claim_next", err)
	}
	defer rows.Close()

	var chunks []pipeline.Chunk
	for rows.Next() {
		var c pipeline.Chunk
		if err := rows.Scan(&c.ID, &c.Stage, &c.Seq, &c.BatchID, &c.Payload, &c.EnqueuedAt); err != nil {
			return nil, storageErr("claim_next scan", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("claim_next rows", err)
	}
	return chunks, nil
}

// ReleaseClaims returns claimed chunks to the waiting area without
// recording a completion, making them immediately claimable again. The
// boundary stage uses this for window remainders.
func (s *Store) ReleaseClaims(ctx context.Context, stage pipeline.Stage, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, releaseClaimsSQL, string(stage), chunkIDs); err != nil {
		return storageErr("release_claims", err)
	}
	return nil
}

// MarkComplete records that the stage processed the chunk. Idempotent: a
// second call with the same (stage, chunk) is a no-op.
func (s *Store) MarkComplete(ctx context.Context, stage pipeline.Stage, chunkID string, outcome pipeline.Outcome) error {
	if _, err := s.db.Exec(ctx, markCompleteSQL, string(stage), chunkID, string(outcome)); err != nil {
		return storageErr("mark_complete", err)
	}
	return nil
}

// CompleteChunk records the completion and enqueues the chunk's outputs
// to downstream stages in one transaction. If the completion row already
// exists the outputs are skipped, so a crashed worker retrying a finished
// chunk cannot double-enqueue downstream work.
func (s *Store) CompleteChunk(
	ctx context.Context,
	stage pipeline.Stage,
	chunkID string,
	outcome pipeline.Outcome,
	outputs []pipeline.Output,
) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storageErr("complete_chunk begin", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, markCompleteSQL, string(stage), chunkID, string(outcome))
	if err != nil {
		return storageErr("complete_chunk ledger", err)
	}
	if tag.RowsAffected() == 0 {
		// Already completed by an earlier attempt; outputs were enqueued then.
		return tx.Commit(ctx)
	}

	for _, out := range outputs {
		data, err := json.Marshal(out.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal output payload: %w", err)
		}
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, enqueueSQL, id, string(out.Stage), out.BatchID, data); err != nil {
			return storageErr("complete_chunk enqueue", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("complete_chunk commit", err)
	}
	return nil
}

// Status is the operational snapshot of one stage.
type Status struct {
	Stage         pipeline.Stage `json:"stage"`
	QueueDepth    int64          `json:"queue_depth"`
	LastProcessed time.Time      `json:"last_processed"`
	FailureCount  int64          `json:"failure_count"`
}

// StageStatus reports queue depth, last-processed timestamp, and failure
// count for one stage.
func (s *Store) StageStatus(ctx context.Context, stage pipeline.Stage) (Status, error) {
	st := Status{Stage: stage}
	err := s.db.QueryRow(ctx, stageStatusSQL, string(stage)).
		Scan(&st.QueueDepth, &st.LastProcessed, &st.FailureCount)
	if err != nil {
		return Status{}, storageErr("stage_status", err)
	}
	return st, nil
}

// PruneCompleted removes successfully completed chunks older than
// retention from the stage's waiting area, archiving each one first when
// an archiver is configured. Returns the number of pruned chunks.
func (s *Store) PruneCompleted(
	ctx context.Context,
	stage pipeline.Stage,
	retention time.Duration,
	limit int,
	archiver Archiver,
) (int, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.db.Query(ctx, listPrunableSQL, string(stage), retention.Milliseconds(), limit)
	if err != nil {
		return 0, storageErr("prune list", err)
	}
	defer rows.Close()

	var chunks []pipeline.Chunk
	for rows.Next() {
		var c pipeline.Chunk
		if err := rows.Scan(&c.ID, &c.Stage, &c.Seq, &c.BatchID, &c.Payload, &c.EnqueuedAt); err != nil {
			return 0, storageErr("prune scan", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return 0, storageErr("prune rows", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	if archiver != nil {
		for _, c := range chunks {
			if err := archiver.ArchiveChunk(ctx, c); err != nil {
				return 0, fmt.Errorf("failed to archive chunk %s: %w", c.ID, err)
			}
		}
	}

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	if _, err := s.db.Exec(ctx, deleteChunksSQL, string(stage), ids); err != nil {
		return 0, storageErr("prune delete", err)
	}
	return len(chunks), nil
}

// ReplayFailed clears failure outcomes from the stage's completion ledger
// and releases the affected chunks for reprocessing. This is a
// maintenance action, never part of the continuous loop.
func (s *Store) ReplayFailed(ctx context.Context, stage pipeline.Stage) (int, error) {
	tag, err := s.db.Exec(ctx, replayFailedSQL, string(stage))
	if err != nil {
		return 0, storageErr("replay_failed", err)
	}
	return int(tag.RowsAffected()), nil
}
