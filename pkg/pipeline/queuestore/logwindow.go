package queuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/store"
)

// resolveCursor tracks the sequence position of the next resolution
// window in log_entries. retainedCursor tracks how many entries at that
// position were already emitted by the previous window and ride along
// as reference context only.
const (
	resolveCursor  = "resolve_window"
	retainedCursor = "resolve_window_retained"
)

const getCursorForUpdateSQL = `
SELECT position FROM stage_cursors WHERE name = $1 FOR UPDATE;
`

// LogWindow is the payload of a resolution chunk: one overlapping window
// of raw log entries. Entries before EmitFrom belong to the previous
// window's emission and serve as reference context only; the resolution
// stage emits statements for entries at EmitFrom and later. This keeps
// ownership of each entry with exactly one window, so a retried chunk
// emits the same set.
type LogWindow struct {
	Entries  []common.LogEntry `json:"entries"`
	EmitFrom int               `json:"emit_from"`
}

const appendBatchSize = 200

// AppendLogEntries appends raw log entries. Re-delivered entries with a
// known identifier are ignored.
func (s *Store) AppendLogEntries(ctx context.Context, entries []common.LogEntry) error {
	return store.ChunkRange(len(entries), appendBatchSize, func(start, end int) error {
		batch := &pgx.Batch{}
		for _, e := range entries[start:end] {
			batch.Queue(appendLogEntrySQL, e.ID, e.Text, e.Timestamp, string(e.Role), e.Source)
		}
		if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
			return storageErr("append_log_entries", err)
		}
		return nil
	})
}

// windowPlan describes one emittable window over the entries past the
// cursor.
type windowPlan struct {
	emitFrom int
	keep     int
}

// planWindow decides whether count entries past the cursor form an
// emittable window. retained counts leading entries already emitted by
// the previous window. A window shorter than windowSize is emitted only
// once its oldest unemitted entry has waited out flushAfter, so the
// tail of a quiet stream still drains instead of idling forever. keep
// is the number of trailing entries the next window re-reads as
// context.
func planWindow(count, retained, windowSize, overlap int, oldestUnemitted time.Time, flushAfter time.Duration, now time.Time) (windowPlan, bool) {
	if count == 0 {
		return windowPlan{}, false
	}
	if retained > count {
		retained = count
	}
	if count < windowSize {
		if count <= retained || flushAfter <= 0 {
			return windowPlan{}, false
		}
		if now.Sub(oldestUnemitted) < flushAfter {
			return windowPlan{}, false
		}
	}
	return windowPlan{emitFrom: retained, keep: min(overlap, count)}, true
}

// EnqueueNextLogWindow builds the next overlapping window of log entries
// and enqueues it as a resolution chunk, advancing the window cursor in
// the same transaction. A full window is cut as soon as windowSize
// entries exist beyond the cursor; a shorter remainder is flushed once
// its oldest unemitted entry is older than flushAfter. Returns false
// when there is nothing to cut yet; the windower idles and retries.
func (s *Store) EnqueueNextLogWindow(ctx context.Context, windowSize, overlap int, flushAfter time.Duration) (bool, error) {
	if windowSize <= 0 {
		return false, fmt.Errorf("window size must be positive")
	}
	if overlap < 0 || overlap >= windowSize {
		return false, fmt.Errorf("overlap must be in [0, window size)")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, storageErr("next_window begin", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	position, err := cursorForUpdate(ctx, tx, resolveCursor)
	if err != nil {
		return false, storageErr("next_window cursor", err)
	}
	retained, err := cursorForUpdate(ctx, tx, retainedCursor)
	if err != nil {
		return false, storageErr("next_window retained cursor", err)
	}

	rows, err := tx.Query(ctx, nextWindowSQL, position, windowSize)
	if err != nil {
		return false, storageErr("next_window query", err)
	}

	var (
		entries  []common.LogEntry
		seqs     []int64
		appended []time.Time
	)
	for rows.Next() {
		var (
			seq int64
			at  time.Time
			e   common.LogEntry
		)
		if err := rows.Scan(&seq, &e.ID, &e.Text, &e.Timestamp, &e.Role, &e.Source, &e.Processed, &at); err != nil {
			rows.Close()
			return false, storageErr("next_window scan", err)
		}
		entries = append(entries, e)
		seqs = append(seqs, seq)
		appended = append(appended, at)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, storageErr("next_window rows", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	oldestUnemitted := appended[min(int(retained), len(entries)-1)]
	plan, ok := planWindow(len(entries), int(retained), windowSize, overlap, oldestUnemitted, flushAfter, time.Now())
	if !ok {
		return false, nil
	}

	payload, err := json.Marshal(LogWindow{Entries: entries, EmitFrom: plan.emitFrom})
	if err != nil {
		return false, fmt.Errorf("failed to marshal window payload: %w", err)
	}
	chunkID, err := gonanoid.New()
	if err != nil {
		return false, err
	}
	batchID, err := gonanoid.New()
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, enqueueSQL, chunkID, string(pipeline.StageResolve), batchID, payload); err != nil {
		return false, storageErr("next_window enqueue", err)
	}

	// The next window starts keep entries before this window's end; a
	// flushed window shorter than keep leaves the cursor in place and
	// the retained count stops it from flushing again.
	if plan.keep < len(entries) {
		next := seqs[len(entries)-plan.keep-1] + 1
		if _, err := tx.Exec(ctx, setCursorSQL, resolveCursor, next); err != nil {
			return false, storageErr("next_window advance", err)
		}
	}
	if _, err := tx.Exec(ctx, setCursorSQL, retainedCursor, int64(plan.keep)); err != nil {
		return false, storageErr("next_window retain", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, storageErr("next_window commit", err)
	}
	return true, nil
}

func cursorForUpdate(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var position int64
	err := tx.QueryRow(ctx, getCursorForUpdateSQL, name).Scan(&position)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return position, err
}

// MarkLogEntriesProcessed flips the processed flag for the given entries.
// Idempotent; the flag is the only mutable attribute of a log entry.
func (s *Store) MarkLogEntriesProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, markLogProcessedSQL, ids); err != nil {
		return storageErr("mark_log_processed", err)
	}
	return nil
}

// InsertResolvedStatements stores resolution output. A log entry can have
// at most one resolved statement; re-insertions from overlapping windows
// are ignored.
func (s *Store) InsertResolvedStatements(ctx context.Context, stmts []common.ResolvedStatement) error {
	for _, st := range stmts {
		id := st.ID
		if id == "" {
			var err error
			id, err = gonanoid.New()
			if err != nil {
				return err
			}
		}
		if _, err := s.db.Exec(ctx, insertResolvedSQL,
			id, st.LogEntryID, st.Text, st.Rationale, st.Timestamp, string(st.Role), st.Source,
		); err != nil {
			return storageErr("insert_resolved", err)
		}
	}
	return nil
}
