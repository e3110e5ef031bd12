package queuestore

const enqueueSQL = `
INSERT INTO chunks (id, stage, batch_id, payload)
VALUES ($1, $2, $3, $4);
`

const claimNextSQL = `
UPDATE chunks
SET claimed_at = now()
WHERE id IN (
    SELECT c.id
    FROM chunks c
    WHERE c.stage = $1
      AND (c.claimed_at IS NULL
           OR c.claimed_at < now() - ($3::bigint * interval '1 millisecond'))
      AND NOT EXISTS (
          SELECT 1 FROM stage_completions sc
          WHERE sc.stage = c.stage AND sc.chunk_id = c.id
      )
    ORDER BY c.seq
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING id, stage, seq, batch_id, payload, enqueued_at;
`

const releaseClaimsSQL = `
UPDATE chunks
SET claimed_at = NULL
WHERE stage = $1 AND id = ANY($2);
`

const markCompleteSQL = `
INSERT INTO stage_completions (stage, chunk_id, outcome)
VALUES ($1, $2, $3)
ON CONFLICT (stage, chunk_id) DO NOTHING;
`

const stageStatusSQL = `
SELECT
    (SELECT count(*)
     FROM chunks c
     WHERE c.stage = $1
       AND NOT EXISTS (
           SELECT 1 FROM stage_completions sc
           WHERE sc.stage = c.stage AND sc.chunk_id = c.id
       )) AS queue_depth,
    (SELECT coalesce(max(completed_at), 'epoch'::timestamptz)
     FROM stage_completions WHERE stage = $1) AS last_processed,
    (SELECT count(*)
     FROM stage_completions
     WHERE stage = $1 AND outcome = 'failure') AS failure_count;
`

const listPrunableSQL = `
SELECT c.id, c.stage, c.seq, c.batch_id, c.payload, c.enqueued_at
FROM chunks c
JOIN stage_completions sc ON sc.stage = c.stage AND sc.chunk_id = c.id
WHERE c.stage = $1
  AND sc.outcome = 'success'
  AND sc.completed_at < now() - ($2::bigint * interval '1 millisecond')
ORDER BY c.seq
LIMIT $3;
`

const deleteChunksSQL = `
DELETE FROM chunks
WHERE stage = $1 AND id = ANY($2);
`

const replayFailedSQL = `
WITH failed AS (
    DELETE FROM stage_completions
    WHERE stage = $1 AND outcome = 'failure'
    RETURNING chunk_id
)
UPDATE chunks
SET claimed_at = NULL
WHERE stage = $1 AND id IN (SELECT chunk_id FROM failed);
`

const appendLogEntrySQL = `
INSERT INTO log_entries (id, entry_text, entry_timestamp, role, source)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING;
`

const nextWindowSQL = `
SELECT seq, id, entry_text, entry_timestamp, role, source, processed, appended_at
FROM log_entries
WHERE seq >= $1
ORDER BY seq
LIMIT $2;
`

const getCursorSQL = `
SELECT position FROM stage_cursors WHERE name = $1;
`

const setCursorSQL = `
INSERT INTO stage_cursors (name, position, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
SET position = EXCLUDED.position, updated_at = now();
`

const markLogProcessedSQL = `
UPDATE log_entries
SET processed = true
WHERE id = ANY($1);
`

const insertResolvedSQL = `
INSERT INTO resolved_statements (id, log_entry_id, statement_text, rationale, statement_timestamp, role, source)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (log_entry_id) DO NOTHING;
`
