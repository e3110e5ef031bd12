package pgx

const nodeColumns = `
	id, label, semantic_label, node_type, aliases, description,
	valid_from, valid_from_confidence, valid_until, valid_until_confidence,
	recurrence, confidence, importance,
	prov_source, prov_log_entry_id, prov_statement_id, prov_sentence,
	version, created_at, updated_at`

const edgeColumns = `
	id, source_id, target_id, relation, descriptor, sentence,
	confidence, importance,
	prov_source, prov_log_entry_id, prov_statement_id, prov_sentence,
	version, created_at`

const getNodeSQL = `
SELECT` + nodeColumns + `
FROM nodes
WHERE id = $1`

const getNodeByLabelSQL = `
SELECT` + nodeColumns + `
FROM nodes
WHERE node_type = $2
  AND (
	LOWER(label) = LOWER($1)
	OR EXISTS (SELECT 1 FROM UNNEST(aliases) AS a WHERE LOWER(a) = LOWER($1))
  )
ORDER BY created_at
LIMIT 1`

const searchNodesSQL = `
SELECT` + nodeColumns + `
FROM nodes
WHERE label ILIKE '%' || $1 || '%'
   OR EXISTS (SELECT 1 FROM UNNEST(aliases) AS a WHERE a ILIKE '%' || $1 || '%')
ORDER BY updated_at DESC
LIMIT $2`

const findSimilarNodesSQL = `
SELECT` + nodeColumns + `
FROM nodes
WHERE node_type = $1
  AND embedding IS NOT NULL
  AND 1 - (embedding <=> $2) >= $3
ORDER BY embedding <=> $2
LIMIT $4`

const insertNodeSQL = `
INSERT INTO nodes (
	id, label, semantic_label, node_type, aliases, description,
	valid_from, valid_from_confidence, valid_until, valid_until_confidence,
	recurrence, confidence, importance,
	prov_source, prov_log_entry_id, prov_statement_id, prov_sentence,
	embedding, version, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10,
	$11, $12, $13,
	$14, $15, $16, $17,
	$18, 1, NOW(), NOW()
)`

const updateNodeSQL = `
UPDATE nodes
SET label = $3,
	aliases = $4,
	description = $5,
	valid_from = $6,
	valid_from_confidence = $7,
	valid_until = $8,
	valid_until_confidence = $9,
	recurrence = $10,
	confidence = $11,
	importance = $12,
	embedding = $13,
	version = version + 1,
	updated_at = NOW()
WHERE id = $1
  AND version = $2`

const setSemanticLabelSQL = `
UPDATE nodes
SET semantic_label = $2,
	updated_at = NOW()
WHERE id = $1`

const edgesBetweenSQL = `
SELECT` + edgeColumns + `
FROM edges
WHERE source_id = $1
  AND target_id = $2
ORDER BY created_at`

const insertEdgeSQL = `
INSERT INTO edges (
	id, source_id, target_id, relation, descriptor, sentence,
	confidence, importance,
	prov_source, prov_log_entry_id, prov_statement_id, prov_sentence,
	version, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8,
	$9, $10, $11, $12,
	1, NOW()
)`

const updateEdgeSQL = `
UPDATE edges
SET relation = $3,
	descriptor = $4,
	sentence = $5,
	confidence = $6,
	importance = $7,
	version = version + 1
WHERE id = $1
  AND version = $2`

const neighborhoodSQL = `
SELECT e.id, e.source_id, e.target_id, e.relation, e.descriptor, e.sentence,
	e.confidence, e.importance,
	e.prov_source, e.prov_log_entry_id, e.prov_statement_id, e.prov_sentence,
	e.version, e.created_at,
	s.label, t.label
FROM edges e
JOIN nodes s ON s.id = e.source_id
JOIN nodes t ON t.id = e.target_id
WHERE e.source_id = ANY($1)
   OR e.target_id = ANY($1)
ORDER BY e.created_at
LIMIT $2`

const upsertTaxonomyLinkSQL = `
INSERT INTO taxonomy_links (node_id, category, count, confidence, last_seen)
VALUES ($1, $2, 1, $3, NOW())
ON CONFLICT (node_id, category) DO UPDATE
SET count = taxonomy_links.count + 1,
	confidence = EXCLUDED.confidence,
	last_seen = NOW()`

const taxonomyLinksSQL = `
SELECT node_id, category, count, confidence, last_seen
FROM taxonomy_links
WHERE node_id = $1
ORDER BY category`
