// Package pgx implements graph persistence over Postgres with pgvector
// similarity search. Node embeddings are generated on write so lookups
// never embed stored data again.
package pgx

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chronicler-ai/chronicler/internal/util"
	"github.com/chronicler-ai/chronicler/pkg/ai"
	"github.com/chronicler-ai/chronicler/pkg/common"
)

const (
	// Similarity floor for embedding lookups when none is configured;
	// weaker matches are noise.
	defaultMinSimilarity = 0.4

	// Neighborhood traversal stops after this many edges regardless of
	// depth.
	maxNeighborhoodEdges = 100
)

// NewGraphDBStorageParams tunes similarity lookups.
type NewGraphDBStorageParams struct {
	MinSimilarity float64
}

func (p *NewGraphDBStorageParams) withDefaults() {
	if p.MinSimilarity <= 0 || p.MinSimilarity >= 1 {
		p.MinSimilarity = defaultMinSimilarity
	}
}

// GraphDBStorage persists the knowledge graph in Postgres.
type GraphDBStorage struct {
	db            *pgxpool.Pool
	aiClient      ai.Client
	minSimilarity float64
}

// NewGraphDBStorage creates a graph store over the given pool. The AI
// client generates embeddings for node writes and similarity queries.
func NewGraphDBStorage(db *pgxpool.Pool, aiClient ai.Client, params NewGraphDBStorageParams) *GraphDBStorage {
	params.withDefaults()
	return &GraphDBStorage{db: db, aiClient: aiClient, minSimilarity: params.MinSimilarity}
}

// embedText is the canonical embedding input for a node: label, aliases
// and description in one string, so similar nodes stay close even when
// one side lacks a description.
func embedText(label string, aliases []string, description string) string {
	parts := make([]string, 0, 3)
	parts = append(parts, label)
	if len(aliases) > 0 {
		parts = append(parts, strings.Join(aliases, ", "))
	}
	if description != "" {
		parts = append(parts, description)
	}
	return strings.Join(parts, "\n")
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanNode(row pgx.Row) (common.Node, error) {
	var n common.Node
	var validFrom, validUntil *time.Time
	err := row.Scan(
		&n.ID, &n.Label, &n.SemanticLabel, &n.Type, &n.Aliases, &n.Description,
		&validFrom, &n.ValidFrom.Confidence,
		&validUntil, &n.ValidUntil.Confidence,
		&n.Recurrence, &n.Confidence, &n.Importance,
		&n.Provenance.Source, &n.Provenance.LogEntryID, &n.Provenance.StatementID, &n.Provenance.Sentence,
		&n.Version, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return common.Node{}, err
	}
	if validFrom != nil {
		n.ValidFrom.Time = *validFrom
	}
	if validUntil != nil {
		n.ValidUntil.Time = *validUntil
	}
	return n, nil
}

func scanEdge(row pgx.Row) (common.Edge, error) {
	var e common.Edge
	err := row.Scan(
		&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Descriptor, &e.Sentence,
		&e.Confidence, &e.Importance,
		&e.Provenance.Source, &e.Provenance.LogEntryID, &e.Provenance.StatementID, &e.Provenance.Sentence,
		&e.Version, &e.CreatedAt,
	)
	if err != nil {
		return common.Edge{}, err
	}
	return e, nil
}

// Embedding requests ride on every node write and similarity lookup; a
// transient model failure gets one more attempt before the merge fails.
const embedAttempts = 2

func (s *GraphDBStorage) embed(ctx context.Context, text string) ([]float32, error) {
	return util.RetryWithContext(ctx, embedAttempts, func(ctx context.Context) ([]float32, error) {
		return s.aiClient.GenerateEmbedding(ctx, []byte(text))
	})
}
