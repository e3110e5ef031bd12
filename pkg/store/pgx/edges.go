package pgx

import (
	"context"
	"fmt"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

// EdgesBetween lists all edges from source to target, oldest first.
func (s *GraphDBStorage) EdgesBetween(ctx context.Context, sourceID, targetID string) ([]common.Edge, error) {
	rows, err := s.db.Query(ctx, edgesBetweenSQL, sourceID, targetID)
	if err != nil {
		return nil, fmt.Errorf("edges between: %w", err)
	}
	defer rows.Close()

	var edges []common.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("edge rows: %w", err)
	}
	return edges, nil
}

// CreateEdge persists a new edge at version 1.
func (s *GraphDBStorage) CreateEdge(ctx context.Context, edge common.Edge) error {
	_, err := s.db.Exec(ctx, insertEdgeSQL,
		edge.ID, edge.SourceID, edge.TargetID, edge.Relation, edge.Descriptor, edge.Sentence,
		edge.Confidence, edge.Importance,
		edge.Provenance.Source, edge.Provenance.LogEntryID, edge.Provenance.StatementID, edge.Provenance.Sentence,
	)
	if err != nil {
		return fmt.Errorf("create edge: %w", err)
	}
	return nil
}

// UpdateEdge writes the edge's mutable attributes guarded by the expected
// version.
func (s *GraphDBStorage) UpdateEdge(ctx context.Context, edge common.Edge, expectedVersion int64) error {
	tag, err := s.db.Exec(ctx, updateEdgeSQL,
		edge.ID, expectedVersion,
		edge.Relation, edge.Descriptor, edge.Sentence,
		edge.Confidence, edge.Importance,
	)
	if err != nil {
		return fmt.Errorf("update edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("edge %s version %d: %w", edge.ID, expectedVersion, pipeline.ErrMergeConflict)
	}
	return nil
}
