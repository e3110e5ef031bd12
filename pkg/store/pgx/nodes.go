package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/store"
)

// GetNode fetches one node by identifier.
func (s *GraphDBStorage) GetNode(ctx context.Context, id string) (common.Node, error) {
	n, err := scanNode(s.db.QueryRow(ctx, getNodeSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Node{}, fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return common.Node{}, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// GetNodeByLabel fetches the node of the given type whose label or alias
// matches exactly, case-insensitively.
func (s *GraphDBStorage) GetNodeByLabel(ctx context.Context, label string, nodeType common.NodeType) (common.Node, error) {
	n, err := scanNode(s.db.QueryRow(ctx, getNodeByLabelSQL, label, string(nodeType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Node{}, fmt.Errorf("node %q: %w", label, store.ErrNotFound)
	}
	if err != nil {
		return common.Node{}, fmt.Errorf("get node by label: %w", err)
	}
	return n, nil
}

// SearchNodesByLabel finds nodes whose label or alias contains the query,
// most recently updated first.
func (s *GraphDBStorage) SearchNodesByLabel(ctx context.Context, query string, limit int) ([]common.Node, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, searchNodesSQL, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// FindSimilarNodes embeds the given text and returns the closest nodes of
// the given type above the similarity floor.
func (s *GraphDBStorage) FindSimilarNodes(ctx context.Context, text string, nodeType common.NodeType, limit int) ([]common.Node, error) {
	if limit <= 0 {
		limit = 5
	}
	embedding, err := s.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed similarity query: %w", err)
	}

	rows, err := s.db.Query(ctx, findSimilarNodesSQL,
		string(nodeType), pgvector.NewVector(embedding), s.minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("find similar nodes: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func collectNodes(rows pgx.Rows) ([]common.Node, error) {
	var nodes []common.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("node rows: %w", err)
	}
	return nodes, nil
}

// CreateNode persists a new node at version 1 with a fresh embedding.
func (s *GraphDBStorage) CreateNode(ctx context.Context, node common.Node) error {
	embedding, err := s.embed(ctx, embedText(node.Label, node.Aliases, node.Description))
	if err != nil {
		return fmt.Errorf("embed node: %w", err)
	}

	_, err = s.db.Exec(ctx, insertNodeSQL,
		node.ID, node.Label, node.SemanticLabel, string(node.Type), node.Aliases, node.Description,
		nullTime(node.ValidFrom.Time), node.ValidFrom.Confidence,
		nullTime(node.ValidUntil.Time), node.ValidUntil.Confidence,
		node.Recurrence, node.Confidence, node.Importance,
		node.Provenance.Source, node.Provenance.LogEntryID, node.Provenance.StatementID, node.Provenance.Sentence,
		pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

// UpdateNode writes the node's mutable attributes with a fresh embedding,
// guarded by the expected version. A stale version means another merge
// landed first; the caller re-reads and retries.
func (s *GraphDBStorage) UpdateNode(ctx context.Context, node common.Node, expectedVersion int64) error {
	embedding, err := s.embed(ctx, embedText(node.Label, node.Aliases, node.Description))
	if err != nil {
		return fmt.Errorf("embed node: %w", err)
	}

	tag, err := s.db.Exec(ctx, updateNodeSQL,
		node.ID, expectedVersion,
		node.Label, node.Aliases, node.Description,
		nullTime(node.ValidFrom.Time), node.ValidFrom.Confidence,
		nullTime(node.ValidUntil.Time), node.ValidUntil.Confidence,
		node.Recurrence, node.Confidence, node.Importance,
		pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("node %s version %d: %w", node.ID, expectedVersion, pipeline.ErrMergeConflict)
	}
	return nil
}

// SetSemanticLabel stores the node's primary classification.
func (s *GraphDBStorage) SetSemanticLabel(ctx context.Context, nodeID, label string) error {
	if _, err := s.db.Exec(ctx, setSemanticLabelSQL, nodeID, label); err != nil {
		return fmt.Errorf("set semantic label: %w", err)
	}
	return nil
}

// Neighborhood traverses edges outward from the node up to depth hops,
// resolving endpoint labels. Traversal is bounded so a hub node cannot
// blow up oracle context.
func (s *GraphDBStorage) Neighborhood(ctx context.Context, nodeID string, depth int) ([]store.Neighbor, error) {
	if depth <= 0 {
		depth = 1
	}

	frontier := []string{nodeID}
	visited := map[string]bool{nodeID: true}
	seenEdges := map[string]bool{}
	var neighbors []store.Neighbor

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		rows, err := s.db.Query(ctx, neighborhoodSQL, frontier, maxNeighborhoodEdges)
		if err != nil {
			return nil, fmt.Errorf("neighborhood: %w", err)
		}

		var next []string
		for rows.Next() {
			var nb store.Neighbor
			e := &nb.Edge
			err := rows.Scan(
				&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Descriptor, &e.Sentence,
				&e.Confidence, &e.Importance,
				&e.Provenance.Source, &e.Provenance.LogEntryID, &e.Provenance.StatementID, &e.Provenance.Sentence,
				&e.Version, &e.CreatedAt,
				&nb.SourceLabel, &nb.TargetLabel,
			)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan neighborhood: %w", err)
			}
			if seenEdges[e.ID] {
				continue
			}
			seenEdges[e.ID] = true
			neighbors = append(neighbors, nb)

			for _, endpoint := range []string{e.SourceID, e.TargetID} {
				if !visited[endpoint] {
					visited[endpoint] = true
					next = append(next, endpoint)
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("neighborhood rows: %w", err)
		}
		rows.Close()

		if len(neighbors) >= maxNeighborhoodEdges {
			break
		}
		frontier = next
	}

	return neighbors, nil
}
