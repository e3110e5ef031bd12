// Package store defines the persistence interface for the knowledge
// graph. The merge engine is the sole writer; external consumers such as
// a visualizer or a conversational assistant see only GraphReader.
package store

import (
	"context"
	"errors"

	"github.com/chronicler-ai/chronicler/pkg/common"
)

// ErrNotFound is returned when a node or edge does not exist.
var ErrNotFound = errors.New("not found")

// Neighbor is one edge incident to a node, with both endpoint labels
// resolved for display and oracle context.
type Neighbor struct {
	Edge        common.Edge
	SourceLabel string
	TargetLabel string
}

// GraphReader is the read-only query surface over the persisted graph.
type GraphReader interface {
	GetNode(ctx context.Context, id string) (common.Node, error)
	SearchNodesByLabel(ctx context.Context, query string, limit int) ([]common.Node, error)
	FindSimilarNodes(ctx context.Context, text string, nodeType common.NodeType, limit int) ([]common.Node, error)
	Neighborhood(ctx context.Context, nodeID string, depth int) ([]Neighbor, error)
	TaxonomyLinks(ctx context.Context, nodeID string) ([]common.TaxonomyLink, error)
}

// GraphStorage is the merge engine's full surface over the graph.
// UpdateNode and UpdateEdge are version-checked; a stale expected version
// fails with pipeline.ErrMergeConflict so the caller can re-read and
// retry.
type GraphStorage interface {
	GraphReader

	GetNodeByLabel(ctx context.Context, label string, nodeType common.NodeType) (common.Node, error)
	CreateNode(ctx context.Context, node common.Node) error
	UpdateNode(ctx context.Context, node common.Node, expectedVersion int64) error

	EdgesBetween(ctx context.Context, sourceID, targetID string) ([]common.Edge, error)
	CreateEdge(ctx context.Context, edge common.Edge) error
	UpdateEdge(ctx context.Context, edge common.Edge, expectedVersion int64) error

	UpsertTaxonomyLink(ctx context.Context, link common.TaxonomyLink) error
	SetSemanticLabel(ctx context.Context, nodeID, label string) error
}
