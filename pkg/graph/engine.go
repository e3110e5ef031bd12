// Package graph implements the merge engine, the terminal pipeline
// stage: it reconciles enriched candidates against the persisted graph,
// creating new nodes and edges or folding candidates into existing ones.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/leaselock"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
	"github.com/chronicler-ai/chronicler/pkg/stages"
	"github.com/chronicler-ai/chronicler/pkg/store"
)

// Locker serializes merges of the same node across worker instances.
// *leaselock.Client implements it.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Config tunes the merge engine. CanonicalUser and CanonicalAssistant are
// the labels of the two singleton nodes; TaxonomyCategories is the
// external taxonomy the classify task may pick from when enrichment
// suggested no category.
type Config struct {
	CanonicalUser      string
	CanonicalAssistant string
	TaxonomyCategories []string
	MaxMergeRetries    int
	SimilarityTopK     int
	NeighborhoodDepth  int
	LeaseTTL           time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxMergeRetries <= 0 {
		c.MaxMergeRetries = 3
	}
	if c.SimilarityTopK <= 0 {
		c.SimilarityTopK = 5
	}
	if c.NeighborhoodDepth <= 0 {
		c.NeighborhoodDepth = 1
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
}

// Engine is the merge engine. Bootstrap must run before the first chunk
// so the singleton node identifiers are resolved.
type Engine struct {
	storage store.GraphStorage
	oracle  oracle.Client
	locks   Locker
	cfg     Config

	userID      string
	assistantID string
}

// NewEngine creates a merge engine over the given storage, oracle and
// lock client.
func NewEngine(storage store.GraphStorage, o oracle.Client, locks Locker, cfg Config) *Engine {
	cfg.withDefaults()
	return &Engine{storage: storage, oracle: o, locks: locks, cfg: cfg}
}

// Bootstrap resolves the canonical user and assistant nodes, creating
// them on first run. Exactly one node per singleton exists system-wide;
// every later candidate denoting them merges in unconditionally.
func (e *Engine) Bootstrap(ctx context.Context) error {
	userID, err := e.ensureSingleton(ctx, e.cfg.CanonicalUser, "The person this system keeps a knowledge graph for.")
	if err != nil {
		return fmt.Errorf("bootstrap user node: %w", err)
	}
	e.userID = userID

	assistantID, err := e.ensureSingleton(ctx, e.cfg.CanonicalAssistant, "The assistant the user converses with.")
	if err != nil {
		return fmt.Errorf("bootstrap assistant node: %w", err)
	}
	e.assistantID = assistantID

	logger.Info("[Merge] Singleton nodes ready", "user", e.userID, "assistant", e.assistantID)
	return nil
}

func (e *Engine) ensureSingleton(ctx context.Context, label, description string) (string, error) {
	if label == "" {
		return "", fmt.Errorf("singleton label is empty")
	}

	node, err := e.storage.GetNodeByLabel(ctx, label, common.NodeTypeEntity)
	if err == nil {
		return node.ID, nil
	}
	if !errorsIsNotFound(err) {
		return "", err
	}

	id, err := newID()
	if err != nil {
		return "", err
	}
	node = common.Node{
		ID:          id,
		Label:       label,
		Type:        common.NodeTypeEntity,
		Description: description,
		Confidence:  1,
		Importance:  1,
	}
	if err := e.storage.CreateNode(ctx, node); err != nil {
		return "", err
	}
	return id, nil
}

// NewMergeHandler returns the Stage 5 worker handler.
func (e *Engine) NewMergeHandler() worker.Handler {
	return worker.PerChunk(e.processCandidates)
}

func (e *Engine) processCandidates(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error) {
	var set stages.CandidateSet
	if err := chunk.Bind(&set); err != nil {
		return nil, fmt.Errorf("failed to decode candidate payload: %w", err)
	}

	// Node merges first; edge endpoints resolve through the resulting
	// label-to-node mapping.
	endpoints := newEndpointIndex(e)
	var merged, created int
	for _, cand := range set.Nodes {
		nodeID, existed, err := e.mergeNode(ctx, cand)
		if err != nil {
			return nil, err
		}
		if existed {
			merged++
		} else {
			created++
		}
		endpoints.add(cand, nodeID)
	}

	var edges int
	for _, cand := range set.Edges {
		ok, err := e.mergeEdge(ctx, cand, endpoints)
		if err != nil {
			return nil, err
		}
		if ok {
			edges++
		}
	}

	logger.Info("[Merge] Candidate set reconciled",
		"conversation", set.ConversationID,
		"nodes_merged", merged, "nodes_created", created, "edges", edges)

	// Terminal stage: no downstream outputs.
	return nil, nil
}

// endpointIndex maps candidate labels and aliases to persisted node
// identifiers for edge endpoint resolution.
type endpointIndex struct {
	engine *Engine
	byName map[string]string
}

func newEndpointIndex(e *Engine) *endpointIndex {
	return &endpointIndex{engine: e, byName: make(map[string]string)}
}

func (idx *endpointIndex) add(cand common.CandidateNode, nodeID string) {
	idx.byName[strings.ToLower(cand.Label)] = nodeID
	for _, alias := range cand.Aliases {
		key := strings.ToLower(alias)
		if _, ok := idx.byName[key]; !ok {
			idx.byName[key] = nodeID
		}
	}
}

// resolve maps an edge endpoint label to a node. Candidates from the same
// set win; the singletons and an exact graph lookup cover references to
// nodes merged by earlier conversations.
func (idx *endpointIndex) resolve(ctx context.Context, label string) (string, bool) {
	if id, ok := idx.byName[strings.ToLower(label)]; ok {
		return id, true
	}
	if id := idx.engine.singletonFor(label); id != "" {
		return id, true
	}
	for _, nt := range common.NodeTypes {
		node, err := idx.engine.storage.GetNodeByLabel(ctx, label, nt)
		if err == nil {
			idx.byName[strings.ToLower(label)] = node.ID
			return node.ID, true
		}
		if !errorsIsNotFound(err) {
			return "", false
		}
	}
	return "", false
}

func (e *Engine) singletonFor(label string) string {
	switch {
	case strings.EqualFold(label, e.cfg.CanonicalUser):
		return e.userID
	case strings.EqualFold(label, e.cfg.CanonicalAssistant):
		return e.assistantID
	}
	return ""
}
