package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/leaselock"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/store"
)

func newID() (string, error) {
	return gonanoid.New()
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// mergeNode reconciles one candidate node. Returns the persisted node's
// identifier and whether the candidate merged into an existing node.
func (e *Engine) mergeNode(ctx context.Context, cand common.CandidateNode) (string, bool, error) {
	// Singleton pre-check: candidates denoting the user or the assistant
	// merge unconditionally, bypassing lookup and the merge decision.
	if id := e.singletonFor(cand.Label); id != "" {
		if err := e.mergeInto(ctx, id, cand); err != nil {
			return "", false, err
		}
		return id, true, nil
	}

	matches, err := e.lookupMatches(ctx, cand)
	if err != nil {
		return "", false, err
	}

	if len(matches) == 0 {
		id, err := e.createNode(ctx, cand)
		return id, false, err
	}

	targetID, err := e.decideMerge(ctx, cand, matches)
	if err != nil {
		return "", false, err
	}
	if targetID == "" {
		id, err := e.createNode(ctx, cand)
		return id, false, err
	}

	if err := e.mergeInto(ctx, targetID, cand); err != nil {
		return "", false, err
	}
	return targetID, true, nil
}

// lookupMatches finds existing nodes the candidate may denote: an exact
// label/alias hit plus the closest embedding matches of the same type.
func (e *Engine) lookupMatches(ctx context.Context, cand common.CandidateNode) ([]common.Node, error) {
	var matches []common.Node
	seen := map[string]bool{}

	exact, err := e.storage.GetNodeByLabel(ctx, cand.Label, cand.Type)
	if err == nil {
		matches = append(matches, exact)
		seen[exact.ID] = true
	} else if !errorsIsNotFound(err) {
		return nil, err
	}

	similar, err := e.storage.FindSimilarNodes(ctx,
		cand.Label+"\n"+cand.Description, cand.Type, e.cfg.SimilarityTopK)
	if err != nil {
		return nil, err
	}
	for _, n := range similar {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		matches = append(matches, n)
	}

	// The singletons never participate in fuzzy matching.
	filtered := matches[:0]
	for _, n := range matches {
		if n.ID == e.userID || n.ID == e.assistantID {
			continue
		}
		filtered = append(filtered, n)
	}
	return filtered, nil
}

// decideMerge asks the oracle whether the candidate denotes one of the
// matches. Returns the chosen node's identifier, or "" for create-new.
func (e *Engine) decideMerge(ctx context.Context, cand common.CandidateNode, matches []common.Node) (string, error) {
	req := oracle.DecideMergeRequest{
		Candidate: oracle.MergeCandidate{
			Label:       cand.Label,
			Type:        string(cand.Type),
			Description: cand.Description,
			Aliases:     cand.Aliases,
			Sentence:    cand.Provenance.Sentence,
		},
	}
	for _, m := range matches {
		neighborhood, err := e.neighborhoodStrings(ctx, m.ID)
		if err != nil {
			return "", err
		}
		req.Matches = append(req.Matches, oracle.MergeMatch{
			ID:           m.ID,
			Label:        m.Label,
			Type:         string(m.Type),
			Description:  m.Description,
			Aliases:      m.Aliases,
			Neighborhood: neighborhood,
		})
	}

	var resp oracle.DecideMergeResponse
	if err := e.oracle.Judge(ctx, oracle.TaskDecideMerge, req, &resp); err != nil {
		return "", err
	}
	if !resp.Merge {
		return "", nil
	}
	for _, m := range matches {
		if m.ID == resp.MergeIntoID {
			return m.ID, nil
		}
	}
	logger.Warn("[Merge] Oracle chose a node outside the match set, creating instead",
		"label", cand.Label, "merge_into", resp.MergeIntoID)
	return "", nil
}

// neighborhoodStrings renders a node's surroundings as one line per edge
// for oracle context.
func (e *Engine) neighborhoodStrings(ctx context.Context, nodeID string) ([]string, error) {
	neighbors, err := e.storage.Neighborhood(ctx, nodeID, e.cfg.NeighborhoodDepth)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(neighbors))
	for _, nb := range neighbors {
		lines = append(lines, fmt.Sprintf("%s -[%s]-> %s", nb.SourceLabel, nb.Edge.Relation, nb.TargetLabel))
	}
	return lines, nil
}

func (e *Engine) createNode(ctx context.Context, cand common.CandidateNode) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	node := common.Node{
		ID:          id,
		Label:       cand.Label,
		Type:        cand.Type,
		Aliases:     store.DedupeStrings(cand.Aliases),
		Description: cand.Description,
		ValidFrom:   cand.ValidFrom,
		ValidUntil:  cand.ValidUntil,
		Recurrence:  cand.Recurrence,
		Confidence:  cand.Confidence,
		Importance:  cand.Importance,
		Provenance:  cand.Provenance,
	}
	if err := e.storage.CreateNode(ctx, node); err != nil {
		return "", err
	}
	if err := e.classify(ctx, id, cand); err != nil {
		return "", err
	}
	logger.Debug("[Merge] Node created", "node", id, "label", cand.Label, "type", cand.Type)
	return id, nil
}

// mergeInto folds the candidate into an existing node under the node's
// lease. The read-combine-write cycle retries on version conflict so two
// workers merging into the same node serialize instead of losing data.
func (e *Engine) mergeInto(ctx context.Context, nodeID string, cand common.CandidateNode) error {
	opts := leaselock.Options{TTL: e.cfg.LeaseTTL, Wait: true}
	err := e.locks.WithLease(ctx, leaselock.NodeKey(nodeID), opts, func(ctx context.Context) error {
		for attempt := 0; attempt < e.cfg.MaxMergeRetries; attempt++ {
			node, err := e.storage.GetNode(ctx, nodeID)
			if err != nil {
				return err
			}

			combined, err := e.combine(ctx, node, cand)
			if err != nil {
				return err
			}

			err = e.storage.UpdateNode(ctx, combined, node.Version)
			if err == nil {
				return nil
			}
			if !errors.Is(err, pipeline.ErrMergeConflict) {
				return err
			}
			logger.Warn("[Merge] Version conflict, re-reading",
				"node", nodeID, "version", node.Version, "attempt", attempt+1)
		}
		return fmt.Errorf("node %s: retries exhausted: %w", nodeID, pipeline.ErrMergeConflict)
	})
	if err != nil {
		return err
	}
	return e.classify(ctx, nodeID, cand)
}

// combine reconciles the existing node's attributes with the candidate's
// through the data combination task, then applies the parts the oracle
// does not own: alias union, validity bounds, provenance.
func (e *Engine) combine(ctx context.Context, node common.Node, cand common.CandidateNode) (common.Node, error) {
	req := oracle.CombineRequest{
		Existing: oracle.NodeData{
			Label:       node.Label,
			Description: node.Description,
			Aliases:     node.Aliases,
			Recurrence:  node.Recurrence,
			Confidence:  node.Confidence,
			Importance:  node.Importance,
		},
		Incoming: oracle.NodeData{
			Label:       cand.Label,
			Description: cand.Description,
			Aliases:     cand.Aliases,
			Recurrence:  cand.Recurrence,
			Confidence:  cand.Confidence,
			Importance:  cand.Importance,
		},
	}
	var resp oracle.CombineResponse
	if err := e.oracle.Judge(ctx, oracle.TaskCombineData, req, &resp); err != nil {
		return common.Node{}, err
	}

	combined := resp.Combined
	if combined.Label == "" {
		combined.Label = node.Label
	}

	node.Label = combined.Label
	node.Description = combined.Description
	node.Recurrence = combined.Recurrence
	node.Confidence = combined.Confidence
	node.Importance = combined.Importance

	aliases := append(node.Aliases, combined.Aliases...)
	aliases = append(aliases, cand.Label)
	node.Aliases = store.DedupeStrings(aliases)

	// A validity bound the candidate states with more confidence replaces
	// the stored one; the oracle never sees timestamps.
	if cand.ValidFrom.Confidence > node.ValidFrom.Confidence {
		node.ValidFrom = cand.ValidFrom
	}
	if cand.ValidUntil.Confidence > node.ValidUntil.Confidence {
		node.ValidUntil = cand.ValidUntil
	}

	return node, nil
}

// classify records one classification event for the node and recomputes
// its primary classification. Candidates without a suggested category are
// classified by the oracle against the configured taxonomy; with no
// taxonomy either, classification is skipped.
func (e *Engine) classify(ctx context.Context, nodeID string, cand common.CandidateNode) error {
	category := cand.Category
	confidence := cand.Confidence

	if category == "" {
		if len(e.cfg.TaxonomyCategories) == 0 {
			return nil
		}
		req := oracle.ClassifyRequest{
			Label:       cand.Label,
			Type:        string(cand.Type),
			Description: cand.Description,
			Categories:  e.cfg.TaxonomyCategories,
		}
		var resp oracle.ClassifyResponse
		if err := e.oracle.Judge(ctx, oracle.TaskClassifyNode, req, &resp); err != nil {
			return err
		}
		if resp.Category == "" {
			return nil
		}
		category = resp.Category
		confidence = resp.Confidence
	}

	err := e.storage.UpsertTaxonomyLink(ctx, common.TaxonomyLink{
		NodeID:     nodeID,
		Category:   category,
		Confidence: confidence,
	})
	if err != nil {
		return err
	}

	links, err := e.storage.TaxonomyLinks(ctx, nodeID)
	if err != nil {
		return err
	}
	primary, ok := PrimaryClassification(links, time.Now())
	if !ok {
		return nil
	}
	return e.storage.SetSemanticLabel(ctx, nodeID, primary.Category)
}
