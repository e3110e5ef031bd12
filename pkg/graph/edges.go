package graph

import (
	"context"
	"errors"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

// mergeEdge reconciles one candidate edge against the edges already
// persisted between the same endpoints: same relationship family merges,
// anything else creates. Returns false when an endpoint cannot be
// resolved to a node.
func (e *Engine) mergeEdge(ctx context.Context, cand common.CandidateEdge, endpoints *endpointIndex) (bool, error) {
	sourceID, ok := endpoints.resolve(ctx, cand.SourceLabel)
	if !ok {
		logger.Warn("[Merge] Dropping edge with unresolvable source",
			"source", cand.SourceLabel, "relation", cand.Relation)
		return false, nil
	}
	targetID, ok := endpoints.resolve(ctx, cand.TargetLabel)
	if !ok {
		logger.Warn("[Merge] Dropping edge with unresolvable target",
			"target", cand.TargetLabel, "relation", cand.Relation)
		return false, nil
	}
	if sourceID == targetID {
		return false, nil
	}

	existing, err := e.storage.EdgesBetween(ctx, sourceID, targetID)
	if err != nil {
		return false, err
	}

	if len(existing) == 0 {
		return true, e.createEdge(ctx, sourceID, targetID, cand)
	}

	target, err := e.decideEdgeMerge(ctx, cand, existing)
	if err != nil {
		return false, err
	}
	if target == nil {
		return true, e.createEdge(ctx, sourceID, targetID, cand)
	}
	return true, e.mergeIntoEdge(ctx, sourceID, targetID, target.ID, cand)
}

// decideEdgeMerge asks the oracle whether the candidate relation belongs
// to the family of one of the existing edges between the endpoints.
func (e *Engine) decideEdgeMerge(ctx context.Context, cand common.CandidateEdge, existing []common.Edge) (*common.Edge, error) {
	req := oracle.DecideMergeRequest{
		Candidate: oracle.MergeCandidate{
			Label:       cand.Relation,
			Type:        "Relationship",
			Description: cand.Descriptor,
			Sentence:    cand.Provenance.Sentence,
		},
	}
	for _, ed := range existing {
		req.Matches = append(req.Matches, oracle.MergeMatch{
			ID:          ed.ID,
			Label:       ed.Relation,
			Type:        "Relationship",
			Description: ed.Descriptor,
		})
	}

	var resp oracle.DecideMergeResponse
	if err := e.oracle.Judge(ctx, oracle.TaskDecideMerge, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Merge {
		return nil, nil
	}
	for i := range existing {
		if existing[i].ID == resp.MergeIntoID {
			return &existing[i], nil
		}
	}
	logger.Warn("[Merge] Oracle chose an edge outside the match set, creating instead",
		"relation", cand.Relation, "merge_into", resp.MergeIntoID)
	return nil, nil
}

func (e *Engine) createEdge(ctx context.Context, sourceID, targetID string, cand common.CandidateEdge) error {
	id, err := newID()
	if err != nil {
		return err
	}
	edge := common.Edge{
		ID:         id,
		SourceID:   sourceID,
		TargetID:   targetID,
		Relation:   cand.Relation,
		Descriptor: cand.Descriptor,
		Sentence:   cand.Provenance.Sentence,
		Confidence: cand.Confidence,
		Importance: cand.Importance,
		Provenance: cand.Provenance,
	}
	if err := e.storage.CreateEdge(ctx, edge); err != nil {
		return err
	}
	logger.Debug("[Merge] Edge created",
		"edge", id, "source", sourceID, "target", targetID, "relation", cand.Relation)
	return nil
}

// mergeIntoEdge folds the candidate into an existing edge, combining
// attributes through the same oracle task nodes use. Version conflicts
// re-read and retry; edges carry no per-edge lease because contention on
// a single edge is rare.
func (e *Engine) mergeIntoEdge(ctx context.Context, sourceID, targetID, edgeID string, cand common.CandidateEdge) error {
	for attempt := 0; attempt < e.cfg.MaxMergeRetries; attempt++ {
		existing, err := e.storage.EdgesBetween(ctx, sourceID, targetID)
		if err != nil {
			return err
		}
		var edge *common.Edge
		for i := range existing {
			if existing[i].ID == edgeID {
				edge = &existing[i]
				break
			}
		}
		if edge == nil {
			// Pruned or never committed; fall back to creating.
			return e.createEdge(ctx, sourceID, targetID, cand)
		}

		req := oracle.CombineRequest{
			Existing: oracle.NodeData{
				Label:       edge.Relation,
				Description: edge.Descriptor,
				Confidence:  edge.Confidence,
				Importance:  edge.Importance,
			},
			Incoming: oracle.NodeData{
				Label:       cand.Relation,
				Description: cand.Descriptor,
				Confidence:  cand.Confidence,
				Importance:  cand.Importance,
			},
		}
		var resp oracle.CombineResponse
		if err := e.oracle.Judge(ctx, oracle.TaskCombineData, req, &resp); err != nil {
			return err
		}

		updated := *edge
		if resp.Combined.Label != "" {
			updated.Relation = resp.Combined.Label
		}
		updated.Descriptor = resp.Combined.Description
		updated.Confidence = resp.Combined.Confidence
		updated.Importance = resp.Combined.Importance
		if cand.Provenance.Sentence != "" {
			updated.Sentence = cand.Provenance.Sentence
		}

		err = e.storage.UpdateEdge(ctx, updated, edge.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pipeline.ErrMergeConflict) {
			return err
		}
		logger.Warn("[Merge] Edge version conflict, re-reading",
			"edge", edgeID, "version", edge.Version, "attempt", attempt+1)
	}
	return pipeline.ErrMergeConflict
}
