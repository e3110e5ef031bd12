package graph

import (
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
)

const recencyWindow = 30 * 24 * time.Hour

// classificationScore weighs one taxonomy link against its siblings.
// Count dominates, confidence refines, recency nudges: a frequently
// confirmed sense outweighs a recent one-off.
func classificationScore(link common.TaxonomyLink, maxCount int, now time.Time) float64 {
	countFactor := 0.0
	if maxCount > 0 {
		countFactor = float64(link.Count) / float64(maxCount)
	}

	recency := 1.0 - float64(now.Sub(link.LastSeen))/float64(recencyWindow)
	if recency < 0 {
		recency = 0
	}
	if recency > 1 {
		recency = 1
	}

	return 0.6*countFactor + 0.3*link.Confidence + 0.1*recency
}

// PrimaryClassification picks the dominant taxonomy link of one node.
// Ties break toward the higher count, then the lexicographically smaller
// category, so recomputation from identical inputs is deterministic.
func PrimaryClassification(links []common.TaxonomyLink, now time.Time) (common.TaxonomyLink, bool) {
	if len(links) == 0 {
		return common.TaxonomyLink{}, false
	}

	maxCount := 0
	for _, l := range links {
		if l.Count > maxCount {
			maxCount = l.Count
		}
	}

	best := links[0]
	bestScore := classificationScore(best, maxCount, now)
	for _, l := range links[1:] {
		score := classificationScore(l, maxCount, now)
		switch {
		case score > bestScore:
			best, bestScore = l, score
		case score == bestScore && l.Count > best.Count:
			best = l
		case score == bestScore && l.Count == best.Count && l.Category < best.Category:
			best = l
		}
	}
	return best, true
}
