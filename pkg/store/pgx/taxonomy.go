package pgx

import (
	"context"
	"fmt"

	"github.com/chronicler-ai/chronicler/pkg/common"
)

// UpsertTaxonomyLink records one classification event. A new (node,
// category) pair starts at count 1; an existing one increments its count
// and refreshes last_seen instead of duplicating the row.
func (s *GraphDBStorage) UpsertTaxonomyLink(ctx context.Context, link common.TaxonomyLink) error {
	if _, err := s.db.Exec(ctx, upsertTaxonomyLinkSQL, link.NodeID, link.Category, link.Confidence); err != nil {
		return fmt.Errorf("upsert taxonomy link: %w", err)
	}
	return nil
}

// TaxonomyLinks lists all classification links of one node, ordered by
// category for deterministic iteration.
func (s *GraphDBStorage) TaxonomyLinks(ctx context.Context, nodeID string) ([]common.TaxonomyLink, error) {
	rows, err := s.db.Query(ctx, taxonomyLinksSQL, nodeID)
	if err != nil {
		return nil, fmt.Errorf("taxonomy links: %w", err)
	}
	defer rows.Close()

	var links []common.TaxonomyLink
	for rows.Next() {
		var l common.TaxonomyLink
		if err := rows.Scan(&l.NodeID, &l.Category, &l.Count, &l.Confidence, &l.LastSeen); err != nil {
			return nil, fmt.Errorf("scan taxonomy link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taxonomy rows: %w", err)
	}
	return links, nil
}
