package graph

import (
	"testing"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
)

func link(category string, count int, confidence float64, lastSeen time.Time) common.TaxonomyLink {
	return common.TaxonomyLink{
		NodeID:     "n1",
		Category:   category,
		Count:      count,
		Confidence: confidence,
		LastSeen:   lastSeen,
	}
}

func TestPrimaryClassification(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		links []common.TaxonomyLink
		want  string
	}{
		{
			name: "dominant count wins over recent one-off",
			links: []common.TaxonomyLink{
				link("health/appointment", 10, 0.8, now.Add(-5*24*time.Hour)),
				link("leisure/event", 1, 0.9, now),
			},
			want: "health/appointment",
		},
		{
			name: "confidence breaks equal counts",
			links: []common.TaxonomyLink{
				link("work/meeting", 3, 0.9, now),
				link("social/meetup", 3, 0.4, now),
			},
			want: "work/meeting",
		},
		{
			name: "recency decays to zero past thirty days",
			links: []common.TaxonomyLink{
				link("stale", 2, 0.5, now.Add(-90*24*time.Hour)),
				link("fresh", 2, 0.5, now),
			},
			want: "fresh",
		},
		{
			name: "exact tie resolves to smaller category",
			links: []common.TaxonomyLink{
				link("beta", 2, 0.5, now),
				link("alpha", 2, 0.5, now),
			},
			want: "alpha",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PrimaryClassification(tc.links, now)
			if !ok {
				t.Fatal("expected a primary classification")
			}
			if got.Category != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got.Category)
			}
		})
	}
}

func TestPrimaryClassificationEmpty(t *testing.T) {
	if _, ok := PrimaryClassification(nil, time.Now()); ok {
		t.Error("expected no primary classification for empty links")
	}
}

func TestPrimaryClassificationDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	links := []common.TaxonomyLink{
		link("b", 4, 0.6, now.Add(-2*24*time.Hour)),
		link("a", 4, 0.6, now.Add(-2*24*time.Hour)),
		link("c", 1, 0.9, now),
	}

	first, _ := PrimaryClassification(links, now)
	for i := 0; i < 10; i++ {
		again, _ := PrimaryClassification(links, now)
		if again.Category != first.Category {
			t.Fatalf("classification not deterministic: %q vs %q", first.Category, again.Category)
		}
	}
	if first.Category != "a" {
		t.Errorf("expected tie to resolve to %q, got %q", "a", first.Category)
	}
}
