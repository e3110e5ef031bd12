package pgx

import "testing"

func TestNewGraphDBStorageParamsDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero falls back", 0, 0.4},
		{"configured floor kept", 0.55, 0.55},
		{"negative falls back", -0.1, 0.4},
		{"out of range falls back", 1.2, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewGraphDBStorageParams{MinSimilarity: tt.in}
			p.withDefaults()
			if p.MinSimilarity != tt.want {
				t.Errorf("MinSimilarity = %v, want %v", p.MinSimilarity, tt.want)
			}
		})
	}
}

func TestEmbedText(t *testing.T) {
	got := embedText("Sam", []string{"Samuel", "Sammy"}, "Colleague of Dana")
	want := "Sam\nSamuel, Sammy\nColleague of Dana"
	if got != want {
		t.Errorf("embedText() = %q, want %q", got, want)
	}

	if got := embedText("Sam", nil, ""); got != "Sam" {
		t.Errorf("embedText() = %q, want just the label", got)
	}
}
