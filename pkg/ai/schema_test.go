package ai

import (
	"testing"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type statement struct {
		Text      string `json:"text"`
		Rationale string `json:"rationale,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  statement
	}{
		{
			name:  "valid json object",
			input: `{"text":"Sam confirmed 3pm."}`,
			want:  statement{Text: "Sam confirmed 3pm."},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{text: 'Sam confirmed 3pm.'}`,
			want:  statement{Text: "Sam confirmed 3pm."},
		},
		{
			name:  "trailing comma",
			input: `{"text":"Sam confirmed 3pm.",}`,
			want:  statement{Text: "Sam confirmed 3pm."},
		},
		{
			name:  "missing endbracket",
			input: `{"text":"Sam confirmed 3pm.`,
			want:  statement{Text: "Sam confirmed 3pm."},
		},
		{
			name:  "stringified invalid json object",
			input: `"{text: 'Sam confirmed 3pm.'}"`,
			want:  statement{Text: "Sam confirmed 3pm."},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"text\": \"Sam confirmed 3pm.\"\n}\n",
			want:  statement{Text: "Sam confirmed 3pm."},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got statement
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Text != tc.want.Text || got.Rationale != tc.want.Rationale {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	type statement struct {
		Text string `json:"text"`
	}

	input := `[{text:'A'},{text:'B',}]`
	var got []statement
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Text != "A" || got[1].Text != "B" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two statements A,B", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	type statement struct {
		Text string `json:"text"`
	}

	var got statement
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestUnmarshalFlexible_DoubleEncoded(t *testing.T) {
	type candidate struct {
		Label   string   `json:"label"`
		Type    string   `json:"type"`
		Aliases []string `json:"aliases"`
	}

	input := `"{ \"label\": \"Sam\", \"type\": \"Entity\", \"aliases\": [ \"Samuel\" ] }"`
	var got candidate
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if got.Label != "Sam" || got.Type != "Entity" {
		t.Fatalf("UnmarshalFlexible() got = %+v", got)
	}
	if len(got.Aliases) != 1 || got.Aliases[0] != "Samuel" {
		t.Fatalf("UnmarshalFlexible() aliases = %v, want [Samuel]", got.Aliases)
	}
}
