package stages

import "testing"

func TestIsNoise(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "plain utterance",
			text: "I'm meeting Sam tomorrow.",
			want: false,
		},
		{
			name: "empty",
			text: "",
			want: true,
		},
		{
			name: "whitespace only",
			text: "   \n\t ",
			want: true,
		},
		{
			name: "markup fragment",
			text: "<div class=\"result\"><span>...</span></div>",
			want: true,
		},
		{
			name: "code fence",
			text: "```python\nprint('hi')\n```",
			want: true,
		},
		{
			name: "json blob",
			text: `{"results": [{"title": "foo"}]}`,
			want: true,
		},
		{
			name: "search result dump",
			text: "1. https://example.com/a\n2. https://example.com/b\n3. https://example.com/c",
			want: true,
		},
		{
			name: "utterance mentioning a url",
			text: "Check out https://example.com when you get a chance.",
			want: false,
		},
		{
			name: "bracketed aside is not json",
			text: "[sighs] fine, let's do it your way",
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isNoise(tc.text); got != tc.want {
				t.Fatalf("isNoise(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}
