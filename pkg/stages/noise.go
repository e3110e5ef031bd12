package stages

import (
	"encoding/json"
	"strings"
)

// isNoise reports whether a log entry carries no conversational content
// worth resolving: markup fragments, raw data blobs, or dumps of search
// results. Runs before the oracle call, so noise never costs a request.
func isNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	// Tag-only markup fragments.
	if strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") {
		return true
	}

	// Fenced code blocks pasted verbatim.
	if strings.HasPrefix(trimmed, "```") {
		return true
	}

	// Raw structured data.
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return true
		}
	}

	// Search-result dumps: mostly lines carrying URLs.
	lines := strings.Split(trimmed, "\n")
	if len(lines) >= 3 {
		urlLines := 0
		for _, line := range lines {
			if strings.Contains(line, "://") {
				urlLines++
			}
		}
		if urlLines*2 > len(lines) {
			return true
		}
	}

	return false
}
