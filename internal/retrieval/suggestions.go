package retrieval

import (
	"encoding/json"
	"strings"
)

// MaxSuggestions caps the number of suggestions returned.
const MaxSuggestions = 3

// ParseSuggestions extracts suggestions from free-form model output. It
// prefers a JSON string array and falls back to one suggestion per line.
// It never fails; unusable input yields an empty slice.
func ParseSuggestions(raw string) []string {
	out, ok := parseJSONArray(raw)
	if !ok {
		out = parseLines(raw)
	}
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

func parseJSONArray(raw string) ([]string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = []string{}
	}
	return out, true
}

func parseLines(raw string) []string {
	out := []string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasSuffix(line, "]") {
			continue
		}
		line = strings.TrimSpace(strings.Trim(line, "-"))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
