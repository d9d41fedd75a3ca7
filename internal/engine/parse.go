package engine

import (
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object or array out of an LLM response.
// Models frequently wrap JSON in markdown code fences or prepend
// conversational filler. The extractor:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the outermost {...} or [...] span
//  3. Returns the raw JSON substring for the caller to unmarshal
func ExtractJSON(resp string) (string, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start, closer := objStart, "}"
	if start == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start == -1 {
		return "", fmt.Errorf("no JSON value in response")
	}

	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", fmt.Errorf("unterminated JSON value in response")
	}

	return s[start : end+1], nil
}
