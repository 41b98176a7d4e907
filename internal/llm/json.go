package llm

import "strings"

// ExtractJSON pulls a JSON object or array out of a model reply.
// LLMs sometimes wrap JSON in markdown code blocks or surround it with prose.
func ExtractJSON(response string) string {
	s := response
	if start := strings.Index(s, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			s = s[start : start+end]
		}
	} else if start := strings.Index(s, "```"); start != -1 {
		start += 3
		if end := strings.Index(s[start:], "```"); end != -1 {
			s = s[start : start+end]
		}
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	// Search for the first opening bracket and its last closing counterpart
	open := strings.IndexAny(s, "{[")
	if open == -1 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		return s[open : end+1]
	}
	return s
}
