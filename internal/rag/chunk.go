package rag

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Chunk splits text into windows of at most size runes, each overlapping the
// previous one by overlap runes. Whitespace is collapsed first, and a window
// ends at the last space in its final fifth when there is one.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.Join(strings.Fields(text), " "))
	n := len(runes)
	var chunks []string

	for start := 0; start < n; {
		end := min(start+size, n)
		if end < n {
			for i := end; i > end-size/5 && i > start; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == n {
			break
		}

		next := end - overlap
		for next > start && next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
