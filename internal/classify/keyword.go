package classify

import (
	"context"
	"strings"
	"unicode"

	"github.com/owulveryck/nexushealth/internal/tool"
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a about above after again all am an and any are as at be because been
		before being below between both but by can could did do does doing down during each few for from
		further had has have having he her here hers him his how i if in into is it its itself just me
		more most my no nor not now of off on once only or other our out over own same she should so some
		such than that the their them then there these they this those through to too under until up very
		was we were what when where which while who whom why will with would you your yours
		also please tell find know want need get like
		use tool task related input clear specific question agent`) {
		stopwords[stem(w)] = true
	}
}

// Keyword scores each candidate by how many distinct query terms appear in
// its name or description. It never errors on a non-empty candidate list.
type Keyword struct{}

func (Keyword) Classify(_ context.Context, query string, candidates []tool.Descriptor) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	return Best(query, candidates), nil
}

// Best returns the highest scoring candidate, the first one on ties. With
// no overlap at all it returns the first candidate.
func Best(query string, candidates []tool.Descriptor) string {
	q := terms(query)
	bestName, bestScore := candidates[0].Name, -1
	for _, c := range candidates {
		vocab := map[string]bool{}
		for t := range terms(c.Name + " " + c.Description) {
			vocab[t] = true
		}
		score := 0
		for t := range q {
			if vocab[t] {
				score++
			}
		}
		if score > bestScore {
			bestName, bestScore = c.Name, score
		}
	}
	return bestName
}

// terms returns the distinct stemmed non-stopword tokens of s.
func terms(s string) map[string]bool {
	out := map[string]bool{}
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		t := stem(w)
		if len(t) < 2 || stopwords[t] {
			continue
		}
		out[t] = true
	}
	return out
}

// stem is a small suffix stripper: enough to match "covered", "coverage"
// and "covers" to "cover", not a full Porter stemmer.
func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		w = w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"):
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		w = w[:len(w)-1]
	}
	for _, suffix := range []string{"ing", "ed", "ation", "ment", "age", "ly"} {
		if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 3 {
			w = w[:len(w)-len(suffix)]
			break
		}
	}
	if strings.HasSuffix(w, "e") && len(w) > 3 {
		w = w[:len(w)-1]
	}
	return w
}
