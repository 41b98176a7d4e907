package doctor

import (
	"regexp"
	"sort"
	"strings"
)

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI",
	"south carolina": "SC", "south dakota": "SD", "tennessee": "TN", "texas": "TX",
	"utah": "UT", "vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var (
	stateCodes   = map[string]bool{}
	namePattern  *regexp.Regexp
	codePattern  = regexp.MustCompile(`\b[A-Z]{2}\b`)
	placePattern = regexp.MustCompile(`\b(?i:in|near|from|around|within)\s+([A-Z]{2})\b`)
	lonePattern  = regexp.MustCompile(`^\s*([A-Za-z]{2})\s*[.?!]?\s*$`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func init() {
	names := make([]string, 0, len(stateNames))
	for name, code := range stateNames {
		stateCodes[code] = true
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so "west virginia" wins over "virginia".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	namePattern = regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
}

// ExtractState finds a US state in free text. Full state names are matched
// case-insensitively; two-letter codes must be uppercase unless they are the
// whole request, so words like "in" or "me" are not taken for states. A code
// after "in" or "near" wins over one elsewhere in the text.
func ExtractState(text string) (string, bool) {
	if m := lonePattern.FindStringSubmatch(text); m != nil {
		code := strings.ToUpper(m[1])
		if stateCodes[code] {
			return code, true
		}
	}

	if m := namePattern.FindString(text); m != "" {
		return stateNames[strings.ToLower(spacePattern.ReplaceAllString(m, " "))], true
	}

	for _, m := range placePattern.FindAllStringSubmatch(text, -1) {
		if stateCodes[m[1]] {
			return m[1], true
		}
	}

	for _, m := range codePattern.FindAllString(text, -1) {
		if stateCodes[m] && !commonWords[m] {
			return m, true
		}
	}
	return "", false
}

// commonWords are state codes that are also everyday words. They count only
// after a place preposition, as in "doctors in OK".
var commonWords = map[string]bool{"OK": true, "HI": true, "OH": true, "OR": true, "IN": true, "ME": true}
