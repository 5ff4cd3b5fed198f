package catalog

import (
	"sort"
	"strings"
)

// MatchThreshold is the minimum header-overlap score for a kind suggestion.
const MatchThreshold = 0.5

// KindMatch pairs a kind with how well a set of column headers fits its schema.
type KindMatch struct {
	Kind  Kind    `json:"kind"`
	Score float64 `json:"score"`
}

// MatchHeaders scores uploaded column headers against every registered kind
// and returns all matches at or above MatchThreshold, best first.
// The score is the fraction of the kind's schema fields present among the
// headers, compared case-insensitively.
func MatchHeaders(headers []string) []KindMatch {
	headerSet := make(map[string]bool, len(headers))
	for _, h := range headers {
		headerSet[strings.ToLower(strings.TrimSpace(h))] = true
	}

	var matches []KindMatch
	for _, def := range All() {
		score := matchScore(headerSet, def)
		if score >= MatchThreshold {
			matches = append(matches, KindMatch{Kind: def.Key, Score: score})
		}
	}

	// Stable keeps the registry's key order for equal scores.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// BestMatch returns the best-scoring kind for the headers, or ok=false when
// no kind clears the threshold.
func BestMatch(headers []string) (Kind, bool) {
	matches := MatchHeaders(headers)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Kind, true
}

func matchScore(headerSet map[string]bool, def Definition) float64 {
	if len(def.Fields) == 0 {
		return 0
	}
	matched := 0
	for _, f := range def.Fields {
		if headerSet[strings.ToLower(f.Name)] {
			matched++
		}
	}
	return float64(matched) / float64(len(def.Fields))
}
