package resolver

import (
	"math"
	"strings"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/xrash/smetrics"
)

const (
	fuzzyThreshold = 0.7
	nearTie        = 0.05
	minContainment = 4
	tokenBonus     = 0.15
)

// PopularityScore weighs catalog popularity and follower count into [0, 1].
// Followers are log-scaled so that 100M followers saturates the term.
func PopularityScore(a models.CatalogArtist) float64 {
	followers := math.Min(1, math.Log10(float64(a.Followers)+1)/8)
	return 0.7*float64(a.Popularity)/100 + 0.3*followers
}

// Similarity scores two normalized names in [0, 1].
//
// The base is edit-distance similarity. Containment lifts the score to at least
// 0.6 plus a share proportional to how much of the longer name is covered, and
// multi-word queries earn a bonus for each shared word.
func Similarity(query, candidate string) float64 {
	if query == "" || candidate == "" {
		return 0
	}
	if query == candidate {
		return 1
	}

	longest := max(len(query), len(candidate))
	distance := smetrics.WagnerFischer(query, candidate, 1, 1, 1)
	score := 1 - float64(distance)/float64(longest)

	if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
		shorter := min(len(query), len(candidate))
		score = math.Max(score, 0.6+0.4*float64(shorter)/float64(longest))
	}

	qTokens := strings.Fields(query)
	if len(qTokens) > 1 {
		cTokens := make(map[string]struct{})
		for _, tok := range strings.Fields(candidate) {
			cTokens[tok] = struct{}{}
		}
		shared := 0
		for _, tok := range qTokens {
			if _, ok := cTokens[tok]; ok {
				shared++
			}
		}
		score += tokenBonus * float64(shared) / float64(len(qTokens))
	}

	return math.Max(0, math.Min(score, 1))
}

// containmentMatch reports whether one normalized name contains the other and
// the shorter one is long enough to be meaningful.
func containmentMatch(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len([]rune(shorter)) > len([]rune(longer)) {
		shorter, longer = longer, shorter
	}
	return len([]rune(shorter)) >= minContainment && strings.Contains(longer, shorter)
}
