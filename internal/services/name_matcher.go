package services

import (
	"sort"
	"strings"

	"github.com/kaigo-note/api/internal/platform/textutil"
)

const (
	// DefaultMatchThreshold is the score at or above which two names are
	// considered the same entity.
	DefaultMatchThreshold = 0.8

	highConfidenceFloor   = 0.9
	mediumConfidenceFloor = 0.7
)

// NameMatcher applies a threshold and tie-break policy over the similarity
// scorer. It is stateless and safe for concurrent use.
type NameMatcher struct {
	threshold float64
}

// NewNameMatcher constructs a matcher; non-positive thresholds fall back to
// the default.
func NewNameMatcher(threshold float64) *NameMatcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &NameMatcher{threshold: threshold}
}

// Threshold reports the configured decision threshold.
func (m *NameMatcher) Threshold() float64 {
	return m.threshold
}

// Match compares two raw names and reports the combined score, the decision,
// and the individual signals. Two empty inputs yield a zero result.
func (m *NameMatcher) Match(a, b string) MatchResult {
	if a == "" && b == "" {
		return MatchResult{Confidence: MatchConfidenceLow, MatchType: MatchTypePartial}
	}

	na := textutil.Normalize(a)
	nb := textutil.Normalize(b)

	details := MatchDetails{
		ExactMatch:          a == b,
		NormalizedMatch:     na.Normalized == nb.Normalized,
		PhoneticMatch:       na.Hiragana == nb.Hiragana || na.Katakana == nb.Katakana,
		LevenshteinDistance: textutil.LevenshteinDistance(na.Normalized, nb.Normalized),
		JaccardSimilarity:   textutil.JaccardSimilarity(na.Normalized, nb.Normalized),
	}
	details.PartialMatch = na.Normalized != "" && nb.Normalized != "" &&
		(strings.Contains(na.Normalized, nb.Normalized) || strings.Contains(nb.Normalized, na.Normalized))

	score := textutil.Similarity(a, b)

	return MatchResult{
		Score:      score,
		IsMatch:    score >= m.threshold,
		Confidence: confidenceForScore(score),
		MatchType:  matchTypeForDetails(details),
		Details:    details,
	}
}

// FindBestMatch returns the highest-scoring candidate that clears the
// threshold. Ties keep the first-seen candidate. The boolean is false when
// no candidate matches.
func (m *NameMatcher) FindBestMatch(target string, candidates []string) (RankedCandidate, bool) {
	var best RankedCandidate
	found := false
	for _, candidate := range candidates {
		result := m.Match(target, candidate)
		if !result.IsMatch {
			continue
		}
		if !found || result.Score > best.Result.Score {
			best = RankedCandidate{Name: candidate, Result: result}
			found = true
		}
	}
	return best, found
}

// RankCandidates scores the target against every candidate and returns those
// at or above minScore, sorted by descending score. The filter uses the raw
// score, not the match decision, so near-misses surface for manual review.
func (m *NameMatcher) RankCandidates(target string, candidates []string, minScore float64) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		result := m.Match(target, candidate)
		if result.Score >= minScore {
			ranked = append(ranked, RankedCandidate{Name: candidate, Result: result})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Score > ranked[j].Result.Score
	})
	return ranked
}

func confidenceForScore(score float64) MatchConfidence {
	switch {
	case score >= highConfidenceFloor:
		return MatchConfidenceHigh
	case score >= mediumConfidenceFloor:
		return MatchConfidenceMedium
	default:
		return MatchConfidenceLow
	}
}

func matchTypeForDetails(details MatchDetails) MatchType {
	switch {
	case details.ExactMatch:
		return MatchTypeExact
	case details.NormalizedMatch:
		return MatchTypeNormalized
	case details.PhoneticMatch:
		return MatchTypePhonetic
	default:
		return MatchTypePartial
	}
}
