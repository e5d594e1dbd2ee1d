package textutil

import (
	"github.com/agnivade/levenshtein"
)

// Similarity weights for the combined score. Edit distance dominates, with
// character overlap and the phonetic reading splitting the remainder.
const (
	levenshteinWeight = 0.4
	jaccardWeight     = 0.3
	phoneticWeight    = 0.3
)

// LevenshteinDistance returns the edit distance between two strings counted
// in runes, with unit cost for insertion, deletion, and substitution.
func LevenshteinDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// LevenshteinSimilarity converts edit distance into a [0,1] similarity,
// 1 - distance/maxLen. Two empty strings score 0.
func LevenshteinSimilarity(a, b string) float64 {
	maxLen := runeLen(a)
	if l := runeLen(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}

// JaccardSimilarity treats each string as the set of its runes and returns
// |intersection| / |union|. Two empty strings score 0.
func JaccardSimilarity(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// PhoneticSimilarity compares the hiragana readings of the raw inputs,
// independent of the main normalized comparison.
func PhoneticSimilarity(a, b string) float64 {
	return LevenshteinSimilarity(KatakanaToHiragana(a), KatakanaToHiragana(b))
}

// Similarity combines the edit-distance, set-overlap, and phonetic metrics
// into a single [0,1] score. Equal normalized forms short-circuit to 1.0;
// any empty input scores 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	na := Normalize(a).Normalized
	nb := Normalize(b).Normalized
	if na == nb {
		return 1.0
	}
	return levenshteinWeight*LevenshteinSimilarity(na, nb) +
		jaccardWeight*JaccardSimilarity(na, nb) +
		phoneticWeight*PhoneticSimilarity(a, b)
}

func runeLen(s string) int {
	return len([]rune(s))
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}
