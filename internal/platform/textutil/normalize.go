package textutil

import (
	"regexp"
	"strings"
)

// NormalizationResult carries the canonical forms derived from a raw name.
// Normalized is idempotent: normalizing an already-normalized string yields
// the same string.
type NormalizationResult struct {
	Original   string
	Cleaned    string
	Normalized string
	Hiragana   string
	Katakana   string
	HalfWidth  string
	FullWidth  string
}

const decorativeSymbols = "〇●※◯○▲△▼▽■□◆◇★☆"

var (
	bracketPattern    = regexp.MustCompile(`（[^）]*）|\([^)]*\)`)
	whitespacePattern = regexp.MustCompile(`[\s\x{3000}]+`)
)

// Normalize derives all canonical forms of a raw name. Empty input yields a
// zero result with every field empty.
func Normalize(name string) NormalizationResult {
	if name == "" {
		return NormalizationResult{}
	}
	cleaned := CleanName(name)
	return NormalizationResult{
		Original:   name,
		Cleaned:    cleaned,
		Normalized: ToHalfWidth(cleaned),
		Hiragana:   KatakanaToHiragana(cleaned),
		Katakana:   HiraganaToKatakana(cleaned),
		HalfWidth:  ToHalfWidth(name),
		FullWidth:  ToFullWidth(name),
	}
}

// CleanName strips a single leading decorative symbol, removes the first
// bracketed substring (full-width or ASCII parentheses), collapses runs of
// whitespace including the ideographic space into one ASCII space, and trims
// the ends. Only the first bracket group is removed; nested or repeated
// groups survive a single pass.
func CleanName(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if strings.ContainsRune(decorativeSymbols, runes[0]) {
		runes = runes[1:]
	}
	cleaned := string(runes)
	if loc := bracketPattern.FindStringIndex(cleaned); loc != nil {
		cleaned = cleaned[:loc[0]] + cleaned[loc[1]:]
	}
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// ToHalfWidth shifts full-width Latin letters, digits, and ASCII punctuation
// (U+FF01..U+FF5E) down to their ASCII equivalents. Hiragana, katakana, and
// kanji pass through unchanged.
func ToHalfWidth(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0xFF01 && r <= 0xFF5E {
			return r - 0xFEE0
		}
		return r
	}, s)
}

// ToFullWidth shifts printable ASCII (U+0021..U+007E) up to the full-width
// block; the inverse of ToHalfWidth.
func ToFullWidth(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x21 && r <= 0x7E {
			return r + 0xFEE0
		}
		return r
	}, s)
}

// HiraganaToKatakana shifts code points in the hiragana block
// (U+3041..U+3096) up into katakana; everything else is unchanged.
func HiraganaToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x3041 && r <= 0x3096 {
			return r + 0x60
		}
		return r
	}, s)
}

// KatakanaToHiragana shifts code points in the katakana block
// (U+30A1..U+30F6) down into hiragana; everything else is unchanged.
func KatakanaToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x30A1 && r <= 0x30F6 {
			return r - 0x60
		}
		return r
	}, s)
}
