package textutil

import "testing"

func TestSimilarityIdentity(t *testing.T) {
	for _, input := range []string{"田中太郎", "佐藤", "タナカ", "abc"} {
		if got := Similarity(input, input); got != 1.0 {
			t.Fatalf("expected similarity 1.0 for %q, got %f", input, got)
		}
	}
}

func TestSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"田中太郎", "田中太朗"},
		{"佐藤花子", "佐藤華子"},
		{"たなか", "タナカ"},
		{"", "田中"},
	}
	for _, pair := range pairs {
		ab := Similarity(pair[0], pair[1])
		ba := Similarity(pair[1], pair[0])
		if ab != ba {
			t.Fatalf("similarity not symmetric for %q/%q: %f != %f", pair[0], pair[1], ab, ba)
		}
	}
}

func TestSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"田中太郎", "鈴木一郎"},
		{"あ", "ん"},
		{"", ""},
		{"long name with many characters", "x"},
	}
	for _, pair := range pairs {
		got := Similarity(pair[0], pair[1])
		if got < 0 || got > 1 {
			t.Fatalf("similarity out of bounds for %q/%q: %f", pair[0], pair[1], got)
		}
	}
}

func TestSimilarityEmptyInputs(t *testing.T) {
	if got := Similarity("", ""); got != 0 {
		t.Fatalf("expected 0 for both empty, got %f", got)
	}
	if got := Similarity("田中", ""); got != 0 {
		t.Fatalf("expected 0 for one empty, got %f", got)
	}
}

func TestSimilarityNormalizedEqualityShortCircuits(t *testing.T) {
	if got := Similarity("〇田中　太郎（仮名）", "田中 太郎"); got != 1.0 {
		t.Fatalf("expected 1.0 for normalized-equal names, got %f", got)
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	if got := LevenshteinSimilarity("", ""); got != 0 {
		t.Fatalf("expected 0 for both empty, got %f", got)
	}
	if got := LevenshteinSimilarity("田中太郎", "田中太郎"); got != 1.0 {
		t.Fatalf("expected 1.0 for equal strings, got %f", got)
	}
	// One substitution across four runes.
	if got := LevenshteinSimilarity("田中太郎", "田中太朗"); got != 0.75 {
		t.Fatalf("expected 0.75, got %f", got)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if got := JaccardSimilarity("", ""); got != 0 {
		t.Fatalf("expected 0 for both empty, got %f", got)
	}
	// Sets {田,中} and {田,川}: intersection 1, union 3.
	got := JaccardSimilarity("田中", "田川")
	want := 1.0 / 3.0
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestPhoneticSimilarityBridgesKanaScripts(t *testing.T) {
	if got := PhoneticSimilarity("たなか", "タナカ"); got != 1.0 {
		t.Fatalf("expected identical readings to score 1.0, got %f", got)
	}
}
