package workflow

import (
	"context"
	"math"
	"testing"
)

type staticIndex struct {
	candidates []DedupCandidate
}

func (s *staticIndex) Candidates(ctx context.Context, probe DedupCandidate) ([]DedupCandidate, error) {
	return s.candidates, nil
}

func TestJaroWinkler(t *testing.T) {
	cases := []struct {
		s1, s2 string
		want   float64
	}{
		{"juan dela cruz", "juan dela cruz", 1.0},
		{"", "juan", 0.0},
		{"abc", "xyz", 0.0},
	}
	for _, tc := range cases {
		if got := JaroWinkler(tc.s1, tc.s2); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("JaroWinkler(%q, %q) = %v, want %v", tc.s1, tc.s2, got, tc.want)
		}
	}

	// Near-identical names must score high, clearly distinct names low.
	if got := JaroWinkler("maria santos", "maria santoss"); got < 0.9 {
		t.Errorf("near-identical names scored %v", got)
	}
	if got := JaroWinkler("maria santos", "pedro reyes"); got > 0.6 {
		t.Errorf("distinct names scored %v", got)
	}

	// Known reference values.
	if got := JaroWinkler("martha", "marhta"); math.Abs(got-0.9611) > 0.001 {
		t.Errorf("JaroWinkler(martha, marhta) = %v, want ~0.9611", got)
	}
	if got := JaroWinkler("dixon", "dicksonx"); math.Abs(got-0.8133) > 0.001 {
		t.Errorf("JaroWinkler(dixon, dicksonx) = %v, want ~0.8133", got)
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	if got := LevenshteinSimilarity("kitten", "sitting"); math.Abs(got-(1.0-3.0/7.0)) > 1e-9 {
		t.Errorf("LevenshteinSimilarity(kitten, sitting) = %v", got)
	}
	if got := LevenshteinSimilarity("", ""); got != 1.0 {
		t.Errorf("empty strings = %v, want 1.0", got)
	}
	if got := LevenshteinSimilarity("abc", ""); got != 0.0 {
		t.Errorf("one empty = %v, want 0.0", got)
	}
}

func TestSimilarityPsnShortCircuit(t *testing.T) {
	a := DedupCandidate{Psn: "1234-5678-9012", FullName: "Juan Dela Cruz"}
	b := DedupCandidate{Psn: "1234-5678-9012", FullName: "Completely Different Person"}
	if got := Similarity(a, b); got != 1.0 {
		t.Errorf("same PSN must score 1.0, got %v", got)
	}
}

func TestSimilarityRenormalizesOverAvailableFields(t *testing.T) {
	// Only names present on both sides: identical names must score 1.0 even
	// though the other factors are missing.
	a := DedupCandidate{FullName: "Juan Dela Cruz"}
	b := DedupCandidate{FullName: "Juan Dela Cruz"}
	if got := Similarity(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical single-field candidates scored %v, want 1.0", got)
	}

	// No comparable fields at all.
	if got := Similarity(DedupCandidate{}, DedupCandidate{}); got != 0.0 {
		t.Errorf("empty candidates scored %v, want 0.0", got)
	}
}

func TestSimilarityMismatchedPsnDoesNotDisqualify(t *testing.T) {
	a := DedupCandidate{Psn: "1111-1111-1111", FullName: "Juan Dela Cruz", DateOfBirth: "1990-05-15"}
	b := DedupCandidate{Psn: "2222-2222-2222", FullName: "Juan Dela Cruz", DateOfBirth: "1990-05-15"}
	got := Similarity(a, b)
	// name (0.30) + dob (0.15) over weights 0.40+0.30+0.15
	want := (0.30 + 0.15) / 0.85
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Similarity = %v, want %v", got, want)
	}
}

func TestFindMatchClassification(t *testing.T) {
	cfg := DefaultPipelineConfig()
	probe := DedupCandidate{FullName: "Maria Santos", DateOfBirth: "1985-01-01", Barangay: "Poblacion"}

	cases := []struct {
		name      string
		candidate DedupCandidate
		want      MatchOutcome
	}{
		{
			name:      "exact duplicate",
			candidate: DedupCandidate{EntityID: "hh-1", FullName: "Maria Santos", DateOfBirth: "1985-01-01", Barangay: "Poblacion"},
			want:      MatchOutcomeDuplicate,
		},
		{
			name:      "review band",
			candidate: DedupCandidate{EntityID: "hh-2", FullName: "Maria Santos", DateOfBirth: "1985-01-01", Barangay: "San Isidro"},
			want:      MatchOutcomeReview,
		},
		{
			name:      "no match",
			candidate: DedupCandidate{EntityID: "hh-3", FullName: "Pedro Reyes", DateOfBirth: "1960-12-31", Barangay: "Bagong Silang"},
			want:      MatchOutcomeNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewDeduplicationEngine(&staticIndex{candidates: []DedupCandidate{tc.candidate}}, cfg)
			result, err := engine.FindMatch(context.Background(), probe)
			if err != nil {
				t.Fatal(err)
			}
			if result.Outcome != tc.want {
				t.Errorf("outcome = %s (score %v), want %s", result.Outcome, result.SimilarityScore, tc.want)
			}
			if tc.want == MatchOutcomeNone && result.MatchedEntityID != "" {
				t.Errorf("no-match result still names entity %s", result.MatchedEntityID)
			}
			if tc.want != MatchOutcomeNone && result.MatchedEntityID != tc.candidate.EntityID {
				t.Errorf("matched entity = %s, want %s", result.MatchedEntityID, tc.candidate.EntityID)
			}
		})
	}
}

func TestFindMatchPicksBestCandidate(t *testing.T) {
	engine := NewDeduplicationEngine(&staticIndex{candidates: []DedupCandidate{
		{EntityID: "weak", FullName: "Marian Santos"},
		{EntityID: "strong", FullName: "Maria Santos"},
	}}, DefaultPipelineConfig())

	result, err := engine.FindMatch(context.Background(), DedupCandidate{FullName: "Maria Santos"})
	if err != nil {
		t.Fatal(err)
	}
	if result.MatchedEntityID != "strong" {
		t.Errorf("matched %s, want strong", result.MatchedEntityID)
	}
	if result.Outcome != MatchOutcomeDuplicate {
		t.Errorf("outcome = %s, want DUPLICATE", result.Outcome)
	}
}
