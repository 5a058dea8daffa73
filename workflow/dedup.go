package workflow

import (
	"context"
	"strings"
)

// DedupCandidate is the comparable projection of a record or live entity.
type DedupCandidate struct {
	EntityID     string
	Psn          string
	FullName     string
	DateOfBirth  string
	Region       string
	Province     string
	Municipality string
	Barangay     string
}

// CandidateIndex exposes the continuously-growing set of persisted entities a
// new record must be compared against. Reads see the index as persisted so
// far; two near-simultaneous near-duplicates may both pass, which the nightly
// audit catches.
type CandidateIndex interface {
	Candidates(ctx context.Context, probe DedupCandidate) ([]DedupCandidate, error)
}

// MatchOutcome classifies a similarity score against the configured
// thresholds.
type MatchOutcome string

const (
	MatchOutcomeNone      MatchOutcome = "NO_MATCH"
	MatchOutcomeDuplicate MatchOutcome = "DUPLICATE"
	MatchOutcomeReview    MatchOutcome = "REVIEW_REQUIRED"
)

// MatchResult is the answer to a dedup probe.
type MatchResult struct {
	Outcome         MatchOutcome
	MatchedEntityID string
	SimilarityScore float64
}

// Similarity weights. Identifier match dominates; remaining weights are
// renormalized over the fields both sides actually carry.
const (
	weightPsn     = 0.40
	weightName    = 0.30
	weightDob     = 0.15
	weightAddress = 0.15
)

// DeduplicationEngine scores candidates with a weighted similarity and
// classifies the best score against the duplicate/review thresholds.
type DeduplicationEngine struct {
	index CandidateIndex
	cfg   PipelineConfig
}

func NewDeduplicationEngine(index CandidateIndex, cfg PipelineConfig) *DeduplicationEngine {
	return &DeduplicationEngine{index: index, cfg: cfg}
}

// FindMatch compares the probe against the index and returns the best match
// classification. An exact identifier match short-circuits to similarity 1.0
// regardless of other fields.
func (e *DeduplicationEngine) FindMatch(ctx context.Context, probe DedupCandidate) (MatchResult, error) {
	candidates, err := e.index.Candidates(ctx, probe)
	if err != nil {
		return MatchResult{}, err
	}

	best := MatchResult{Outcome: MatchOutcomeNone}
	for _, cand := range candidates {
		score := Similarity(probe, cand)
		if score > best.SimilarityScore {
			best.SimilarityScore = score
			best.MatchedEntityID = cand.EntityID
		}
	}

	switch {
	case best.SimilarityScore >= e.cfg.DuplicateThreshold:
		best.Outcome = MatchOutcomeDuplicate
	case best.SimilarityScore >= e.cfg.ReviewThreshold:
		best.Outcome = MatchOutcomeReview
	default:
		best.Outcome = MatchOutcomeNone
		best.MatchedEntityID = ""
	}
	return best, nil
}

// Similarity computes the weighted similarity of two candidates in [0,1].
func Similarity(a, b DedupCandidate) float64 {
	if a.Psn != "" && b.Psn != "" && a.Psn == b.Psn {
		return 1.0
	}

	var score, totalWeight float64

	if a.Psn != "" && b.Psn != "" {
		totalWeight += weightPsn
		// Differing identifiers contribute zero, they do not disqualify:
		// legacy sources carry transcription errors.
	}
	if a.FullName != "" && b.FullName != "" {
		totalWeight += weightName
		score += weightName * JaroWinkler(strings.ToLower(a.FullName), strings.ToLower(b.FullName))
	}
	if a.DateOfBirth != "" && b.DateOfBirth != "" {
		totalWeight += weightDob
		if a.DateOfBirth == b.DateOfBirth {
			score += weightDob
		}
	}
	if aAddr, bAddr := a.addressParts(), b.addressParts(); len(aAddr) > 0 && len(bAddr) > 0 {
		totalWeight += weightAddress
		score += weightAddress * addressOverlap(aAddr, bAddr)
	}

	if totalWeight == 0 {
		return 0
	}
	return score / totalWeight
}

func (c DedupCandidate) addressParts() []string {
	var parts []string
	for _, p := range []string{c.Region, c.Province, c.Municipality, c.Barangay} {
		if p != "" {
			parts = append(parts, strings.ToLower(p))
		}
	}
	return parts
}

func addressOverlap(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	matches := 0
	for _, p := range b {
		if _, ok := set[p]; ok {
			matches++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(matches) / float64(denom)
}

// JaroWinkler similarity between two strings in [0,1].
func JaroWinkler(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	len1, len2 := len(s1), len(s2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	matchDistance := max(len1, len2)/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	s1Matches := make([]bool, len1)
	s2Matches := make([]bool, len2)

	matches := 0
	for i := 0; i < len1; i++ {
		start := max(0, i-matchDistance)
		end := min(i+matchDistance+1, len2)
		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	jaro := (float64(matches)/float64(len1) +
		float64(matches)/float64(len2) +
		(float64(matches)-float64(transpositions)/2.0)/float64(matches)) / 3.0

	if jaro < 0.7 {
		return jaro
	}

	prefix := 0
	for i := 0; i < min(min(len1, len2), 4); i++ {
		if s1[i] != s2[i] {
			break
		}
		prefix++
	}
	return jaro + 0.1*float64(prefix)*(1.0-jaro)
}

// Levenshtein similarity in [0,1], used by the nightly audit where
// Jaro-Winkler's prefix boost is undesirable.
func LevenshteinSimilarity(s1, s2 string) float64 {
	maxLen := max(len(s1), len(s2))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(s1, s2))/float64(maxLen)
}

func levenshteinDistance(s1, s2 string) int {
	len1, len2 := len(s1), len(s2)
	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := 0; j <= len2; j++ {
		prev[j] = j
	}
	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(min(prev[j]+1, curr[j-1]+1), prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len2]
}
