package similarity

import (
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared. Comparisons never truncate or pad.
var ErrDimensionMismatch = errors.New("similarity: vector dimension mismatch")

// Match pairs a candidate's position in the input slice with its score.
type Match struct {
	Index int
	Score float64
}

// Score computes the cosine similarity between a and b in [-1, 1]. A zero
// vector has no direction, so if either magnitude is zero the score is 0.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank scores every candidate against query and returns the top limit
// matches in descending score order. Ties keep input order. An empty
// candidate set yields an empty result.
func Rank(query []float32, candidates [][]float32, limit int) ([]Match, error) {
	if limit < 1 || len(candidates) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(candidates))

	for i, candidate := range candidates {
		score, err := Score(query, candidate)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Index: i, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Threshold returns the matches scoring at least minScore, order preserved.
func Threshold(matches []Match, minScore float64) []Match {
	kept := make([]Match, 0, len(matches))

	for _, match := range matches {
		if match.Score >= minScore {
			kept = append(kept, match)
		}
	}

	return kept
}
