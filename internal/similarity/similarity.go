// Package similarity provides cosine similarity and fan-out-capped pair
// ranking over decoded embedding vectors.
package similarity

import "math"

// Cosine computes the cosine similarity between two float32 vectors.
// Returns a value between -1 and 1 where 1 means identical direction, or
// 0 for absent or mismatched-length inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dotProduct += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}

// Node is a candidate for pair ranking: an id, a type tag the threshold
// function dispatches on, and a decoded vector.
type Node struct {
	ID   string
	Type string
	Vec  []float32
}

// Pair is an accepted pair with its similarity score.
type Pair struct {
	A, B  Node
	Score float64
}

// ThresholdFunc returns the minimum similarity for a pair of node types.
// Returning ok=false skips the pair entirely.
type ThresholdFunc func(typeA, typeB string) (threshold float64, ok bool)

// RankPairs enumerates unordered node pairs, keeps those whose cosine
// similarity meets the threshold for their type combination, and caps
// accepted pairs per node at maxPerNode as it scans. Comparison is
// O(n²); callers bound the input window rather than relying on this to
// scale.
func RankPairs(nodes []Node, threshold ThresholdFunc, maxPerNode int) []Pair {
	if maxPerNode <= 0 {
		maxPerNode = 5
	}

	var pairs []Pair
	accepted := make(map[string]int, len(nodes))

	for i := 0; i < len(nodes); i++ {
		a := nodes[i]
		if len(a.Vec) == 0 || accepted[a.ID] >= maxPerNode {
			continue
		}
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j]
			if len(b.Vec) == 0 {
				continue
			}
			if accepted[a.ID] >= maxPerNode {
				break
			}
			if accepted[b.ID] >= maxPerNode {
				continue
			}

			min, ok := threshold(a.Type, b.Type)
			if !ok {
				continue
			}
			score := Cosine(a.Vec, b.Vec)
			if score < min {
				continue
			}

			pairs = append(pairs, Pair{A: a, B: b, Score: score})
			accepted[a.ID]++
			accepted[b.ID]++
		}
	}
	return pairs
}
