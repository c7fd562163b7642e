package similarity

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	t.Run("identical direction is 1", func(t *testing.T) {
		got := Cosine([]float32{1, 2, 3}, []float32{2, 4, 6})
		if math.Abs(got-1) > 1e-9 {
			t.Fatalf("expected 1, got %v", got)
		}
	})

	t.Run("orthogonal vectors are 0", func(t *testing.T) {
		if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
	})

	t.Run("opposite direction is -1", func(t *testing.T) {
		got := Cosine([]float32{1, 0}, []float32{-1, 0})
		if math.Abs(got+1) > 1e-9 {
			t.Fatalf("expected -1, got %v", got)
		}
	})

	t.Run("absent or mismatched input is 0", func(t *testing.T) {
		if got := Cosine(nil, []float32{1}); got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
		if got := Cosine([]float32{1, 2}, []float32{1}); got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
	})

	t.Run("zero vector is 0", func(t *testing.T) {
		if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
	})
}

func TestRankPairs(t *testing.T) {
	anyPair := func(a, b string) (float64, bool) { return 0.5, true }

	t.Run("keeps pairs meeting the threshold", func(t *testing.T) {
		nodes := []Node{
			{ID: "a", Vec: []float32{1, 0}},
			{ID: "b", Vec: []float32{1, 0.1}},
			{ID: "c", Vec: []float32{0, 1}},
		}
		pairs := RankPairs(nodes, anyPair, 10)
		for _, p := range pairs {
			if p.Score < 0.5 {
				t.Fatalf("pair (%s,%s) below threshold: %v", p.A.ID, p.B.ID, p.Score)
			}
		}
		if len(pairs) != 1 {
			t.Fatalf("expected only the a-b pair, got %d pairs", len(pairs))
		}
	})

	t.Run("dispatches threshold on node types", func(t *testing.T) {
		nodes := []Node{
			{ID: "a", Type: "x", Vec: []float32{1, 0.2}},
			{ID: "b", Type: "y", Vec: []float32{1, 0}},
		}
		skipCross := func(ta, tb string) (float64, bool) { return 0, ta == tb }
		if pairs := RankPairs(nodes, skipCross, 10); len(pairs) != 0 {
			t.Fatalf("expected cross-type pair skipped, got %d", len(pairs))
		}
	})

	t.Run("caps accepted pairs per node", func(t *testing.T) {
		nodes := []Node{
			{ID: "hub", Vec: []float32{1, 0}},
			{ID: "s1", Vec: []float32{1, 0.01}},
			{ID: "s2", Vec: []float32{1, 0.02}},
			{ID: "s3", Vec: []float32{1, 0.03}},
		}
		pairs := RankPairs(nodes, anyPair, 2)
		counts := make(map[string]int)
		for _, p := range pairs {
			counts[p.A.ID]++
			counts[p.B.ID]++
		}
		for id, n := range counts {
			if n > 2 {
				t.Fatalf("node %s accepted %d pairs, cap is 2", id, n)
			}
		}
	})

	t.Run("skips nodes without vectors", func(t *testing.T) {
		nodes := []Node{
			{ID: "a", Vec: []float32{1, 0}},
			{ID: "b"},
		}
		if pairs := RankPairs(nodes, anyPair, 10); len(pairs) != 0 {
			t.Fatalf("expected no pairs, got %d", len(pairs))
		}
	})
}
