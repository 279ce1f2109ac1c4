package spectral

import (
	"testing"

	"github.com/ImMrLucky/spectyra/sgraph"
	"github.com/ImMrLucky/spectyra/unit"
)

func fixedUnits(n int) []unit.Unit {
	units := make([]unit.Unit, n)
	for i := range units {
		units[i] = unit.Unit{Text: "unit", Embedding: []float32{1, 0, 0}}
	}
	return units
}

func TestAnalyzeDegenerate(t *testing.T) {
	a := NewAnalyzer()

	res := a.Analyze(&sgraph.Graph{N: 0}, nil, nil)
	if res.StabilityIndex != 0.5 || res.Recommendation != Expand {
		t.Errorf("Empty graph should give stability 0.5 and EXPAND, got %f %s",
			res.StabilityIndex, res.Recommendation)
	}

	res = a.Analyze(&sgraph.Graph{N: 3}, fixedUnits(3), nil)
	if res.Recommendation != Expand {
		t.Errorf("Edgeless graph should give EXPAND, got %s", res.Recommendation)
	}
	if len(res.Stable) != 3 || len(res.Unstable) != 0 {
		t.Errorf("Edgeless graph counts every node stable, got %d/%d",
			len(res.Stable), len(res.Unstable))
	}
}

func TestAnalyzeClassificationCoversAllNodes(t *testing.T) {
	a := NewAnalyzer()
	g := &sgraph.Graph{N: 4, Edges: []sgraph.Edge{
		{I: 0, J: 1, Weight: 1.0, Type: sgraph.EdgeSimilarity},
		{I: 1, J: 2, Weight: 0.9, Type: sgraph.EdgeSimilarity},
		{I: 2, J: 3, Weight: -0.8, Type: sgraph.EdgeContradiction},
		{I: 0, J: 3, Weight: 0.6, Type: sgraph.EdgeSimilarity},
	}}
	res := a.Analyze(g, fixedUnits(4), nil)

	seen := make(map[int]int)
	for _, i := range res.Stable {
		seen[i]++
	}
	for _, i := range res.Unstable {
		seen[i]++
	}
	if len(seen) != 4 {
		t.Fatalf("Every node must be classified, saw %d of 4", len(seen))
	}
	for i, n := range seen {
		if n != 1 {
			t.Errorf("Node %d appears %d times; stable and unstable must be disjoint", i, n)
		}
	}
}

func TestAnalyzeContradictionEnergyBounds(t *testing.T) {
	a := NewAnalyzer()
	g := &sgraph.Graph{N: 3, Edges: []sgraph.Edge{
		{I: 0, J: 1, Weight: 1.0, Type: sgraph.EdgeSimilarity},
		{I: 1, J: 2, Weight: -1.0, Type: sgraph.EdgeContradiction},
	}}
	res := a.Analyze(g, fixedUnits(3), nil)
	if res.ContradictionEnergy < 0 || res.ContradictionEnergy > 1 {
		t.Errorf("Contradiction energy out of [0,1]: %f", res.ContradictionEnergy)
	}
	if res.ContradictionEnergy != 0.5 {
		t.Errorf("Expected energy 0.5 for balanced mass, got %f", res.ContradictionEnergy)
	}
	if res.Lambda2 < 0 {
		t.Errorf("lambda2 must be non-negative, got %f", res.Lambda2)
	}
}

func TestRecommendAskClarifyOnHighContradiction(t *testing.T) {
	a := NewAnalyzer()
	res := &Result{StabilityIndex: 0.6, ContradictionEnergy: 0.4}
	if got := a.recommend(res, nil); got != AskClarify {
		t.Errorf("Contradiction energy above 0.3 must trigger ASK_CLARIFY, got %s", got)
	}
}

func TestRecommendThresholds(t *testing.T) {
	a := NewAnalyzer()
	cases := []struct {
		stability float64
		want      Recommendation
	}{
		{0.80, Reuse},
		{0.70, Reuse},
		{0.50, Expand},
		{0.35, AskClarify},
		{0.10, AskClarify},
	}
	for _, tc := range cases {
		res := &Result{StabilityIndex: tc.stability}
		if got := a.recommend(res, nil); got != tc.want {
			t.Errorf("Stability %.2f: expected %s, got %s", tc.stability, tc.want, got)
		}
	}
}

func TestRecommendAdaptiveHistory(t *testing.T) {
	a := NewAnalyzer()
	res := &Result{StabilityIndex: 0.72}
	if got := a.recommend(res, nil); got != Reuse {
		t.Fatalf("Expected REUSE without history, got %s", got)
	}
	// Rough history raises the REUSE bar by 0.05.
	hist := &History{Stability: []float64{0.3, 0.4, 0.35}}
	if got := a.recommend(res, hist); got != Expand {
		t.Errorf("Low-stability history should hold back REUSE, got %s", got)
	}
}

func TestStabilityIndexMonotonicity(t *testing.T) {
	clean := stabilityIndex(0.4, 0.6, 0.0, 0.1, 0.5)
	conflicted := stabilityIndex(0.4, 0.6, 0.8, 0.1, 0.5)
	if conflicted >= clean {
		t.Errorf("More contradiction must lower stability: %f vs %f", conflicted, clean)
	}
	novel := stabilityIndex(0.4, 0.6, 0.0, 0.9, 0.5)
	if novel >= clean {
		t.Errorf("More novelty must lower stability: %f vs %f", novel, clean)
	}
	if clean < 0 || clean > 1 {
		t.Errorf("Stability index out of [0,1]: %f", clean)
	}
}

func TestTrendingUp(t *testing.T) {
	if !trendingUp([]float64{0.1, 0.1, 0.4, 0.5}) {
		t.Error("Rising series should trend up")
	}
	if trendingUp([]float64{0.5, 0.4, 0.1, 0.1}) {
		t.Error("Falling series should not trend up")
	}
	if trendingUp([]float64{0.5}) {
		t.Error("Single sample cannot trend")
	}
}
