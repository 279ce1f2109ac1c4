package spectral

import (
	"math"

	"github.com/ImMrLucky/spectyra/sgraph"
	"github.com/ImMrLucky/spectyra/unit"
)

// Recommendation is the suggested action after spectral analysis.
type Recommendation string

const (
	// Reuse means the conversation is coherent enough for aggressive compression.
	Reuse Recommendation = "REUSE"
	// Expand means moderate keeping; the conversation is still developing.
	Expand Recommendation = "EXPAND"
	// AskClarify short-circuits the pipeline with a clarification question.
	AskClarify Recommendation = "ASK_CLARIFY"
)

// Signals carries the internal operator outputs. These feed the budget
// planner and an operator-only debug blob; they are never placed in the
// customer-facing optimization report.
type Signals struct {
	RWGap          float64
	HeatComplexity float64
	CurvatureMin   float64
	CurvatureP10   float64
	CurvatureMean  float64
	NoveltyMean    float64
	Novelty        []float64
	Curvature      []float64
	Eigenvector    []float64
}

// Result is the outcome of analyzing one request's signed graph. Stable and
// Unstable are disjoint index sets that together cover every node.
type Result struct {
	NNodes              int
	NEdges              int
	Lambda2             float64
	ContradictionEnergy float64
	StabilityIndex      float64
	Recommendation      Recommendation
	Stable              []int
	Unstable            []int
	Signals             Signals
}

// History is optional rolling context from prior requests in the same
// conversation, used to adapt the recommendation thresholds.
type History struct {
	Stability     []float64
	Contradiction []float64
}

// Analyzer computes spectral results. Stateless; safe for concurrent use.
type Analyzer struct {
	// THigh and TLow are the base recommendation thresholds.
	THigh float64
	TLow  float64
}

// NewAnalyzer returns an Analyzer with the default thresholds.
func NewAnalyzer() *Analyzer {
	return &Analyzer{THigh: 0.70, TLow: 0.35}
}

// Analyze runs every spectral operator over the graph and combines them into
// a stability index and recommendation. CPU-bound; runs to completion.
func (a *Analyzer) Analyze(g *sgraph.Graph, units []unit.Unit, hist *History) *Result {
	n := g.N
	res := &Result{
		NNodes:         n,
		NEdges:         len(g.Edges),
		StabilityIndex: 0.5,
		Recommendation: Expand,
	}

	if n <= 1 || len(g.Edges) == 0 {
		// Degenerate graph: nothing to analyze, every node counts as stable.
		for i := 0; i < n; i++ {
			res.Stable = append(res.Stable, i)
		}
		res.Signals.Novelty = make([]float64, n)
		res.Signals.Curvature = make([]float64, n)
		res.Signals.Eigenvector = make([]float64, n)
		return res
	}

	w := g.Adjacency()
	l := newLaplacian(w)

	lambda2, eigvec := estimateLambda2(l)
	res.Lambda2 = lambda2

	neg, total := g.NegativeMass()
	if total > 0 {
		res.ContradictionEnergy = clamp01(neg / total)
	}

	rwGap := randomWalkGap(w)
	heat := heatTraceComplexity(l)
	curvature, curvMin, curvP10, curvMean := curvatureStats(w)
	novelty := nodeNovelty(units)
	noveltyMean := 0.0
	for _, x := range novelty {
		noveltyMean += x
	}
	noveltyMean /= float64(len(novelty))

	res.Signals = Signals{
		RWGap:          rwGap,
		HeatComplexity: heat,
		CurvatureMin:   curvMin,
		CurvatureP10:   curvP10,
		CurvatureMean:  curvMean,
		NoveltyMean:    noveltyMean,
		Novelty:        novelty,
		Curvature:      curvature,
		Eigenvector:    eigvec,
	}

	res.StabilityIndex = stabilityIndex(lambda2, rwGap, res.ContradictionEnergy, noveltyMean, curvMean)
	res.Recommendation = a.recommend(res, hist)
	res.Stable, res.Unstable = classifyNodes(w, curvature, novelty, eigvec)

	return res
}

// stabilityIndex passes the component signals through a logistic with tuned
// weights: higher lambda2 and walk gap push stability up, contradiction and
// novelty push it down, strongly negative mean curvature drags it down.
func stabilityIndex(lambda2, rwGap, contradiction, novelty, curvMean float64) float64 {
	lam := clamp01(lambda2 / 0.5)
	curv := clamp(curvMean, -3, 1)
	score := 2.2*lam + 1.8*rwGap - 2.6*contradiction - 1.4*novelty + 0.5*curv
	return clamp01(1 / (1 + math.Exp(-(score - 0.6))))
}

// recommend applies the thresholded decision with adaptive margins from
// rolling history.
func (a *Analyzer) recommend(res *Result, hist *History) Recommendation {
	tHigh, tLow := a.THigh, a.TLow
	if hist != nil {
		if avg := mean(hist.Stability); len(hist.Stability) > 0 && avg < 0.5 {
			tHigh += 0.05
			tLow += 0.05
		}
		if trendingUp(hist.Contradiction) {
			tHigh += 0.05
		}
	}

	switch {
	case res.StabilityIndex <= tLow,
		res.ContradictionEnergy > 0.3,
		res.Signals.CurvatureMin < -3:
		return AskClarify
	case res.StabilityIndex >= tHigh:
		return Reuse
	default:
		return Expand
	}
}

// classifyNodes partitions node indices into stable and unstable sets.
// A node with any strong negative tie, repeated negative adjacency, deeply
// negative curvature, high novelty, or a dominant eigenvector entry is
// unstable; only nodes clean on every signal are stable; the ambiguous
// middle defaults to unstable.
func classifyNodes(w [][]float64, curvature, novelty, eigvec []float64) (stable, unstable []int) {
	n := len(w)
	for i := 0; i < n; i++ {
		strongNeg := false
		negCount := 0
		for j := 0; j < n; j++ {
			if w[i][j] < 0 {
				negCount++
				if w[i][j] < -0.5 {
					strongNeg = true
				}
			}
		}

		ev := 0.0
		if i < len(eigvec) {
			ev = math.Abs(eigvec[i])
		}

		switch {
		case strongNeg, negCount >= 2, curvature[i] < -2, novelty[i] > 0.7, ev > 0.4:
			unstable = append(unstable, i)
		case !strongNeg && novelty[i] < 0.4 && curvature[i] > -1 && ev < 0.3:
			stable = append(stable, i)
		default:
			unstable = append(unstable, i)
		}
	}
	return stable, unstable
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// trendingUp reports whether the back half of the series averages higher
// than the front half.
func trendingUp(xs []float64) bool {
	if len(xs) < 2 {
		return false
	}
	mid := len(xs) / 2
	return mean(xs[mid:]) > mean(xs[:mid])+1e-9
}
