package pipeline

import (
	"fmt"
	"strings"

	"github.com/ImMrLucky/spectyra/spectral"
)

// LayerReport records which optimization layers touched the prompt.
type LayerReport struct {
	Refpack         bool `json:"refpack"`
	Phrasebook      bool `json:"phrasebook"`
	Codemap         bool `json:"codemap"`
	SemanticCache   bool `json:"semantic_cache"`
	CacheHit        bool `json:"cache_hit"`
	ContextCompiler bool `json:"context_compiler"`
	ProfitGated     bool `json:"profit_gated"`
}

// TokenReport records the estimated token movement of the optimization.
type TokenReport struct {
	Estimated   bool    `json:"estimated"`
	InputBefore int     `json:"input_before"`
	InputAfter  int     `json:"input_after"`
	Saved       int     `json:"saved"`
	PctSaved    float64 `json:"pct_saved"`
}

// SpectralReport is the customer-safe subset of the spectral result.
// Internal operator signals never appear here.
type SpectralReport struct {
	NNodes         int     `json:"nNodes"`
	NEdges         int     `json:"nEdges"`
	StabilityIndex float64 `json:"stabilityIndex"`
	Lambda2        float64 `json:"lambda2"`
}

// OptimizationReport is the customer-safe per-request report.
type OptimizationReport struct {
	Layers   LayerReport    `json:"layers"`
	Tokens   TokenReport    `json:"tokens"`
	Reverted bool           `json:"reverted,omitempty"`
	Spectral SpectralReport `json:"spectral"`
}

// DebugSignals is the operator-only debug blob: the internal spectral
// signals plus node classification counts. Stored and exposed behind a
// separate gate, never in the public report.
type DebugSignals struct {
	RWGap          float64 `json:"rw_gap"`
	HeatComplexity float64 `json:"heat_complexity"`
	CurvatureMin   float64 `json:"curvature_min"`
	CurvatureP10   float64 `json:"curvature_p10"`
	CurvatureMean  float64 `json:"curvature_mean"`
	NoveltyMean    float64 `json:"novelty_mean"`
	StableNodes    int     `json:"stable_nodes"`
	UnstableNodes  int     `json:"unstable_nodes"`
	Recommendation string  `json:"recommendation"`
}

func debugFrom(res *spectral.Result) *DebugSignals {
	return &DebugSignals{
		RWGap:          res.Signals.RWGap,
		HeatComplexity: res.Signals.HeatComplexity,
		CurvatureMin:   res.Signals.CurvatureMin,
		CurvatureP10:   res.Signals.CurvatureP10,
		CurvatureMean:  res.Signals.CurvatureMean,
		NoveltyMean:    res.Signals.NoveltyMean,
		StableNodes:    len(res.Stable),
		UnstableNodes:  len(res.Unstable),
		Recommendation: string(res.Recommendation),
	}
}

func spectralReport(res *spectral.Result) SpectralReport {
	return SpectralReport{
		NNodes:         res.NNodes,
		NEdges:         res.NEdges,
		StabilityIndex: res.StabilityIndex,
		Lambda2:        res.Lambda2,
	}
}

func tokenReport(before, after int) TokenReport {
	tr := TokenReport{
		Estimated:   true,
		InputBefore: before,
		InputAfter:  after,
	}
	if after < before {
		tr.Saved = before - after
	}
	if before > 0 && tr.Saved > 0 {
		tr.PctSaved = float64(tr.Saved) / float64(before) * 100
	}
	return tr
}

// explain builds the customer-safe one-line summary of what happened.
func explain(rep OptimizationReport) string {
	var applied []string
	if rep.Layers.ContextCompiler {
		applied = append(applied, "context compiler")
	}
	if rep.Layers.Refpack {
		applied = append(applied, "reference pack")
	}
	if rep.Layers.Phrasebook {
		applied = append(applied, "phrasebook")
	}
	if rep.Layers.Codemap {
		applied = append(applied, "code map")
	}
	if rep.Layers.CacheHit {
		return "served from semantic cache"
	}
	if rep.Reverted {
		return "optimization reverted; baseline prompt sent"
	}
	if len(applied) == 0 {
		return "no optimization layers applied"
	}
	return fmt.Sprintf("applied %s, saved %.1f%% of input tokens",
		strings.Join(applied, ", "), rep.Tokens.PctSaved)
}
