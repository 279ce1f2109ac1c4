// Package budget maps spectral signals to the compression budgets that
// drive the context compiler, phrasebook and codemap stages.
package budget

import "github.com/ImMrLucky/spectyra/spectral"

// MaxStateCharsCap is the hard ceiling on the compiled state message size.
const MaxStateCharsCap = 4000

// Budgets is the per-request compression plan.
type Budgets struct {
	KeepLastTurns            int     // verbatim recent turns, >= 1
	MaxRefpackEntries        int     // >= 3
	MaxStateChars            int     // <= MaxStateCharsCap
	RetainToolLogs           bool    //
	StateCompressionLevel    float64 // [0,1]
	PhrasebookAggressiveness float64 // [0,1]
	CodemapDetailLevel       float64 // [0,1]
}

// Planner derives budgets from a spectral result and the caller's
// optimization level. Stateless.
type Planner struct{}

// NewPlanner returns a Planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan computes the budgets. The lambda2 override decides turn retention and
// state size; compression aggressiveness grows with stability and shrinks
// with novelty; the caller's optimization level pre-overrides the result.
func (p *Planner) Plan(res *spectral.Result, optimizationLevel int) Budgets {
	b := Budgets{
		KeepLastTurns:  4,
		MaxStateChars:  3200,
		RetainToolLogs: res.Lambda2 > 0.15,
	}
	if res.Lambda2 < 0.12 {
		b.KeepLastTurns = 2
		b.MaxStateChars = 1800
	}

	compression := clamp(0.4+0.6*res.StabilityIndex-0.4*res.Signals.NoveltyMean, 0.3, 1.0)
	b.StateCompressionLevel = compression
	b.PhrasebookAggressiveness = 0.9 * compression
	b.CodemapDetailLevel = clamp(1-0.4*res.StabilityIndex+0.3*res.ContradictionEnergy, 0.4, 1.0)
	b.MaxRefpackEntries = 3 + int(9*res.StabilityIndex)

	b = p.applyLevel(b, optimizationLevel)
	return b.normalize()
}

// applyLevel coarsens the budgets by the caller's optimization level 0-4.
// Level 0 disables compression pressure entirely; level 4 is maximal.
func (p *Planner) applyLevel(b Budgets, level int) Budgets {
	switch {
	case level <= 0:
		b.KeepLastTurns = max(b.KeepLastTurns, 6)
		b.MaxStateChars = MaxStateCharsCap
		b.StateCompressionLevel = 0.3
		b.PhrasebookAggressiveness = 0
		b.CodemapDetailLevel = 1.0
		b.RetainToolLogs = true
	case level == 1:
		b.KeepLastTurns = max(b.KeepLastTurns, 5)
		b.StateCompressionLevel = clamp(b.StateCompressionLevel, 0.3, 0.5)
	case level == 3:
		b.KeepLastTurns = min(b.KeepLastTurns, 3)
		b.StateCompressionLevel = clamp(b.StateCompressionLevel, 0.6, 1.0)
	case level >= 4:
		b.KeepLastTurns = 2
		b.MaxStateChars = min(b.MaxStateChars, 1800)
		b.StateCompressionLevel = 1.0
		b.PhrasebookAggressiveness = 0.9
	}
	return b
}

// normalize enforces the structural invariants on the final budgets.
func (b Budgets) normalize() Budgets {
	if b.KeepLastTurns < 1 {
		b.KeepLastTurns = 1
	}
	if b.MaxRefpackEntries < 3 {
		b.MaxRefpackEntries = 3
	}
	if b.MaxRefpackEntries > 12 {
		b.MaxRefpackEntries = 12
	}
	if b.MaxStateChars > MaxStateCharsCap {
		b.MaxStateChars = MaxStateCharsCap
	}
	if b.MaxStateChars < 1 {
		b.MaxStateChars = 1
	}
	b.StateCompressionLevel = clamp(b.StateCompressionLevel, 0, 1)
	b.PhrasebookAggressiveness = clamp(b.PhrasebookAggressiveness, 0, 1)
	b.CodemapDetailLevel = clamp(b.CodemapDetailLevel, 0, 1)
	return b
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
