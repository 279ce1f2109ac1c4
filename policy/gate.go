// Package policy holds the path-specific trimming policies, the per-step
// profit gates, and the final size guard. Every transform in the pipeline
// is wrapped by a gate so an accepted step can never grow the prompt.
package policy

import "github.com/ImMrLucky/spectyra/message"

// Gate is the per-step acceptance test: a transform's output is used only
// if it saves at least MinPct percent and MinAbs estimated tokens.
type Gate struct {
	MinPct float64
	MinAbs int
}

// GateFor returns the profit gate thresholds for a path: 3%/40 tokens for
// talk, 2%/60 for code.
func GateFor(path message.Path) Gate {
	if path == message.PathCode {
		return Gate{MinPct: 0.02, MinAbs: 60}
	}
	return Gate{MinPct: 0.03, MinAbs: 40}
}

// Accept reports whether the after sequence clears the gate against before.
func (g Gate) Accept(before, after []message.Message) bool {
	b := message.EstimateMessageTokens(before)
	a := message.EstimateMessageTokens(after)
	if a > b {
		return false
	}
	saved := b - a
	if saved < g.MinAbs {
		return false
	}
	if b == 0 {
		return false
	}
	return float64(saved)/float64(b) >= g.MinPct
}

// Apply runs transform and keeps its output only if the gate accepts it.
// Returns the chosen sequence and whether the step was kept.
func (g Gate) Apply(before []message.Message, transform func([]message.Message) []message.Message) ([]message.Message, bool) {
	after := transform(before)
	if g.Accept(before, after) {
		return after, true
	}
	return before, false
}

// SizeGuard compares the candidate prompt against the baseline and reverts
// when the candidate is larger. Returns the prompt to use and whether a
// revert happened.
func SizeGuard(baseline, candidate []message.Message) ([]message.Message, bool) {
	if message.EstimateMessageTokens(candidate) > message.EstimateMessageTokens(baseline) {
		return baseline, true
	}
	return candidate, false
}
