package pipeline

import (
	"github.com/ImMrLucky/spectyra/ledger"
	"github.com/ImMrLucky/spectyra/message"
)

// Mode selects between an untouched baseline call and the optimized
// pipeline.
type Mode string

const (
	ModeBaseline  Mode = "baseline"
	ModeOptimized Mode = "optimized"
)

// Request is one inbound optimization request.
type Request struct {
	Path              message.Path      `json:"path"`
	Provider          string            `json:"provider"`
	Model             string            `json:"model"`
	Messages          []message.Message `json:"messages"`
	Mode              Mode              `json:"mode"`
	OptimizationLevel int               `json:"optimization_level"`
	ConversationID    string            `json:"conversation_id,omitempty"`
	DryRun            bool              `json:"dry_run,omitempty"`
	QualityChecks     []string          `json:"quality_checks,omitempty"`
	MaxOutputTokens   int               `json:"max_output_tokens,omitempty"`
}

// UsageReport is the token usage attached to a response. Estimated is true
// when the provider did not report usage and the chars/4 estimator filled
// it in.
type UsageReport struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Estimated    bool `json:"estimated"`
}

// SavingsReport summarizes what the optimization saved.
type SavingsReport struct {
	TokensSaved    int                `json:"tokens_saved"`
	PctSaved       float64            `json:"pct_saved"`
	CostSavedUSD   float64            `json:"cost_saved_usd"`
	ConfidenceBand string             `json:"confidence_band"`
	SavingsType    ledger.SavingsType `json:"savings_type"`
}

// Confidence bands for the savings report.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Response is the public result of one request.
type Response struct {
	RunID              string             `json:"run_id"`
	Mode               Mode               `json:"mode"`
	Path               message.Path       `json:"path"`
	Provider           string             `json:"provider"`
	Model              string             `json:"model"`
	ResponseText       string             `json:"response_text"`
	Usage              UsageReport        `json:"usage"`
	CostUSD            float64            `json:"cost_usd"`
	Savings            SavingsReport      `json:"savings"`
	Report             OptimizationReport `json:"optimization_report"`
	BaselineEstimate   *int               `json:"baseline_estimate,omitempty"`
	OptimizedEstimate  *int               `json:"optimized_estimate,omitempty"`
	ExplanationSummary string             `json:"explanation_summary,omitempty"`
	QualityFailures    []string           `json:"quality_failures,omitempty"`

	// Messages is the final prompt that was (or would be) sent upstream.
	// Exposed for dry runs and tests; not part of the public JSON body.
	Messages []message.Message `json:"-"`

	// Debug holds the internal operator signals. Populated only when the
	// optimizer was built with debug signals enabled; never part of the
	// customer-facing report.
	Debug *DebugSignals `json:"-"`
}

func (r Request) normalized() (Request, error) {
	if !r.Path.Valid() {
		return r, ErrInvalidInput
	}
	// An empty message list is valid: it flows through as an empty graph
	// with recommendation EXPAND and the prompt passes upstream unchanged.
	if r.Provider == "" || r.Model == "" {
		return r, ErrInvalidInput
	}
	for _, m := range r.Messages {
		if !m.Role.Valid() {
			return r, ErrInvalidInput
		}
	}
	if r.Mode == "" {
		r.Mode = ModeOptimized
	}
	if r.Mode != ModeBaseline && r.Mode != ModeOptimized {
		return r, ErrInvalidInput
	}
	if r.OptimizationLevel < 0 {
		r.OptimizationLevel = 0
	}
	if r.OptimizationLevel > 4 {
		r.OptimizationLevel = 4
	}
	return r, nil
}
