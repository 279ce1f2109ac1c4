// Package pipeline orchestrates the optimizer: state carry, unitization,
// embedding, spectral analysis, budget planning, the gated transform chain,
// the final size guard, semantic caching, the provider call, and the
// quality-guarded retry. One request runs strictly sequentially; requests
// run concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ImMrLucky/spectyra/budget"
	"github.com/ImMrLucky/spectyra/cache"
	"github.com/ImMrLucky/spectyra/codemap"
	"github.com/ImMrLucky/spectyra/compile"
	"github.com/ImMrLucky/spectyra/encode"
	"github.com/ImMrLucky/spectyra/ledger"
	"github.com/ImMrLucky/spectyra/log"
	"github.com/ImMrLucky/spectyra/message"
	"github.com/ImMrLucky/spectyra/policy"
	"github.com/ImMrLucky/spectyra/provider"
	"github.com/ImMrLucky/spectyra/sgraph"
	"github.com/ImMrLucky/spectyra/spectral"
	"github.com/ImMrLucky/spectyra/state"
	"github.com/ImMrLucky/spectyra/unit"
)

// Options wires the optimizer's collaborators. Provider is required for
// non-dry runs; Cache, State and Ledger default to in-memory backends;
// Logger defaults to the package logger.
type Options struct {
	Provider provider.Provider
	Embedder provider.Embedder
	Cache    cache.Store
	State    state.Store
	Ledger   ledger.Writer
	Logger   log.Logger

	// MaxNodes caps the unit/graph size. Nil means the default of 50; a
	// pointer to zero disables unitization (and with it every transform).
	MaxNodes          *int
	SimilarityEdgeMin float64

	CacheTTL        time.Duration
	StateTTL        time.Duration
	EmbedTimeout    time.Duration
	ProviderTimeout time.Duration
	AuxTimeout      time.Duration

	// DebugSignals gates the operator-only signals blob on responses.
	DebugSignals bool
}

// Optimizer is the request-time optimization pipeline. Safe for concurrent
// use; all per-request data is request-owned.
type Optimizer struct {
	opts     Options
	logger   log.Logger
	unitizer *unit.Unitizer
	builder  *sgraph.Builder
	analyzer *spectral.Analyzer
	planner  *budget.Planner
	compiler *compile.Compiler
	maxNodes int
}

// New creates an Optimizer from options.
func New(opts Options) *Optimizer {
	maxNodes := 50
	if opts.MaxNodes != nil {
		maxNodes = *opts.MaxNodes
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryStore()
	}
	if opts.State == nil {
		opts.State = state.NewMemoryStore()
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewMemoryWriter()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = state.DefaultTTL
	}
	if opts.AuxTimeout <= 0 {
		opts.AuxTimeout = 2 * time.Second
	}

	return &Optimizer{
		opts:     opts,
		logger:   logger,
		unitizer: unit.NewUnitizer(unit.Options{MaxUnits: maxNodes}),
		builder: sgraph.NewBuilder(sgraph.Options{
			MaxNodes:          maxNodes,
			SimilarityEdgeMin: opts.SimilarityEdgeMin,
		}),
		analyzer: spectral.NewAnalyzer(),
		planner:  budget.NewPlanner(),
		compiler: compile.NewCompiler(),
		maxNodes: maxNodes,
	}
}

// Close releases the auxiliary stores.
func (o *Optimizer) Close() {
	if err := o.opts.Cache.Close(); err != nil {
		o.logger.Warn("cache close failed: %v", err)
	}
	if err := o.opts.State.Close(); err != nil {
		o.logger.Warn("state store close failed: %v", err)
	}
	if err := o.opts.Ledger.Close(); err != nil {
		o.logger.Warn("ledger close failed: %v", err)
	}
}

// Run executes one request through the pipeline.
func (o *Optimizer) Run(ctx context.Context, req Request) (*Response, error) {
	req, err := req.normalized()
	if err != nil {
		return nil, err
	}
	guard, err := newQualityGuard(req.QualityChecks)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	baseline := req.Messages
	baselineTokens := message.EstimateMessageTokens(baseline)

	if req.Mode == ModeBaseline {
		return o.runBaseline(ctx, req, runID, baselineTokens)
	}

	// STATE-CARRY: prepend the prior compiled state and last turn.
	working := message.Clone(req.Messages)
	if req.ConversationID != "" {
		if prior, ok := o.loadState(ctx, req.ConversationID); ok {
			carried := make([]message.Message, 0, len(working)+1+len(prior.LastTurn))
			carried = append(carried, prior.StateMsg)
			carried = append(carried, prior.LastTurn...)
			carried = append(carried, working...)
			working = carried
		}
	}

	// The carried state stands in for history the client no longer resends,
	// so the size guard and the savings math compare against the post-carry
	// working set, not the raw request.
	baseline = working
	baselineTokens = message.EstimateMessageTokens(working)

	// Boundary: a zero node cap means no units and no transforms.
	if o.maxNodes == 0 {
		return o.runPassthrough(ctx, req, runID, working, baselineTokens, guard)
	}

	// UNITIZE + EMBED + GRAPH + SPECTRAL.
	units := o.unitizer.Unitize(req.Path, working, len(working)-1)
	if err := o.embedUnits(ctx, units); err != nil {
		return nil, err
	}
	g, units := o.builder.Build(req.Path, units)
	res := o.analyzer.Analyze(g, units, nil)
	applyStabilityScores(units, res)

	// ASK_CLARIFY short-circuits before any provider spend.
	if res.Recommendation == spectral.AskClarify {
		return o.runClarify(ctx, req, runID, g, units, res, baselineTokens)
	}

	budgets := o.planner.Plan(res, req.OptimizationLevel)

	candidate, layers, outcome := o.transform(req, working, budgets, false)
	final, reverted := policy.SizeGuard(baseline, candidate)
	if reverted {
		layers = LayerReport{ProfitGated: layers.ProfitGated}
	}
	if err := checkStateInvariant(final, layers); err != nil {
		o.logger.Error("state message invariant violated: %v", err)
		return nil, err
	}
	optTokens := message.EstimateMessageTokens(final)

	rep := OptimizationReport{
		Layers:   layers,
		Tokens:   tokenReport(baselineTokens, optTokens),
		Reverted: reverted,
		Spectral: spectralReport(res),
	}

	resp := &Response{
		RunID:    runID,
		Mode:     req.Mode,
		Path:     req.Path,
		Provider: req.Provider,
		Model:    req.Model,
		Report:   rep,
		Messages: final,
	}
	resp.BaselineEstimate = intPtr(baselineTokens)
	resp.OptimizedEstimate = intPtr(optTokens)
	if o.opts.DebugSignals {
		resp.Debug = debugFrom(res)
	}

	// CACHE-LOOKUP.
	cacheKey := cache.BuildKey(units, res.Stable, req.Model, req.Path, res.StabilityIndex, res.Lambda2)
	resp.Report.Layers.SemanticCache = true
	if text, hit := o.cacheGet(ctx, cacheKey); hit {
		resp.Report.Layers.CacheHit = true
		resp.ResponseText = text
		resp.Usage = UsageReport{Estimated: true}
		resp.Savings = o.savings(req, baselineTokens, optTokens, true)
		resp.ExplanationSummary = explain(resp.Report)
		o.writeLedger(ctx, req, baselineTokens, optTokens, resp.Savings)
		return resp, nil
	}

	if req.DryRun {
		resp.Usage = UsageReport{Estimated: true}
		resp.Savings = o.savings(req, baselineTokens, optTokens, false)
		resp.ExplanationSummary = explain(resp.Report)
		return resp, nil
	}

	// PROVIDER-CALL. The policy's trim level presses on the output budget.
	chat, err := o.callProvider(ctx, req.Model, final, trimmedOutputBudget(req.MaxOutputTokens, outcome.Trim))
	if err != nil {
		return nil, err
	}
	text := chat.Text
	failures := guard.evaluate(text)

	// QUALITY-CHECK failed: one retry with relaxed policy and a larger
	// output budget, then keep the better of the two attempts.
	if guard.enabled() && len(failures) > 0 {
		retryMsgs, retryLayers, retryOutcome := o.transform(req, working, relaxBudgets(budgets), true)
		retryFinal, retryReverted := policy.SizeGuard(baseline, retryMsgs)
		retryChat, retryErr := o.callProvider(ctx, req.Model, retryFinal,
			trimmedOutputBudget(relaxedOutputBudget(req.MaxOutputTokens), retryOutcome.Trim))
		if retryErr != nil {
			o.logger.Warn("quality retry failed: %v", retryErr)
		} else {
			retryFailures := guard.evaluate(retryChat.Text)
			chosen, chosenFailures := betterOf(text, failures, retryChat.Text, retryFailures)
			if chosen != text {
				text = chosen
				chat = retryChat
				final = retryFinal
				optTokens = message.EstimateMessageTokens(final)
				resp.Messages = final
				resp.OptimizedEstimate = intPtr(optTokens)
				resp.Report.Layers = retryLayers
				resp.Report.Layers.SemanticCache = true
				resp.Report.Reverted = retryReverted
				resp.Report.Tokens = tokenReport(baselineTokens, optTokens)
			}
			failures = chosenFailures
		}
	}
	if guard.enabled() && len(failures) > 0 {
		o.logger.Warn("%v", fmt.Errorf("%w: %v", ErrQualityGuardFailed, failures))
	}

	resp.ResponseText = text
	resp.QualityFailures = failures
	resp.Usage = o.usage(chat, optTokens)
	resp.CostUSD = provider.Cost(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	resp.Savings = o.savingsWithOutput(req, baselineTokens, optTokens, resp.Usage.OutputTokens, resp.Report)
	resp.ExplanationSummary = explain(resp.Report)

	// Never cache a response from a cancelled call or one that failed the
	// quality guard.
	if ctx.Err() == nil && len(failures) == 0 {
		o.cacheSet(ctx, cacheKey, text)
	}
	o.storeState(ctx, req.ConversationID, final)
	o.writeLedger(ctx, req, baselineTokens, optTokens, resp.Savings)

	return resp, nil
}

// transform runs the gated transform chain over working and returns the
// candidate prompt, the layer report, and the policy outcome.
func (o *Optimizer) transform(req Request, working []message.Message, b budget.Budgets, relaxed bool) ([]message.Message, LayerReport, policy.Outcome) {
	gate := policy.GateFor(req.Path)
	var layers LayerReport
	cur := working

	codeIdx := ""
	if req.Path == message.PathCode {
		codeIdx = codemap.Index(codemap.Extract(working), b.CodemapDetailLevel)
	}

	// SCC is the authoritative compression layer; when its gate accepts,
	// every bulk-rewriting layer below is skipped.
	next, sccApplied := gate.Apply(cur, func(in []message.Message) []message.Message {
		stateMsg, kept := o.compiler.Compile(req.Path, in, b, codeIdx)
		return append([]message.Message{stateMsg}, kept...)
	})
	cur = next
	if sccApplied {
		layers.ContextCompiler = true
		if codeIdx != "" {
			layers.Codemap = true
		}
	} else {
		layers.ProfitGated = true
	}

	if !sccApplied && !relaxed {
		if next, ok := gate.Apply(cur, func(in []message.Message) []message.Message {
			return encode.Refpack(in, b.MaxRefpackEntries).Messages
		}); ok {
			cur = next
			layers.Refpack = true
		} else {
			layers.ProfitGated = true
		}

		if next, ok := gate.Apply(cur, func(in []message.Message) []message.Message {
			return encode.Encode(in, b.PhrasebookAggressiveness).Messages
		}); ok {
			cur = next
			layers.Phrasebook = true
		} else {
			layers.ProfitGated = true
		}

		if req.Path == message.PathCode {
			structuralOnly := b.CodemapDetailLevel < 0.5
			if next, ok := gate.Apply(cur, func(in []message.Message) []message.Message {
				return codemap.Compress(in, b.CodemapDetailLevel, structuralOnly)
			}); ok {
				cur = next
				layers.Codemap = true
			} else {
				layers.ProfitGated = true
			}
		}
	}

	flags := o.policyFlags(req, relaxed)
	cur, outcome := policy.Apply(req.Path, cur, sccApplied, flags)
	return cur, layers, outcome
}

func (o *Optimizer) policyFlags(req Request, relaxed bool) policy.Flags {
	if relaxed {
		return policy.Flags{}
	}
	aggressive := req.OptimizationLevel >= 3
	return policy.Flags{
		CompactionAggressive: aggressive,
		TrimAggressive:       aggressive,
		PatchMode:            req.Path == message.PathCode && aggressive,
	}
}

// runBaseline sends the untouched messages upstream and records a zero-
// savings ledger row, the reference leg for verified-replay comparisons.
func (o *Optimizer) runBaseline(ctx context.Context, req Request, runID string, baselineTokens int) (*Response, error) {
	resp := &Response{
		RunID:    runID,
		Mode:     req.Mode,
		Path:     req.Path,
		Provider: req.Provider,
		Model:    req.Model,
		Messages: req.Messages,
		Report: OptimizationReport{
			Tokens: tokenReport(baselineTokens, baselineTokens),
		},
	}

	if req.DryRun {
		resp.Usage = UsageReport{Estimated: true}
		return resp, nil
	}

	chat, err := o.callProvider(ctx, req.Model, req.Messages, req.MaxOutputTokens)
	if err != nil {
		return nil, err
	}
	resp.ResponseText = chat.Text
	resp.Usage = o.usage(chat, baselineTokens)
	resp.CostUSD = provider.Cost(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	resp.Savings = SavingsReport{ConfidenceBand: ConfidenceHigh, SavingsType: ledger.SavingsEstimated}
	o.writeLedger(ctx, req, baselineTokens, baselineTokens, resp.Savings)
	return resp, nil
}

// runPassthrough handles the zero-node boundary: no units, no transforms,
// no cache; the working messages go upstream as-is.
func (o *Optimizer) runPassthrough(ctx context.Context, req Request, runID string, working []message.Message, baselineTokens int, guard *qualityGuard) (*Response, error) {
	resp := &Response{
		RunID:    runID,
		Mode:     req.Mode,
		Path:     req.Path,
		Provider: req.Provider,
		Model:    req.Model,
		Messages: working,
		Report: OptimizationReport{
			Tokens: tokenReport(baselineTokens, message.EstimateMessageTokens(working)),
		},
	}

	if req.DryRun {
		resp.Usage = UsageReport{Estimated: true}
		return resp, nil
	}

	chat, err := o.callProvider(ctx, req.Model, working, req.MaxOutputTokens)
	if err != nil {
		return nil, err
	}
	resp.ResponseText = chat.Text
	resp.QualityFailures = guard.evaluate(chat.Text)
	resp.Usage = o.usage(chat, message.EstimateMessageTokens(working))
	resp.CostUSD = provider.Cost(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	resp.Savings = SavingsReport{ConfidenceBand: ConfidenceLow, SavingsType: ledger.SavingsEstimated}
	resp.ExplanationSummary = explain(resp.Report)
	return resp, nil
}

// runClarify short-circuits the pipeline with a clarification question.
// No provider call is made and usage stays zero.
func (o *Optimizer) runClarify(ctx context.Context, req Request, runID string, g *sgraph.Graph, units []unit.Unit, res *spectral.Result, baselineTokens int) (*Response, error) {
	resp := &Response{
		RunID:        runID,
		Mode:         req.Mode,
		Path:         req.Path,
		Provider:     req.Provider,
		Model:        req.Model,
		Messages:     req.Messages,
		ResponseText: clarifyQuestion(g, units),
		Usage:        UsageReport{Estimated: true},
		Report: OptimizationReport{
			Tokens:   tokenReport(baselineTokens, baselineTokens),
			Spectral: spectralReport(res),
		},
		Savings: SavingsReport{ConfidenceBand: ConfidenceLow, SavingsType: ledger.SavingsEstimated},
	}
	if o.opts.DebugSignals {
		resp.Debug = debugFrom(res)
	}
	resp.ExplanationSummary = "clarification requested before spending tokens"
	return resp, nil
}

// clarifyQuestion builds a deterministic clarification prompt, quoting the
// strongest contradicting pair when one exists.
func clarifyQuestion(g *sgraph.Graph, units []unit.Unit) string {
	var bestI, bestJ = -1, -1
	bestW := 0.0
	for _, e := range g.Edges {
		if e.Type == sgraph.EdgeContradiction && e.Weight < bestW {
			bestW = e.Weight
			bestI, bestJ = e.I, e.J
		}
	}
	if bestI >= 0 && bestI < len(units) && bestJ >= 0 && bestJ < len(units) {
		return fmt.Sprintf(
			"The conversation contains statements that appear to conflict:\n1. %q\n2. %q\nWhich one should take precedence?",
			clipText(units[bestI].Text, 160), clipText(units[bestJ].Text, 160))
	}
	return "The conversation has become unstable. Could you restate the current goal and any constraints that still apply?"
}

func clipText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if t := message.TruncateChars(s, n); t != s {
		return t + "…"
	}
	return s
}

// embedUnits fills unit embeddings via the external embedder. Embedder
// failure fails the whole request.
func (o *Optimizer) embedUnits(ctx context.Context, units []unit.Unit) error {
	if o.opts.Embedder == nil || len(units) == 0 {
		return nil
	}
	texts := make([]string, len(units))
	for i := range units {
		texts[i] = units[i].Text
	}

	embedCtx := ctx
	if o.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, o.opts.EmbedTimeout)
		defer cancel()
	}
	vectors, err := o.opts.Embedder.Embed(embedCtx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return fmt.Errorf("%w: embedder: %v", ErrUpstreamUnavailable, err)
	}
	if len(vectors) != len(units) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d units", ErrUpstreamUnavailable, len(vectors), len(units))
	}
	for i := range units {
		units[i].Embedding = vectors[i]
	}
	return nil
}

func (o *Optimizer) callProvider(ctx context.Context, model string, msgs []message.Message, maxOut int) (provider.ChatResult, error) {
	if o.opts.Provider == nil {
		return provider.ChatResult{}, fmt.Errorf("%w: no provider configured", ErrUpstreamUnavailable)
	}
	callCtx := ctx
	if o.opts.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.opts.ProviderTimeout)
		defer cancel()
	}
	res, err := o.opts.Provider.Chat(callCtx, model, msgs, maxOut)
	if err != nil {
		if ctx.Err() != nil {
			return provider.ChatResult{}, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return provider.ChatResult{}, fmt.Errorf("%w: provider: %v", ErrUpstreamUnavailable, err)
	}
	return res, nil
}

// loadState reads prior conversation state, degrading to empty on failure.
func (o *Optimizer) loadState(ctx context.Context, conversationID string) (state.Entry, bool) {
	auxCtx, cancel := context.WithTimeout(ctx, o.opts.AuxTimeout)
	defer cancel()
	entry, found, err := o.opts.State.Get(auxCtx, conversationID)
	if err != nil {
		o.auxWarn("state read", err)
		return state.Entry{}, false
	}
	return entry, found
}

// storeState persists the new state message and the last 4 messages.
// Fire-and-forget: failures are logged and swallowed.
func (o *Optimizer) storeState(ctx context.Context, conversationID string, final []message.Message) {
	if conversationID == "" {
		return
	}
	stateMsg, ok := compile.ExtractState(final)
	if !ok {
		return
	}
	lastTurn := final
	for len(lastTurn) > 0 && compile.IsStateMessage(lastTurn[0]) {
		lastTurn = lastTurn[1:]
	}
	if len(lastTurn) > 4 {
		lastTurn = lastTurn[len(lastTurn)-4:]
	}

	auxCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.AuxTimeout)
	defer cancel()
	if err := o.opts.State.Set(auxCtx, conversationID, state.Entry{StateMsg: stateMsg, LastTurn: lastTurn}, o.opts.StateTTL); err != nil {
		o.auxWarn("state write", err)
	}
}

func (o *Optimizer) cacheGet(ctx context.Context, key string) (string, bool) {
	auxCtx, cancel := context.WithTimeout(ctx, o.opts.AuxTimeout)
	defer cancel()
	val, found, err := o.opts.Cache.Get(auxCtx, key)
	if err != nil {
		o.auxWarn("cache read", err)
		return "", false
	}
	return val, found
}

func (o *Optimizer) cacheSet(ctx context.Context, key, value string) {
	auxCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.AuxTimeout)
	defer cancel()
	if err := o.opts.Cache.Set(auxCtx, key, value, o.opts.CacheTTL); err != nil {
		o.auxWarn("cache write", err)
	}
}

func (o *Optimizer) writeLedger(ctx context.Context, req Request, baselineTokens, optTokens int, s SavingsReport) {
	promptChars := 0
	for _, m := range req.Messages {
		promptChars += len(m.Content)
	}
	rec := ledger.Record{
		WorkloadKey:       ledger.WorkloadKey(req.Path, req.Provider, req.Model, promptChars),
		Path:              req.Path,
		Provider:          req.Provider,
		Model:             req.Model,
		OptimizationLevel: req.OptimizationLevel,
		BaselineTokens:    baselineTokens,
		OptimizedTokens:   optTokens,
		BaselineCost:      provider.Cost(req.Model, baselineTokens, 0),
		OptimizedCost:     provider.Cost(req.Model, optTokens, 0),
		Confidence:        s.ConfidenceBand,
		SavingsType:       s.SavingsType,
		CreatedAt:         time.Now().UTC(),
	}
	auxCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.AuxTimeout)
	defer cancel()
	if err := o.opts.Ledger.Write(auxCtx, rec); err != nil {
		o.auxWarn("ledger write", err)
	}
}

func (o *Optimizer) usage(chat provider.ChatResult, inputEstimate int) UsageReport {
	if chat.Usage != nil {
		return UsageReport{
			InputTokens:  chat.Usage.InputTokens,
			OutputTokens: chat.Usage.OutputTokens,
			TotalTokens:  chat.Usage.InputTokens + chat.Usage.OutputTokens,
		}
	}
	out := message.EstimateTokens(chat.Text)
	return UsageReport{
		InputTokens:  inputEstimate,
		OutputTokens: out,
		TotalTokens:  inputEstimate + out,
		Estimated:    true,
	}
}

func (o *Optimizer) savings(req Request, baselineTokens, optTokens int, cacheHit bool) SavingsReport {
	return o.savingsWithOutput(req, baselineTokens, optTokens, 0, OptimizationReport{
		Layers: LayerReport{CacheHit: cacheHit},
	})
}

func (o *Optimizer) savingsWithOutput(req Request, baselineTokens, optTokens, outputTokens int, rep OptimizationReport) SavingsReport {
	saved := baselineTokens - optTokens
	if saved < 0 {
		saved = 0
	}
	s := SavingsReport{
		TokensSaved: saved,
		SavingsType: ledger.SavingsEstimated,
	}
	if baselineTokens > 0 {
		s.PctSaved = float64(saved) / float64(baselineTokens) * 100
	}
	s.CostSavedUSD = provider.Cost(req.Model, baselineTokens, outputTokens) - provider.Cost(req.Model, optTokens, outputTokens)
	if rep.Layers.CacheHit {
		s.CostSavedUSD = provider.Cost(req.Model, baselineTokens, outputTokens)
	}

	switch {
	case rep.Reverted || (rep.Layers.ProfitGated && saved == 0):
		s.ConfidenceBand = ConfidenceLow
	case rep.Spectral.StabilityIndex >= 0.7, rep.Layers.CacheHit:
		s.ConfidenceBand = ConfidenceHigh
	default:
		s.ConfidenceBand = ConfidenceMedium
	}
	return s
}

// applyStabilityScores writes the analyzer's verdict back onto the units so
// the cache key reflects the stable set.
func applyStabilityScores(units []unit.Unit, res *spectral.Result) {
	for _, i := range res.Stable {
		if i < len(units) {
			if res.StabilityIndex > 0.5 {
				units[i].StabilityScore = res.StabilityIndex
			}
		}
	}
	for _, i := range res.Unstable {
		if i < len(units) {
			if res.StabilityIndex < 0.5 {
				units[i].StabilityScore = res.StabilityIndex
			} else {
				units[i].StabilityScore = 1 - res.StabilityIndex
			}
		}
	}
}

// checkStateInvariant verifies that a compiled prompt carries exactly one
// system message and that it is the state message.
func checkStateInvariant(msgs []message.Message, layers LayerReport) error {
	if !layers.ContextCompiler {
		return nil
	}
	systemCount := 0
	stateCount := 0
	for _, m := range msgs {
		if m.Role == message.RoleSystem {
			systemCount++
			if compile.IsStateMessage(m) {
				stateCount++
			}
		}
	}
	if systemCount != 1 || stateCount != 1 {
		return fmt.Errorf("%w: expected exactly one state message, found %d system / %d state",
			ErrInvariantViolation, systemCount, stateCount)
	}
	return nil
}

// relaxBudgets loosens the budgets for the quality-guard retry.
func relaxBudgets(b budget.Budgets) budget.Budgets {
	b.KeepLastTurns += 2
	b.MaxStateChars = budget.MaxStateCharsCap
	b.StateCompressionLevel = 0.3
	b.PhrasebookAggressiveness = 0
	b.CodemapDetailLevel = 1.0
	b.RetainToolLogs = true
	return b
}

func relaxedOutputBudget(maxOut int) int {
	if maxOut <= 0 {
		return 0
	}
	return maxOut * 2
}

// trimmedOutputBudget applies the policy's trim level to the caller's output
// budget: aggressive trim halves it. A zero budget stays provider-default.
func trimmedOutputBudget(maxOut int, trim policy.TrimLevel) int {
	if maxOut <= 0 || trim != policy.TrimAggressive {
		return maxOut
	}
	half := maxOut / 2
	if half < 1 {
		half = 1
	}
	return half
}

func intPtr(n int) *int {
	return &n
}

// auxWarn logs a degraded-auxiliary failure. Auxiliary subsystems never
// fail the request.
func (o *Optimizer) auxWarn(op string, err error) {
	o.logger.Warn("%v", fmt.Errorf("%w: %s: %v", ErrDegradedAuxiliary, op, err))
}

// IsAuxiliary reports whether err is a degraded-auxiliary condition.
// Exposed for callers that aggregate error metrics.
func IsAuxiliary(err error) bool {
	return errors.Is(err, ErrDegradedAuxiliary)
}
