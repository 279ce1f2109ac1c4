package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImMrLucky/spectyra/compile"
	"github.com/ImMrLucky/spectyra/message"
	"github.com/ImMrLucky/spectyra/provider"
)

// fakeProvider replays canned responses and records every call.
type fakeProvider struct {
	responses []string
	err       error
	calls     int
	gotMsgs   [][]message.Message
	gotMaxOut []int
}

func (f *fakeProvider) Chat(ctx context.Context, model string, msgs []message.Message, maxOut int) (provider.ChatResult, error) {
	f.calls++
	f.gotMsgs = append(f.gotMsgs, msgs)
	f.gotMaxOut = append(f.gotMaxOut, maxOut)
	if f.err != nil {
		return provider.ChatResult{}, f.err
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return provider.ChatResult{Text: f.responses[i]}, nil
}

// fakeEmbedder hands every text its own basis vector, so no two units look
// similar and the graph shape is driven purely by the text heuristics.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(texts))
		v[i] = 1
		out[i] = v
	}
	return out, nil
}

func newTestOptimizer(p provider.Provider, e provider.Embedder) *Optimizer {
	return New(Options{Provider: p, Embedder: e})
}

// recordingLogger captures every error value passed through the logger.
type recordingLogger struct {
	errs []error
}

func (l *recordingLogger) record(v []any) {
	for _, x := range v {
		if err, ok := x.(error); ok {
			l.errs = append(l.errs, err)
		}
	}
}

func (l *recordingLogger) Debug(format string, v ...any) { l.record(v) }
func (l *recordingLogger) Info(format string, v ...any)  { l.record(v) }
func (l *recordingLogger) Warn(format string, v ...any)  { l.record(v) }
func (l *recordingLogger) Error(format string, v ...any) { l.record(v) }

// failingCache fails every read and write, like a cache backend that is down.
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (failingCache) Close() error { return nil }

func longTalkRequest() Request {
	filler := func(topic string) string {
		return fmt.Sprintf("We discussed the %s at length and agreed on the general direction, including the staffing model, the vendor contracts, and the review cadence for the remainder of the migration effort. The team also walked through the runbooks, the escalation matrix, the maintenance windows, the capacity headroom targets, the data retention obligations, and the sign-off checklist required by the compliance office ahead of the cutover weekend.", topic)
	}
	msgs := []message.Message{
		{Role: message.RoleUser, Content: "Plan the data center migration for the billing platform."},
		{Role: message.RoleAssistant, Content: filler("network topology")},
		{Role: message.RoleUser, Content: filler("storage layout")},
		{Role: message.RoleAssistant, Content: filler("capacity model")},
		{Role: message.RoleUser, Content: filler("cutover sequencing")},
		{Role: message.RoleAssistant, Content: filler("rollback strategy")},
		{Role: message.RoleUser, Content: filler("observability stack")},
		{Role: message.RoleAssistant, Content: filler("incident process")},
		{Role: message.RoleUser, Content: filler("vendor escalation path")},
		{Role: message.RoleAssistant, Content: filler("budget envelope")},
		{Role: message.RoleUser, Content: "Summarize the remaining risks for the steering committee."},
	}
	return Request{
		Path:              message.PathTalk,
		Provider:          "openai",
		Model:             "gpt-4o",
		Messages:          msgs,
		Mode:              ModeOptimized,
		OptimizationLevel: 2,
	}
}

func TestRunCompilesLongTalkConversation(t *testing.T) {
	p := &fakeProvider{responses: []string{"The top risks are vendor lock-in and cutover timing."}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	resp, err := o.Run(context.Background(), longTalkRequest())
	require.NoError(t, err)

	assert.True(t, resp.Report.Layers.ContextCompiler, "long repetitive history should clear the compiler gate")
	assert.False(t, resp.Report.Reverted)
	assert.Greater(t, resp.Report.Tokens.Saved, 0)
	assert.Greater(t, resp.Savings.TokensSaved, 0)
	assert.Equal(t, "The top risks are vendor lock-in and cutover timing.", resp.ResponseText)
	assert.Equal(t, 1, p.calls)

	// Exactly one system message survives, and it is the state message.
	systemCount := 0
	for _, m := range resp.Messages {
		if m.Role == message.RoleSystem {
			systemCount++
			assert.True(t, compile.IsStateMessage(m))
		}
	}
	assert.Equal(t, 1, systemCount)

	// The most recent user turn stays verbatim.
	last := resp.Messages[len(resp.Messages)-1]
	assert.Equal(t, "Summarize the remaining risks for the steering committee.", last.Content)
}

func TestRunBaselineMode(t *testing.T) {
	p := &fakeProvider{responses: []string{"baseline answer"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := longTalkRequest()
	req.Mode = ModeBaseline
	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "baseline answer", resp.ResponseText)
	assert.Equal(t, 0, resp.Savings.TokensSaved)
	require.Equal(t, 1, p.calls)
	assert.Equal(t, req.Messages, p.gotMsgs[0], "baseline mode must send the prompt untouched")
}

func TestRunAskClarifyShortCircuit(t *testing.T) {
	p := &fakeProvider{responses: []string{"should never be called"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := Request{
		Path:     message.PathTalk,
		Provider: "openai",
		Model:    "gpt-4o",
		Mode:     ModeOptimized,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: "The request timeout must always stay enabled on the production billing cluster."},
			{Role: message.RoleUser, Content: "The request timeout must never stay enabled on the production billing cluster."},
		},
	}
	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, p.calls, "clarification must not spend provider tokens")
	assert.Zero(t, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.ResponseText)
	assert.Contains(t, resp.ResponseText, "conflict")
}

func TestRunCacheHit(t *testing.T) {
	p := &fakeProvider{responses: []string{"first answer"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := longTalkRequest()
	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Report.Layers.CacheHit)

	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Report.Layers.CacheHit)
	assert.Equal(t, "first answer", second.ResponseText)
	assert.Zero(t, second.Usage.TotalTokens)
	assert.Equal(t, 1, p.calls, "cache hit must not call the provider again")
}

func TestRunQualityGuardRetry(t *testing.T) {
	p := &fakeProvider{responses: []string{"missing the marker", "PATCH: fixed the handler"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := longTalkRequest()
	req.QualityChecks = []string{`^PATCH:`}
	req.MaxOutputTokens = 256

	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls, "a failed check triggers exactly one retry")
	assert.Equal(t, "PATCH: fixed the handler", resp.ResponseText)
	assert.Empty(t, resp.QualityFailures)
	assert.Equal(t, 512, p.gotMaxOut[1], "the retry doubles the output budget")
}

func TestRunQualityGuardBothFail(t *testing.T) {
	p := &fakeProvider{responses: []string{"attempt one", "attempt two"}}
	lg := &recordingLogger{}
	o := New(Options{Provider: p, Embedder: &fakeEmbedder{}, Logger: lg})
	defer o.Close()

	req := longTalkRequest()
	req.QualityChecks = []string{`impossible-marker-zzz`}

	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err, "quality failures still produce a normal response")
	assert.Equal(t, 2, p.calls)
	assert.Len(t, resp.QualityFailures, 1)
	assert.Equal(t, "attempt one", resp.ResponseText, "ties keep the first attempt")

	logged := false
	for _, e := range lg.errs {
		if errors.Is(e, ErrQualityGuardFailed) {
			logged = true
		}
	}
	assert.True(t, logged, "surviving failures carry the quality-guard error kind")
}

func TestRunMaxNodesZeroPassthrough(t *testing.T) {
	p := &fakeProvider{responses: []string{"plain answer"}}
	e := &fakeEmbedder{}
	zero := 0
	o := New(Options{Provider: p, Embedder: e, MaxNodes: &zero})
	defer o.Close()

	resp, err := o.Run(context.Background(), longTalkRequest())
	require.NoError(t, err)

	assert.Equal(t, 0, e.calls, "no units means no embedding call")
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "plain answer", resp.ResponseText)
	assert.Equal(t, resp.Report.Tokens.InputBefore, resp.Report.Tokens.InputAfter)
}

func TestRunDryRun(t *testing.T) {
	p := &fakeProvider{responses: []string{"never sent"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := longTalkRequest()
	req.DryRun = true
	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, p.calls)
	assert.Empty(t, resp.ResponseText)
	assert.True(t, resp.Usage.Estimated)
	assert.NotNil(t, resp.BaselineEstimate)
	assert.NotNil(t, resp.OptimizedEstimate)
}

func TestRunInvalidInput(t *testing.T) {
	o := newTestOptimizer(&fakeProvider{responses: []string{"x"}}, &fakeEmbedder{})
	defer o.Close()

	cases := []Request{
		{},
		{Path: "chat", Provider: "openai", Model: "m", Messages: []message.Message{{Role: message.RoleUser, Content: "x"}}},
		{Path: message.PathTalk, Provider: "openai", Model: "", Messages: []message.Message{{Role: message.RoleUser, Content: "x"}}},
		{Path: message.PathTalk, Provider: "openai", Model: "m", Messages: []message.Message{{Role: "robot", Content: "x"}}},
		{Path: message.PathTalk, Provider: "openai", Model: "m", Mode: "shadow", Messages: []message.Message{{Role: message.RoleUser, Content: "x"}}},
	}
	for i, req := range cases {
		_, err := o.Run(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
	}
}

func TestRunEmbedderFailureFailsFast(t *testing.T) {
	p := &fakeProvider{responses: []string{"x"}}
	o := newTestOptimizer(p, &fakeEmbedder{err: errors.New("embedding service down")})
	defer o.Close()

	_, err := o.Run(context.Background(), longTalkRequest())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 0, p.calls)
}

func TestRunProviderFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("upstream 503")}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	_, err := o.Run(context.Background(), longTalkRequest())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestRunStateCarryAcrossTurns(t *testing.T) {
	p := &fakeProvider{responses: []string{"turn one answer", "turn two answer"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := longTalkRequest()
	req.ConversationID = "conv-7"
	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Report.Layers.ContextCompiler)

	// Second turn: the prior compiled state is prepended before unitizing.
	next := Request{
		Path:           message.PathTalk,
		Provider:       "openai",
		Model:          "gpt-4o",
		Mode:           ModeOptimized,
		ConversationID: "conv-7",
		Messages: []message.Message{
			{Role: message.RoleUser, Content: "And what is the very first milestone?"},
		},
	}
	_, err = o.Run(context.Background(), next)
	require.NoError(t, err)
	require.Equal(t, 2, p.calls)

	carried := false
	for _, m := range p.gotMsgs[1] {
		if compile.IsStateMessage(m) || strings.Contains(m.Content, "Goal: Plan the data center migration") {
			carried = true
		}
	}
	assert.True(t, carried, "second turn should see the carried state")
}

func TestRunSmallPromptProfitGated(t *testing.T) {
	p := &fakeProvider{responses: []string{"short answer"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := Request{
		Path:     message.PathTalk,
		Provider: "openai",
		Model:    "gpt-4o",
		Mode:     ModeOptimized,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: "Give me a two line summary of the quarterly report we reviewed."},
		},
	}
	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Report.Layers.ContextCompiler, "tiny prompts never clear the gate")
	assert.True(t, resp.Report.Layers.ProfitGated)
	assert.Equal(t, "short answer", resp.ResponseText)
	assert.False(t, resp.Report.Reverted)
}

func TestRunDebugSignalsGate(t *testing.T) {
	p := &fakeProvider{responses: []string{"answer"}}
	o := New(Options{Provider: p, Embedder: &fakeEmbedder{}, DebugSignals: true})
	defer o.Close()

	resp, err := o.Run(context.Background(), longTalkRequest())
	require.NoError(t, err)
	require.NotNil(t, resp.Debug)
	assert.NotEmpty(t, resp.Debug.Recommendation)

	o2 := newTestOptimizer(&fakeProvider{responses: []string{"answer"}}, &fakeEmbedder{})
	defer o2.Close()
	resp2, err := o2.Run(context.Background(), longTalkRequest())
	require.NoError(t, err)
	assert.Nil(t, resp2.Debug, "debug signals stay off by default")
}

func TestRunEmptyMessages(t *testing.T) {
	p := &fakeProvider{responses: []string{"empty is fine"}}
	e := &fakeEmbedder{}
	o := newTestOptimizer(p, e)
	defer o.Close()

	resp, err := o.Run(context.Background(), Request{
		Path:     message.PathTalk,
		Provider: "openai",
		Model:    "gpt-4o",
		Mode:     ModeOptimized,
	})
	require.NoError(t, err, "an empty message list is a valid request")

	assert.Empty(t, resp.Messages, "the prompt passes upstream unchanged")
	assert.Equal(t, 0, resp.Report.Spectral.NNodes)
	assert.Equal(t, 0, e.calls, "nothing to embed")
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "empty is fine", resp.ResponseText)
	assert.False(t, resp.Report.Reverted)
	assert.False(t, resp.Report.Layers.ContextCompiler)
}

func TestRunLevelZeroRoundTrip(t *testing.T) {
	p := &fakeProvider{responses: []string{"noted"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := Request{
		Path:              message.PathTalk,
		Provider:          "openai",
		Model:             "gpt-4o",
		Mode:              ModeOptimized,
		OptimizationLevel: 0,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: "Our finance team wants a short overview of the quarterly cloud spend broken down by department."},
			{Role: message.RoleAssistant, Content: "Engineering accounts for the largest share, followed by data science and then marketing analytics."},
			{Role: message.RoleUser, Content: "How has the storage tier behaved compared with the prior quarter in terms of raw gigabyte growth?"},
			{Role: message.RoleAssistant, Content: "Storage grew moderately while egress charges stayed flat across both of the billing regions."},
			{Role: message.RoleUser, Content: "Which single line item deserves the closest look if the goal is trimming spend over the coming month?"},
		},
	}
	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	before := resp.Report.Tokens.InputBefore
	after := resp.Report.Tokens.InputAfter
	require.Greater(t, before, 0)
	assert.LessOrEqual(t, after, before)
	assert.GreaterOrEqual(t, float64(after), float64(before)*0.95,
		"level 0 on a distinct, rule-free conversation stays within 5%% of the input")
	require.Equal(t, 1, p.calls)
	assert.Equal(t, req.Messages, p.gotMsgs[0], "no transform clears the gate, so the prompt is untouched")
}

func TestRunAggressiveTrimShrinksOutputBudget(t *testing.T) {
	p := &fakeProvider{responses: []string{"tight answer"}}
	o := newTestOptimizer(p, &fakeEmbedder{})
	defer o.Close()

	req := longTalkRequest()
	req.OptimizationLevel = 3
	req.MaxOutputTokens = 400
	_, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
	assert.Equal(t, 200, p.gotMaxOut[0], "aggressive trim halves the caller's output budget")

	// Moderate trim leaves the budget alone.
	p2 := &fakeProvider{responses: []string{"normal answer"}}
	o2 := newTestOptimizer(p2, &fakeEmbedder{})
	defer o2.Close()
	req2 := longTalkRequest()
	req2.MaxOutputTokens = 400
	_, err = o2.Run(context.Background(), req2)
	require.NoError(t, err)
	require.Equal(t, 1, p2.calls)
	assert.Equal(t, 400, p2.gotMaxOut[0])
}

func TestRunCacheFailureDegrades(t *testing.T) {
	p := &fakeProvider{responses: []string{"still answered"}}
	lg := &recordingLogger{}
	o := New(Options{Provider: p, Embedder: &fakeEmbedder{}, Cache: failingCache{}, Logger: lg})
	defer o.Close()

	resp, err := o.Run(context.Background(), longTalkRequest())
	require.NoError(t, err, "auxiliary failures never fail the request")
	assert.Equal(t, "still answered", resp.ResponseText)
	assert.Equal(t, 1, p.calls)

	aux := 0
	for _, e := range lg.errs {
		if IsAuxiliary(e) {
			aux++
		}
	}
	assert.GreaterOrEqual(t, aux, 2, "both the cache read and the cache write log as degraded")
}
