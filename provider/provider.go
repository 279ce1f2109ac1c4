// Package provider defines the upstream LLM and embedder interfaces the
// pipeline consumes, with adapters for the OpenAI API and any langchaingo
// model, plus the pricing table used for cost accounting.
package provider

import (
	"context"

	"github.com/ImMrLucky/spectyra/message"
)

// Usage is the provider-reported token usage for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResult is the outcome of one chat call. Usage is nil when the
// provider did not report it; callers fall back to the estimator.
type ChatResult struct {
	Text  string
	Usage *Usage
}

// Provider is the single-method upstream chat interface. maxOutputTokens
// of zero means provider default.
type Provider interface {
	Chat(ctx context.Context, model string, msgs []message.Message, maxOutputTokens int) (ChatResult, error)
}

// Embedder produces one fixed-dimension embedding per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
