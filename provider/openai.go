package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ImMrLucky/spectyra/message"
)

// OpenAIProvider adapts the OpenAI chat completion API to Provider and the
// embeddings API to Embedder.
type OpenAIProvider struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
}

// OpenAIOptions configures the OpenAI adapter.
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string                // optional, for compatible endpoints
	EmbeddingModel openai.EmbeddingModel // default text-embedding-3-small
}

// NewOpenAIProvider creates an adapter for the OpenAI API.
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.EmbeddingModel
	if model == "" {
		model = openai.SmallEmbedding3
	}
	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: model,
	}
}

// Chat sends the messages as a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, model string, msgs []message.Message, maxOutputTokens int) (ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(msgs),
	}
	if maxOutputTokens > 0 {
		req.MaxTokens = maxOutputTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ChatResult{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResult{}, fmt.Errorf("openai returned no choices")
	}

	return ChatResult{
		Text: resp.Choices[0].Message.Content,
		Usage: &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Embed produces one embedding per input text.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// toOpenAIMessages maps the internal roles onto the chat completion roles.
// Tool output is sent as a user message; the optimizer has no tool-call IDs
// to thread through.
func toOpenAIMessages(msgs []message.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		content := m.Content
		switch m.Role {
		case message.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case message.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case message.RoleTool:
			content = "Tool output:\n" + content
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	return out
}
