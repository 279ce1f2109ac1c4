package provider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/ImMrLucky/spectyra/message"
)

// LangchainProvider adapts any langchaingo llms.Model to Provider, so every
// backend langchaingo supports can sit upstream of the optimizer.
type LangchainProvider struct {
	model llms.Model
}

// NewLangchainProvider wraps a langchaingo model.
func NewLangchainProvider(model llms.Model) *LangchainProvider {
	return &LangchainProvider{model: model}
}

// Chat sends the messages through llms.GenerateContent.
func (p *LangchainProvider) Chat(ctx context.Context, model string, msgs []message.Message, maxOutputTokens int) (ChatResult, error) {
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		content = append(content, llms.TextParts(toChatMessageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if maxOutputTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxOutputTokens))
	}

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return ChatResult{}, fmt.Errorf("langchain model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResult{}, fmt.Errorf("langchain model returned no choices")
	}

	// langchaingo does not expose usage uniformly across backends, so the
	// caller falls back to estimated usage.
	return ChatResult{Text: resp.Choices[0].Content}, nil
}

func toChatMessageType(role message.Role) schema.ChatMessageType {
	switch role {
	case message.RoleSystem:
		return schema.ChatMessageTypeSystem
	case message.RoleAssistant:
		return schema.ChatMessageTypeAI
	case message.RoleTool:
		// schema.ChatMessageTypeTool ("tool") only exists in langchaingo
		// v0.1.8+, which requires a newer Go toolchain than available.
		return schema.ChatMessageType("tool")
	default:
		return schema.ChatMessageTypeHuman
	}
}
