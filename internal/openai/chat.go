package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/changichirp/internal/retry"
)

type ChatConfig struct {
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// ChatGenerator produces answers with the chat completions endpoint
type ChatGenerator struct {
	api ChatAPI
	cfg ChatConfig
}

// NewChatGenerator creates a new ChatGenerator
func NewChatGenerator(api ChatAPI, cfg ChatConfig) *ChatGenerator {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &ChatGenerator{api: api, cfg: cfg}
}

// Model returns the chat model name.
func (g *ChatGenerator) Model() string {
	return g.cfg.Model
}

// Generate sends one system + user turn and returns the reply text.
func (g *ChatGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", classify(fmt.Errorf("failed to create chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", retry.Permanent(ErrNoData)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
