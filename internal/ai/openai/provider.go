package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kiranshivaraju/threatlens/internal/config"
)

const (
	defaultModel = "gpt-4o"
	maxTokens    = 1024
)

// Provider talks to OpenAI, or any server exposing the OpenAI chat
// completions API, using go-openai.
type Provider struct {
	client *goopenai.Client
	model  string
	name   string
}

// NewProvider builds a Provider for the hosted OpenAI API. BaseURL overrides
// the endpoint for proxies and gateways.
func NewProvider(cfg config.OpenAIConfig) *Provider {
	conf := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{client: goopenai.NewClientWithConfig(conf), model: model, name: "openai"}
}

// NewCompatible builds a Provider for a self-hosted OpenAI-compatible server.
// baseURL must include the /v1 suffix.
func NewCompatible(name, baseURL, apiKey, model string) *Provider {
	conf := goopenai.DefaultConfig(apiKey)
	conf.BaseURL = strings.TrimRight(baseURL, "/")
	return &Provider{client: goopenai.NewClientWithConfig(conf), model: model, name: name}
}

func (p *Provider) Name() string { return p.name }

// Model returns the model identifier sent with every request.
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: p.model,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	// Reasoning models reject max_tokens.
	if strings.HasPrefix(p.model, "o1") || strings.HasPrefix(p.model, "o3") || strings.HasPrefix(p.model, "o4") || strings.HasPrefix(p.model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
