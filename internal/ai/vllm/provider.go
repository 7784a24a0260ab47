// Package vllm connects to a vLLM server through its OpenAI-compatible endpoint.
package vllm

import (
	"strings"

	"github.com/kiranshivaraju/threatlens/internal/ai/openai"
	"github.com/kiranshivaraju/threatlens/internal/config"
)

func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.NewCompatible("vllm", strings.TrimRight(cfg.BaseURL, "/")+"/v1", "EMPTY", cfg.Model)
}
