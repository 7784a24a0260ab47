package ai

import (
	"fmt"

	"github.com/kiranshivaraju/threatlens/internal/ai/anthropic"
	"github.com/kiranshivaraju/threatlens/internal/ai/ollama"
	"github.com/kiranshivaraju/threatlens/internal/ai/openai"
	"github.com/kiranshivaraju/threatlens/internal/ai/vllm"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	var c Completer
	switch cfg.Provider {
	case "ollama":
		c = ollama.NewProvider(cfg.Ollama)
	case "vllm":
		c = vllm.NewProvider(cfg.VLLM)
	case "openai":
		c = openai.NewProvider(cfg.OpenAI)
	case "anthropic":
		c = anthropic.NewProvider(cfg.Anthropic)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
	return NewClassifier(c), nil
}
