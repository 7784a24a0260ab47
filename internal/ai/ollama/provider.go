// Package ollama connects to a local Ollama server through its
// OpenAI-compatible endpoint.
package ollama

import (
	"strings"

	"github.com/kiranshivaraju/threatlens/internal/ai/openai"
	"github.com/kiranshivaraju/threatlens/internal/config"
)

// Ollama ignores the key but the client requires one.
const placeholderKey = "ollama"

func NewProvider(cfg config.OllamaConfig) *openai.Provider {
	return openai.NewCompatible("ollama", strings.TrimRight(cfg.BaseURL, "/")+"/v1", placeholderKey, cfg.Model)
}
