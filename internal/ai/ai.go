// Package ai classifies text through a language model. Providers only move
// prompts and completions over the wire; Classifier owns the prompt, the reply
// decoding and the error taxonomy.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/threatlens/internal/ai/prompt"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Completer sends one system+user exchange to a model and returns the raw
// completion text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Classifier implements models.AIProvider on top of a Completer.
// The per-call deadline comes from the caller's context.
type Classifier struct {
	completer Completer
}

func NewClassifier(c Completer) *Classifier {
	return &Classifier{completer: c}
}

func (c *Classifier) Name() string { return c.completer.Name() }

// ClassifyPhishing asks the model for a verdict. Errors wrap one of
// ErrInferenceTimeout, ErrProviderUnavailable or ErrInvalidResponse.
func (c *Classifier) ClassifyPhishing(ctx context.Context, req models.PhishingRequest) (models.Verdict, error) {
	raw, err := c.completer.Complete(ctx, prompt.PhishingSystemPrompt(), prompt.PhishingUserPrompt(req))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Verdict{}, fmt.Errorf("%s: %w", c.Name(), ErrInferenceTimeout)
		}
		return models.Verdict{}, fmt.Errorf("%s: %w: %w", c.Name(), ErrProviderUnavailable, err)
	}

	v, err := prompt.ParseVerdict(raw)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("%s: %w: %w", c.Name(), ErrInvalidResponse, err)
	}
	return v, nil
}

var _ models.AIProvider = (*Classifier)(nil)
