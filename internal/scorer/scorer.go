// Package scorer produces verdicts for uploaded media and submitted text.
package scorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

var (
	ErrAnalyzerTimeout         = errors.New("analyzer timed out")
	ErrAnalyzerExit            = errors.New("analyzer exited with error")
	ErrAnalyzerCanceled        = errors.New("analysis canceled")
	ErrAnalyzerEmptyOutput     = errors.New("analyzer produced no output")
	ErrAnalyzerMalformedOutput = errors.New("analyzer produced malformed output")
	ErrUnsupportedFlow         = errors.New("flow not supported by binary scorer")
)

// Sample is one uploaded file handed to a BinaryScorer.
type Sample struct {
	Flow     models.DetectionType
	FileName string
	Data     []byte
}

// BinaryScorer scores voice and deepfake uploads.
type BinaryScorer interface {
	Score(ctx context.Context, s Sample) (models.Verdict, error)
	Name() string
}

// NewBinaryScorer constructs the backend selected by SCORER_BACKEND.
func NewBinaryScorer(cfg config.ScorerConfig) (BinaryScorer, error) {
	switch cfg.Backend {
	case config.ScorerSimulated, "":
		return NewSimulated(nil), nil
	case config.ScorerExec:
		return NewExec(cfg), nil
	default:
		return nil, fmt.Errorf("unknown scorer backend %q: must be one of simulated, exec", cfg.Backend)
	}
}

// FailureKind names an analyzer failure for degraded verdict factors and metrics.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrAnalyzerTimeout):
		return "timeout"
	case errors.Is(err, ErrAnalyzerCanceled):
		return "canceled"
	case errors.Is(err, ErrAnalyzerExit):
		return "exit"
	case errors.Is(err, ErrAnalyzerEmptyOutput):
		return "empty_output"
	case errors.Is(err, ErrAnalyzerMalformedOutput):
		return "malformed_output"
	default:
		return "unknown"
	}
}
