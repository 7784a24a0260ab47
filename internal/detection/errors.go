package detection

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/threatlens/internal/scorer"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Validation error codes.
const (
	CodeFileRequired         = "FILE_REQUIRED"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeValidationError      = "VALIDATION_ERROR"
)

// ValidationError reports input the service refuses to score.
type ValidationError struct {
	Code    string
	Message string
	Details any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AnalysisError wraps a scorer failure surfaced to the caller.
type AnalysisError struct {
	Flow models.DetectionType
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s analysis failed: %v", e.Flow, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was an analyzer timeout.
func (e *AnalysisError) Timeout() bool {
	return errors.Is(e.Err, scorer.ErrAnalyzerTimeout)
}
