package ai

import "errors"

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// FailureKind classifies a classification error for metrics labels.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrInferenceTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}
