package mock

import (
	"context"

	"github.com/kiranshivaraju/threatlens/internal/ai"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	ClassifyFunc func(ctx context.Context, req models.PhishingRequest) (models.Verdict, error)
	Calls        int
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) ClassifyPhishing(ctx context.Context, req models.PhishingRequest) (models.Verdict, error) {
	m.Calls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return models.Verdict{}, nil
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ClassifyFunc: func(_ context.Context, _ models.PhishingRequest) (models.Verdict, error) {
			return models.Verdict{
				Score:   85,
				Status:  models.StatusFake,
				Factors: []string{"Simulated phishing indicator from mock provider"},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ClassifyFunc: func(_ context.Context, _ models.PhishingRequest) (models.Verdict, error) {
			return models.Verdict{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ClassifyFunc: func(ctx context.Context, _ models.PhishingRequest) (models.Verdict, error) {
			<-ctx.Done()
			return models.Verdict{}, ai.ErrInferenceTimeout
		},
	}
}

// MockCompleter satisfies ai.Completer for testing.
type MockCompleter struct {
	Name_        string
	CompleteFunc func(ctx context.Context, system, user string) (string, error)
}

func (m *MockCompleter) Name() string { return m.Name_ }

func (m *MockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}
	return "", nil
}

// NewReplyCompleter returns a MockCompleter that always replies with reply.
func NewReplyCompleter(reply string) *MockCompleter {
	return &MockCompleter{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, _, _ string) (string, error) {
			return reply, nil
		},
	}
}

// Compile-time checks.
var (
	_ models.AIProvider = (*MockProvider)(nil)
	_ ai.Completer      = (*MockCompleter)(nil)
)
