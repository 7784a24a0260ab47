package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kiranshivaraju/threatlens/internal/ai"
	"github.com/kiranshivaraju/threatlens/internal/cache"
	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// HeuristicName is reported as the scorer when no AI provider is configured.
const HeuristicName = "heuristic"

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	keywordWeight           = 10
)

var phishingKeywords = []string{
	"urgent", "verify", "account", "suspended", "click", "link", "password",
	"update", "information", "bank", "limited", "access", "security", "unusual activity",
}

var (
	phishingFakeFactors = []string{
		"Contains urgent language and time pressure tactics",
		"Requests sensitive personal information",
		"Contains suspicious links with misleading URLs",
		"Mimics legitimate organization communication",
	}
	phishingSuspiciousFactors = []string{
		"Contains some urgency indicators",
		"Contains links that require caution",
		"Requests action from the recipient",
		"Some linguistic patterns match known phishing attempts",
	}
	phishingSafeFactors = []string{
		"No urgent calls to action",
		"No requests for sensitive information",
		"No suspicious links detected",
		"Content appears legitimate",
	}
	phishingFallbackFactors = []string{
		"Analysis error - treating as suspicious by default",
		"Unable to perform detailed content analysis",
		"Exercise caution with this content",
	}
)

// PhishingScorer scores text with a language model when one is configured and
// with keyword heuristics otherwise. Score never fails: delegated errors turn
// into a degraded neutral verdict.
type PhishingScorer struct {
	provider models.AIProvider
	breaker  *gobreaker.CircuitBreaker[models.Verdict]
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration

	failureThreshold uint32
	openTimeout      time.Duration
}

// PhishingOption configures a PhishingScorer.
type PhishingOption func(*PhishingScorer)

// WithCache stores successful model verdicts in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) PhishingOption {
	return func(s *PhishingScorer) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithInferenceTimeout bounds each provider call.
func WithInferenceTimeout(d time.Duration) PhishingOption {
	return func(s *PhishingScorer) { s.timeout = d }
}

// WithBreaker sets how many consecutive provider failures open the breaker and
// how long it stays open.
func WithBreaker(failureThreshold uint32, openTimeout time.Duration) PhishingOption {
	return func(s *PhishingScorer) {
		s.failureThreshold = failureThreshold
		s.openTimeout = openTimeout
	}
}

// NewPhishingScorer builds a PhishingScorer. A nil provider selects the heuristic.
func NewPhishingScorer(provider models.AIProvider, opts ...PhishingOption) *PhishingScorer {
	s := &PhishingScorer{
		provider:         provider,
		failureThreshold: defaultFailureThreshold,
		openTimeout:      defaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if provider != nil {
		s.breaker = gobreaker.NewCircuitBreaker[models.Verdict](gobreaker.Settings{
			Name:    "phishing-" + provider.Name(),
			Timeout: s.openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.failureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return s
}

// Name returns the provider name, or "heuristic".
func (s *PhishingScorer) Name() string {
	if s.provider == nil {
		return HeuristicName
	}
	return s.provider.Name()
}

// Score returns a verdict for req. It never returns an error.
func (s *PhishingScorer) Score(ctx context.Context, req models.PhishingRequest) models.Verdict {
	if s.provider == nil {
		return HeuristicVerdict(req.Content)
	}

	key := cache.PhishingVerdictKey(string(req.Type), req.Content)
	if v, ok := s.cached(ctx, key); ok {
		return v
	}

	v, err := s.classify(ctx, req)
	if err != nil {
		kind := ai.FailureKind(err)
		metrics.RecordScorerFailure(string(models.DetectionPhishing), kind)
		slog.Warn("phishing classification failed, using fallback",
			"flow", models.DetectionPhishing,
			"scorer", s.Name(),
			"kind", kind,
			"error", err,
		)
		return models.FallbackVerdict(phishingFallbackFactors...)
	}

	s.store(ctx, key, v)
	return v
}

func (s *PhishingScorer) classify(ctx context.Context, req models.PhishingRequest) (models.Verdict, error) {
	v, err := s.breaker.Execute(func() (models.Verdict, error) {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return s.provider.ClassifyPhishing(callCtx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return models.Verdict{}, fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, err)
	}
	return v, err
}

func (s *PhishingScorer) cached(ctx context.Context, key string) (models.Verdict, bool) {
	if s.cache == nil {
		return models.Verdict{}, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("phishing cache read failed", "key", key, "error", err)
		return models.Verdict{}, false
	}
	if !ok {
		return models.Verdict{}, false
	}
	var v models.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Verdict{}, false
	}
	return v, true
}

func (s *PhishingScorer) store(ctx context.Context, key string, v models.Verdict) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		slog.Debug("phishing cache write failed", "key", key, "error", err)
	}
}

// HeuristicVerdict scores content by counting which fixed phishing keywords it
// contains, case-insensitively.
func HeuristicVerdict(content string) models.Verdict {
	lower := strings.ToLower(content)
	matches := 0
	for _, kw := range phishingKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}

	score := min(models.ScoreMax, matches*keywordWeight)
	status := models.StatusForScore(models.DetectionPhishing, score)

	var factors []string
	switch status {
	case models.StatusFake:
		factors = phishingFakeFactors
	case models.StatusSuspicious:
		factors = phishingSuspiciousFactors
	default:
		factors = phishingSafeFactors
	}
	return models.Verdict{
		Score:   score,
		Status:  status,
		Factors: append([]string(nil), factors...),
	}
}
