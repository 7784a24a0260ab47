// Package detection runs the voice, deepfake and phishing flows: validate the
// input, score it, archive it when configured and record the result.
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/archive"
	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/internal/scorer"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// TextScorer scores phishing requests. It never fails.
type TextScorer interface {
	Score(ctx context.Context, req models.PhishingRequest) models.Verdict
	Name() string
}

// Service orchestrates the three detection flows.
type Service struct {
	store           store.Store
	binary          scorer.BinaryScorer
	text            TextScorer
	archive         archive.Archiver
	fallbackOnError bool
	maxUploadBytes  int64
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArchive stores every accepted upload in a.
func WithArchive(a archive.Archiver) Option {
	return func(s *Service) { s.archive = a }
}

// WithFallbackOnError controls whether binary scorer failures become degraded
// verdicts (true) or *AnalysisError (false).
func WithFallbackOnError(enabled bool) Option {
	return func(s *Service) { s.fallbackOnError = enabled }
}

// WithMaxUploadBytes sets the per-file size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) { s.maxUploadBytes = n }
}

func NewService(st store.Store, binary scorer.BinaryScorer, text TextScorer, opts ...Option) *Service {
	s := &Service{
		store:           st,
		binary:          binary,
		text:            text,
		fallbackOnError: true,
		maxUploadBytes:  DefaultMaxUploadBytes,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxUploadBytes returns the configured per-file limit.
func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

func (s *Service) DetectVoice(ctx context.Context, u *Upload) (*models.AnalysisResult, error) {
	return s.detectFile(ctx, models.DetectionVoice, u)
}

func (s *Service) DetectDeepfake(ctx context.Context, u *Upload) (*models.AnalysisResult, error) {
	return s.detectFile(ctx, models.DetectionDeepfake, u)
}

func (s *Service) detectFile(ctx context.Context, flow models.DetectionType, u *Upload) (*models.AnalysisResult, error) {
	if err := checkUpload(flow, u, s.maxUploadBytes); err != nil {
		return nil, err
	}

	start := time.Now()
	v, err := s.binary.Score(ctx, scorer.Sample{Flow: flow, FileName: u.FileName, Data: u.Data})
	metrics.RecordScorer(string(flow), s.binary.Name(), time.Since(start))
	if err != nil {
		kind := scorer.FailureKind(err)
		metrics.RecordScorerFailure(string(flow), kind)
		slog.Warn("binary scorer failed",
			"flow", flow,
			"scorer", s.binary.Name(),
			"kind", kind,
			"error", err,
		)
		if !s.fallbackOnError {
			return nil, &AnalysisError{Flow: flow, Err: err}
		}
		v = models.FallbackVerdict(fallbackFactors(kind)...)
	}

	fileName := u.FileName
	fileSize := u.Size
	if fileSize == 0 {
		fileSize = int64(len(u.Data))
	}
	result := &models.AnalysisResult{
		Type:        flow,
		FileName:    &fileName,
		FileSize:    &fileSize,
		Score:       v.Score,
		Status:      v.Status,
		Factors:     v.Factors,
		Degraded:    v.Degraded,
		Scorer:      s.binary.Name(),
		ArtifactKey: s.archiveUpload(ctx, flow, u),
	}
	return s.record(ctx, result)
}

func (s *Service) DetectPhishing(ctx context.Context, req models.PhishingRequest) (*models.AnalysisResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	start := time.Now()
	v := s.text.Score(ctx, req)
	metrics.RecordScorer(string(models.DetectionPhishing), s.text.Name(), time.Since(start))

	content := req.Content
	result := &models.AnalysisResult{
		Type:        models.DetectionPhishing,
		ContentText: &content,
		Score:       v.Score,
		Status:      v.Status,
		Factors:     v.Factors,
		Degraded:    v.Degraded,
		Scorer:      s.text.Name(),
	}
	return s.record(ctx, result)
}

func (s *Service) record(ctx context.Context, result *models.AnalysisResult) (*models.AnalysisResult, error) {
	if result.Factors == nil {
		result.Factors = []string{}
	}
	if err := s.store.CreateAnalysisResult(ctx, result); err != nil {
		return nil, fmt.Errorf("store %s result: %w", result.Type, err)
	}
	metrics.RecordDetection(string(result.Type), string(result.Status), result.Degraded)
	return result, nil
}

// archiveUpload returns the object key, or nil when archiving is off or fails.
func (s *Service) archiveUpload(ctx context.Context, flow models.DetectionType, u *Upload) *string {
	if s.archive == nil {
		return nil
	}
	key := archive.ObjectKey(flow, s.now(), u.FileName)
	err := s.archive.Put(ctx, key, u.Data, u.MIMEType)
	metrics.RecordArchiveUpload(err)
	if err != nil {
		slog.Warn("failed to archive upload", "flow", flow, "key", key, "error", err)
		return nil
	}
	return &key
}

func fallbackFactors(kind string) []string {
	var first string
	switch kind {
	case "timeout":
		first = "Analysis timed out - treating as suspicious by default"
	case "exit":
		first = "Analyzer failed - treating as suspicious by default"
	case "empty_output":
		first = "Analyzer returned no result - treating as suspicious by default"
	case "malformed_output":
		first = "Analyzer returned an unreadable result - treating as suspicious by default"
	default:
		first = "Analysis error - treating as suspicious by default"
	}
	return []string{
		first,
		"Unable to perform detailed media analysis",
		"Exercise caution with this file",
	}
}
