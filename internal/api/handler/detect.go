// Package handler implements the HTTP handlers for the ThreatLens API.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/kiranshivaraju/threatlens/internal/api/response"
	"github.com/kiranshivaraju/threatlens/internal/detection"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// maxPhishingBody bounds the JSON body accepted by the phishing endpoint.
const maxPhishingBody = 1 << 20

// Detector is the detection service the handlers depend on.
type Detector interface {
	MaxUploadBytes() int64
	DetectVoice(ctx context.Context, u *detection.Upload) (*models.AnalysisResult, error)
	DetectDeepfake(ctx context.Context, u *detection.Upload) (*models.AnalysisResult, error)
	DetectPhishing(ctx context.Context, req models.PhishingRequest) (*models.AnalysisResult, error)
}

// NewVoiceHandler returns an http.HandlerFunc for POST /api/detect/voice.
func NewVoiceHandler(svc Detector) http.HandlerFunc {
	return newUploadHandler(svc, models.DetectionVoice, svc.DetectVoice)
}

// NewDeepfakeHandler returns an http.HandlerFunc for POST /api/detect/deepfake.
func NewDeepfakeHandler(svc Detector) http.HandlerFunc {
	return newUploadHandler(svc, models.DetectionDeepfake, svc.DetectDeepfake)
}

type uploadDetectFunc func(ctx context.Context, u *detection.Upload) (*models.AnalysisResult, error)

func newUploadHandler(svc Detector, flow models.DetectionType, detect uploadDetectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upload, err := detection.ReadUpload(w, r, flow, svc.MaxUploadBytes())
		if err != nil {
			writeDetectionError(w, flow, err)
			return
		}

		result, err := detect(r.Context(), upload)
		if err != nil {
			writeDetectionError(w, flow, err)
			return
		}
		response.Raw(w, http.StatusOK, result.Verdict())
	}
}

// NewPhishingHandler returns an http.HandlerFunc for POST /api/detect/phishing.
func NewPhishingHandler(svc Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PhishingRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPhishingBody)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, detection.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}

		result, err := svc.DetectPhishing(r.Context(), req)
		if err != nil {
			writeDetectionError(w, models.DetectionPhishing, err)
			return
		}
		response.Raw(w, http.StatusOK, result.Verdict())
	}
}

func writeDetectionError(w http.ResponseWriter, flow models.DetectionType, err error) {
	var verr *detection.ValidationError
	if errors.As(err, &verr) {
		response.Error(w, http.StatusBadRequest, verr.Code, verr.Message, verr.Details)
		return
	}

	var aerr *detection.AnalysisError
	if errors.As(err, &aerr) {
		if aerr.Timeout() {
			response.Error(w, http.StatusGatewayTimeout, "ANALYSIS_TIMEOUT", "Analysis timed out", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "ANALYSIS_FAILED", "Failed to analyze "+flowNoun(flow), nil)
		return
	}

	slog.Error("detection failed", "flow", flow, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to analyze "+flowNoun(flow), nil)
}

func flowNoun(flow models.DetectionType) string {
	switch flow {
	case models.DetectionVoice:
		return "audio"
	case models.DetectionDeepfake:
		return "video"
	default:
		return "content"
	}
}
