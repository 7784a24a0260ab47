package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/threatlens/internal/api/response"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// HistoryReader is the read side of the result store.
type HistoryReader interface {
	GetAnalysisResult(ctx context.Context, id int64) (*models.AnalysisResult, error)
	ListRecentAnalysisResults(ctx context.Context, limit int) ([]*models.AnalysisResult, error)
	ListAnalysisResultsByType(ctx context.Context, t models.DetectionType) ([]*models.AnalysisResult, error)
}

// NewListHistoryHandler returns an http.HandlerFunc for GET /api/history.
// ?type filters by detection flow, ?limit bounds the result count.
func NewListHistoryHandler(s HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", nil)
				return
			}
			limit = n
		}
		limit = store.NormalizeLimit(limit)

		var (
			results []*models.AnalysisResult
			err     error
		)
		if raw := q.Get("type"); raw != "" {
			t, perr := models.ParseDetectionType(raw)
			if perr != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_TYPE", perr.Error(), nil)
				return
			}
			results, err = s.ListAnalysisResultsByType(r.Context(), t)
			if len(results) > limit {
				results = results[:limit]
			}
		} else {
			results, err = s.ListRecentAnalysisResults(r.Context(), limit)
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch history", nil)
			return
		}

		if results == nil {
			results = []*models.AnalysisResult{}
		}
		response.Raw(w, http.StatusOK, results)
	}
}

// NewGetHistoryHandler returns an http.HandlerFunc for GET /api/history/{id}.
func NewGetHistoryHandler(s HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_ID", "Invalid result ID", nil)
			return
		}

		result, err := s.GetAnalysisResult(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis result not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch result", nil)
			return
		}
		response.Raw(w, http.StatusOK, result)
	}
}
