package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// Store is the data access interface. All persistence goes through here.
// Implementations must be safe for concurrent use.
type Store interface {
	Ping(ctx context.Context) error

	// CreateAnalysisResult assigns ID and CreatedAt on result and persists it.
	CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysisResult(ctx context.Context, id int64) (*models.AnalysisResult, error)
	// ListRecentAnalysisResults returns results newest first, truncated to limit.
	ListRecentAnalysisResults(ctx context.Context, limit int) ([]*models.AnalysisResult, error)
	ListAnalysisResultsByType(ctx context.Context, t models.DetectionType) ([]*models.AnalysisResult, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// NormalizeLimit applies the default and maximum to a caller-supplied limit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
