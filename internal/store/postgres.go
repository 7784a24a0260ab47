package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Analysis Results ---

const analysisColumns = `id, type, file_name, file_size, content_text, score, status, factors, degraded, scorer, artifact_key, created_at`

func (s *PostgresStore) CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error {
	factors := result.Factors
	if factors == nil {
		factors = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO analysis_results (type, file_name, file_size, content_text, score, status, factors, degraded, scorer, artifact_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		result.Type, result.FileName, result.FileSize, result.ContentText, result.Score,
		result.Status, factors, result.Degraded, result.Scorer, result.ArtifactKey,
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analysis result: %w", err)
	}
	result.CreatedAt = result.CreatedAt.UTC()
	return nil
}

func (s *PostgresStore) GetAnalysisResult(ctx context.Context, id int64) (*models.AnalysisResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results WHERE id = $1`, id)
	r, err := scanAnalysisResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRecentAnalysisResults(ctx context.Context, limit int) ([]*models.AnalysisResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
		 ORDER BY created_at DESC, id DESC LIMIT $1`, NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent analysis results: %w", err)
	}
	return collectAnalysisResults(rows)
}

func (s *PostgresStore) ListAnalysisResultsByType(ctx context.Context, t models.DetectionType) ([]*models.AnalysisResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
		 WHERE type = $1 ORDER BY created_at DESC, id DESC`, t)
	if err != nil {
		return nil, fmt.Errorf("list analysis results by type: %w", err)
	}
	return collectAnalysisResults(rows)
}

func collectAnalysisResults(rows pgx.Rows) ([]*models.AnalysisResult, error) {
	defer rows.Close()

	results := make([]*models.AnalysisResult, 0)
	for rows.Next() {
		r, err := scanAnalysisResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanAnalysisResult(row pgx.Row) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	if err := row.Scan(&r.ID, &r.Type, &r.FileName, &r.FileSize, &r.ContentText, &r.Score,
		&r.Status, &r.Factors, &r.Degraded, &r.Scorer, &r.ArtifactKey, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
