package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// MemoryStore implements Store in process memory. Data is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	lastCreated time.Time
	results     map[int64]*models.AnalysisResult
	keys        map[uuid.UUID]*models.APIKey
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		results: make(map[int64]*models.AnalysisResult),
		keys:    make(map[uuid.UUID]*models.APIKey),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// --- Analysis Results ---

func (s *MemoryStore) CreateAnalysisResult(_ context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// CreatedAt never goes backwards, so ID order and time order agree.
	created := s.now()
	if created.Before(s.lastCreated) {
		created = s.lastCreated
	}
	s.lastCreated = created

	result.ID = s.nextID
	result.CreatedAt = created
	s.nextID++

	s.results[result.ID] = result.Clone()
	return nil
}

func (s *MemoryStore) GetAnalysisResult(_ context.Context, id int64) (*models.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListRecentAnalysisResults(_ context.Context, limit int) ([]*models.AnalysisResult, error) {
	limit = NormalizeLimit(limit)

	s.mu.RLock()
	out := make([]*models.AnalysisResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAnalysisResultsByType(_ context.Context, t models.DetectionType) ([]*models.AnalysisResult, error) {
	s.mu.RLock()
	out := make([]*models.AnalysisResult, 0)
	for _, r := range s.results {
		if r.Type == t {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders by CreatedAt desc; ID breaks ties between results
// created within the same clock tick.
func sortNewestFirst(rs []*models.AnalysisResult) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			keys = append(keys, cloneKey(k))
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	k.LastUsedAt = &now
	k.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.ID]; exists {
		return ErrDuplicateKey
	}
	for _, k := range s.keys {
		if k.KeyHash == key.KeyHash {
			return ErrDuplicateKey
		}
	}
	s.keys[key.ID] = cloneKey(key)
	return nil
}

func (s *MemoryStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	keys := make([]*models.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			keys = append(keys, cloneKey(k))
		}
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := s.now()
	k.DeletedAt = &now
	k.UpdatedAt = now
	return nil
}

func cloneKey(k *models.APIKey) *models.APIKey {
	c := *k
	c.Scopes = append([]string(nil), k.Scopes...)
	return &c
}

var _ Store = (*MemoryStore)(nil)
