// internal/storage/memory/execution_store.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionRecord
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{data: make(map[string]*domain.ExecutionRecord)}
}

var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// Insert adds a new pending record.
func (s *ExecutionStore) Insert(_ context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.ID == "" || r.TargetID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// Complete stores the outcome of a pending record.
func (s *ExecutionStore) Complete(_ context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.Status == domain.ExecutionPending {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[r.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Status != domain.ExecutionPending {
		return storage.ErrInvalidTransition
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// UpdateProfitLoss refreshes the valuation of a completed record.
func (s *ExecutionStore) UpdateProfitLoss(_ context.Context, id string, pl domain.ProfitLoss) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Status != domain.ExecutionSuccess {
		return storage.ErrInvalidTransition
	}
	cur.ProfitLoss = &pl
	return nil
}

// Get retrieves a record by id.
func (s *ExecutionStore) Get(_ context.Context, id string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// ListByTarget returns the attempts for a target in start order.
func (s *ExecutionStore) ListByTarget(_ context.Context, targetID string) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionRecord
	for _, r := range s.data {
		if r.TargetID == targetID {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

// Stats aggregates a user's records started at or after since.
func (s *ExecutionStore) Stats(_ context.Context, userID string, since time.Time) ([]domain.ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		count    int
		amountIn uint64
		totalMs  int64
	}
	groups := make(map[domain.ExecutionStatus]*acc)
	for _, r := range s.data {
		if r.UserID != userID || r.StartedAt.Before(since) {
			continue
		}
		a := groups[r.Status]
		if a == nil {
			a = &acc{}
			groups[r.Status] = a
		}
		a.count++
		a.amountIn += r.AmountIn
		a.totalMs += r.TotalMs
	}

	stats := make([]domain.ExecutionStats, 0, len(groups))
	for status, a := range groups {
		stats = append(stats, domain.ExecutionStats{
			Status:        status,
			Count:         a.count,
			TotalAmountIn: a.amountIn,
			AvgMs:         float64(a.totalMs) / float64(a.count),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}
