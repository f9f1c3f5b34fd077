// internal/storage/memory/watched_store.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// WatchedAccountStore is an in-memory implementation of storage.WatchedAccountStore.
type WatchedAccountStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WatchedAccount // keyed by role|address
}

// NewWatchedAccountStore creates a new in-memory watched account store.
func NewWatchedAccountStore() *WatchedAccountStore {
	return &WatchedAccountStore{data: make(map[string]*domain.WatchedAccount)}
}

var _ storage.WatchedAccountStore = (*WatchedAccountStore)(nil)

func watchedKey(address string, role domain.AccountRole) string {
	return string(role) + "|" + address
}

// Add inserts or reactivates an account.
func (s *WatchedAccountStore) Add(_ context.Context, a *domain.WatchedAccount) error {
	if a == nil || a.Address == "" || a.Role == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := watchedKey(a.Address, a.Role)
	if cur, ok := s.data[key]; ok {
		cur.Active = true
		cur.Label = a.Label
		cur.AddedBy = a.AddedBy
		cur.UpdatedAt = a.UpdatedAt
		return nil
	}
	c := *a
	c.Active = true
	s.data[key] = &c
	return nil
}

// Remove deactivates an account.
func (s *WatchedAccountStore) Remove(_ context.Context, address string, role domain.AccountRole, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[watchedKey(address, role)]
	if !ok || !cur.Active {
		return storage.ErrNotFound
	}
	cur.Active = false
	cur.UpdatedAt = at
	return nil
}

// ListActive returns active accounts with the given role.
func (s *WatchedAccountStore) ListActive(_ context.Context, role domain.AccountRole) ([]*domain.WatchedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WatchedAccount
	for _, a := range s.data {
		if a.Role == role && a.Active {
			c := *a
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}
