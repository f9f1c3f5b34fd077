// internal/storage/memory/alert_store.go
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{seen: make(map[string]time.Time)}
}

var _ storage.AlertStore = (*AlertStore)(nil)

// RecordAlert returns true the first time the triple is seen.
func (s *AlertStore) RecordAlert(_ context.Context, asset string, kind domain.DetectionKind, userID string, at time.Time) (bool, error) {
	if asset == "" || kind == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := asset + "|" + string(kind) + "|" + userID
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = at
	return true, nil
}
