// internal/storage/memory/target_store.go
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// TargetStore is an in-memory implementation of storage.TargetStore.
// All mutations run under one lock, which makes ClaimForExecution atomic.
type TargetStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Target
}

// NewTargetStore creates a new in-memory target store.
func NewTargetStore() *TargetStore {
	return &TargetStore{data: make(map[string]*domain.Target)}
}

var _ storage.TargetStore = (*TargetStore)(nil)

// Insert adds a new target. Returns ErrDuplicateKey if the id exists or the
// target would be a second holder of its (user, asset) slot.
func (s *TargetStore) Insert(_ context.Context, t *domain.Target) error {
	if t == nil || t.ID == "" || t.UserID == "" || t.AssetAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if t.Status.Holds() && s.holderLocked(t.UserID, t.AssetAddress, t.ID) != nil {
		return storage.ErrDuplicateKey
	}
	s.data[t.ID] = t.Clone()
	return nil
}

// Get retrieves a target by id.
func (s *TargetStore) Get(_ context.Context, id string) (*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// FindActive returns the newest active target for (userID, asset).
func (s *TargetStore) FindActive(_ context.Context, userID, asset string) (*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Target
	for _, t := range s.data {
		if t.UserID != userID || t.AssetAddress != asset || !t.IsActive {
			continue
		}
		if found == nil || t.CreatedAt.After(found.CreatedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found.Clone(), nil
}

// ListByStatus returns targets in the given status, oldest first.
func (s *TargetStore) ListByStatus(_ context.Context, status domain.Status) ([]*domain.Target, error) {
	return s.filter(func(t *domain.Target) bool { return t.Status == status }), nil
}

// ListByUser returns all targets of a user, oldest first.
func (s *TargetStore) ListByUser(_ context.Context, userID string) ([]*domain.Target, error) {
	return s.filter(func(t *domain.Target) bool { return t.UserID == userID }), nil
}

// ListPendingByAsset returns pending targets of any user for an asset.
func (s *TargetStore) ListPendingByAsset(_ context.Context, asset string) ([]*domain.Target, error) {
	return s.filter(func(t *domain.Target) bool {
		return t.AssetAddress == asset && t.Status == domain.StatusPending
	}), nil
}

// ClaimForExecution moves a pending target to executing under the store lock.
func (s *TargetStore) ClaimForExecution(_ context.Context, id string, at time.Time) (*domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if t.Status != domain.StatusPending {
		return nil, storage.ErrInvalidTransition
	}
	if holder := s.holderLocked(t.UserID, t.AssetAddress, t.ID); holder != nil {
		return nil, &storage.ConflictError{HolderID: holder.ID, HolderStatus: holder.Status}
	}

	t.Status = domain.StatusExecuting
	t.IsActive = true
	t.LastAttemptAt = &at
	t.UpdatedAt = at
	return t.Clone(), nil
}

// UpdateStatus applies upd if the current status is one of from.
func (s *TargetStore) UpdateStatus(_ context.Context, id string, from []domain.Status, upd storage.StatusUpdate) (*domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !slices.Contains(from, t.Status) {
		return nil, storage.ErrInvalidTransition
	}
	if upd.Status.Holds() && !t.Status.Holds() {
		if holder := s.holderLocked(t.UserID, t.AssetAddress, t.ID); holder != nil {
			return nil, &storage.ConflictError{HolderID: holder.ID, HolderStatus: holder.Status}
		}
	}

	t.Status = upd.Status
	t.IsActive = upd.Status.IsActive()
	if upd.Note != "" {
		t.Notes = append(t.Notes, upd.Note)
	}
	if upd.IncrementAttempts {
		t.Attempts++
	}
	if upd.Fill != nil {
		f := *upd.Fill
		t.Fill = &f
	}
	if upd.DisableAutoClose {
		t.AutoClose.Enabled = false
	}
	t.UpdatedAt = upd.At
	return t.Clone(), nil
}

// AppendNote adds a note without changing status.
func (s *TargetStore) AppendNote(_ context.Context, id, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.Notes = append(t.Notes, note)
	t.UpdatedAt = at
	return nil
}

// ExpirePending cancels pending targets created at or before olderThan.
func (s *TargetStore) ExpirePending(_ context.Context, olderThan time.Time, reason string, at time.Time) ([]*domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*domain.Target
	for _, t := range s.data {
		if t.Status != domain.StatusPending || t.CreatedAt.After(olderThan) {
			continue
		}
		t.Status = domain.StatusCancelled
		t.IsActive = false
		t.Notes = append(t.Notes, reason)
		t.UpdatedAt = at
		expired = append(expired, t.Clone())
	}
	sortTargets(expired)
	return expired, nil
}

// holderLocked returns a sibling target holding the (user, asset) slot.
func (s *TargetStore) holderLocked(userID, asset, exceptID string) *domain.Target {
	for _, t := range s.data {
		if t.ID != exceptID && t.UserID == userID && t.AssetAddress == asset && t.Status.Holds() {
			return t
		}
	}
	return nil
}

func (s *TargetStore) filter(keep func(*domain.Target) bool) []*domain.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Target
	for _, t := range s.data {
		if keep(t) {
			result = append(result, t.Clone())
		}
	}
	sortTargets(result)
	return result
}

func sortTargets(ts []*domain.Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}
