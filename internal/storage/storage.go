// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// StatusUpdate describes a guarded status transition.
type StatusUpdate struct {
	Status            domain.Status
	Note              string
	IncrementAttempts bool
	Fill              *domain.Fill
	DisableAutoClose  bool
	At                time.Time
}

// TargetStore persists snipe targets. Every mutation is a single atomic
// conditional write.
type TargetStore interface {
	Insert(ctx context.Context, t *domain.Target) error
	Get(ctx context.Context, id string) (*domain.Target, error)
	// FindActive returns the newest active target for (userID, asset) or ErrNotFound.
	FindActive(ctx context.Context, userID, asset string) (*domain.Target, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Target, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Target, error)
	ListPendingByAsset(ctx context.Context, asset string) ([]*domain.Target, error)

	// ClaimForExecution moves a pending target to executing only if no other
	// target for the same (user, asset) is executing, executed or closed.
	// Returns *ConflictError when a sibling holds the slot and
	// ErrInvalidTransition when the target is no longer pending.
	ClaimForExecution(ctx context.Context, id string, at time.Time) (*domain.Target, error)

	// UpdateStatus applies upd only if the current status is one of from.
	UpdateStatus(ctx context.Context, id string, from []domain.Status, upd StatusUpdate) (*domain.Target, error)
	AppendNote(ctx context.Context, id, note string, at time.Time) error

	// ExpirePending cancels every pending target created at or before olderThan.
	ExpirePending(ctx context.Context, olderThan time.Time, reason string, at time.Time) ([]*domain.Target, error)
}

// ExecutionStore persists execution audit rows.
type ExecutionStore interface {
	Insert(ctx context.Context, r *domain.ExecutionRecord) error
	// Complete writes the outcome of a pending record. A record is completed once.
	Complete(ctx context.Context, r *domain.ExecutionRecord) error
	UpdateProfitLoss(ctx context.Context, id string, pl domain.ProfitLoss) error
	Get(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListByTarget(ctx context.Context, targetID string) ([]*domain.ExecutionRecord, error)
	Stats(ctx context.Context, userID string, since time.Time) ([]domain.ExecutionStats, error)
}

// WatchedAccountStore persists the accounts driving listener subscriptions.
type WatchedAccountStore interface {
	// Add inserts or reactivates an account.
	Add(ctx context.Context, a *domain.WatchedAccount) error
	// Remove deactivates an account; ErrNotFound if it is not active.
	Remove(ctx context.Context, address string, role domain.AccountRole, at time.Time) error
	ListActive(ctx context.Context, role domain.AccountRole) ([]*domain.WatchedAccount, error)
}

// AlertStore remembers which detection alerts were already sent.
type AlertStore interface {
	// RecordAlert returns true the first time (asset, kind, userID) is seen.
	RecordAlert(ctx context.Context, asset string, kind domain.DetectionKind, userID string, at time.Time) (bool, error)
}

// Stores groups the collections used by the sniper.
type Stores struct {
	Targets    TargetStore
	Executions ExecutionStore
	Watched    WatchedAccountStore
	Alerts     AlertStore
}
