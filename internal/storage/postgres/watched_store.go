// internal/storage/postgres/watched_store.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// WatchedAccountStore implements storage.WatchedAccountStore using PostgreSQL.
type WatchedAccountStore struct {
	pool *Pool
}

// NewWatchedAccountStore creates a new WatchedAccountStore.
func NewWatchedAccountStore(pool *Pool) *WatchedAccountStore {
	return &WatchedAccountStore{pool: pool}
}

var _ storage.WatchedAccountStore = (*WatchedAccountStore)(nil)

// Add inserts or reactivates an account.
func (s *WatchedAccountStore) Add(ctx context.Context, a *domain.WatchedAccount) error {
	if a == nil || a.Address == "" || a.Role == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO watched_accounts (address, role, label, added_by, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		ON CONFLICT (address, role) DO UPDATE
		SET active = TRUE, label = EXCLUDED.label, added_by = EXCLUDED.added_by, updated_at = EXCLUDED.updated_at`,
		a.Address, string(a.Role), a.Label, a.AddedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("add watched account: %w", err)
	}
	return nil
}

// Remove deactivates an account.
func (s *WatchedAccountStore) Remove(ctx context.Context, address string, role domain.AccountRole, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE watched_accounts SET active = FALSE, updated_at = $3 WHERE address = $1 AND role = $2 AND active`,
		address, string(role), at)
	if err != nil {
		return fmt.Errorf("remove watched account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListActive returns active accounts with the given role.
func (s *WatchedAccountStore) ListActive(ctx context.Context, role domain.AccountRole) ([]*domain.WatchedAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, role, label, added_by, active, created_at, updated_at
		FROM watched_accounts
		WHERE role = $1 AND active
		ORDER BY address`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list watched accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.WatchedAccount
	for rows.Next() {
		var (
			a       domain.WatchedAccount
			roleStr string
		)
		if err := rows.Scan(&a.Address, &roleStr, &a.Label, &a.AddedBy, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watched account: %w", err)
		}
		a.Role = domain.AccountRole(roleStr)
		result = append(result, &a)
	}
	return result, rows.Err()
}
