// internal/storage/postgres/alert_store.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

var _ storage.AlertStore = (*AlertStore)(nil)

// RecordAlert returns true the first time the triple is seen.
func (s *AlertStore) RecordAlert(ctx context.Context, asset string, kind domain.DetectionKind, userID string, at time.Time) (bool, error) {
	if asset == "" || kind == "" {
		return false, storage.ErrInvalidInput
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO detection_alerts (asset_address, kind, user_id, sent_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`, asset, string(kind), userID, at)
	if err != nil {
		return false, fmt.Errorf("record alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
