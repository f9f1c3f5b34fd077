// internal/storage/postgres/execution_store.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const executionColumns = `
	id, target_id, user_id, asset_address, side, status, amount_in, amount_out, quoted_out,
	price::text, requested_slippage_bps, actual_slippage_bps, priority_fee, tip_lamports,
	path, signature, slot, detected_at, started_at, completed_at, confirmed_at, total_ms,
	error_category, error_message, pl_current_value::text, pl_unrealized::text, pl_updated_at`

// Insert adds a new pending record.
func (s *ExecutionStore) Insert(ctx context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.ID == "" || r.TargetID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO snipe_executions (
			id, target_id, user_id, asset_address, side, status, amount_in, quoted_out,
			requested_slippage_bps, priority_fee, tip_lamports, detected_at, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.pool.Exec(ctx, query,
		r.ID, r.TargetID, r.UserID, r.AssetAddress, string(r.Side), string(r.Status),
		toInt64(r.AmountIn), toInt64(r.QuotedOut), int32(r.RequestedSlippageBps),
		toInt64(r.PriorityFee), toInt64(r.TipLamports), r.DetectedAt, r.StartedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Complete stores the outcome of a pending record.
func (s *ExecutionStore) Complete(ctx context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.Status == domain.ExecutionPending {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE snipe_executions
		SET status = $2, amount_out = $3, quoted_out = $4, price = $5::numeric,
		    actual_slippage_bps = $6, priority_fee = $7, tip_lamports = $8, path = $9,
		    signature = $10, slot = $11, completed_at = $12, confirmed_at = $13, total_ms = $14,
		    error_category = $15, error_message = $16
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Status), toInt64(r.AmountOut), toInt64(r.QuotedOut), decText(r.Price),
		r.ActualSlippageBps, toInt64(r.PriorityFee), toInt64(r.TipLamports), string(r.Path),
		r.Signature, toInt64(r.Slot), r.CompletedAt, r.ConfirmedAt, r.TotalMs,
		string(r.ErrorCategory), r.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, r.ID); err != nil {
			return err
		}
		return storage.ErrInvalidTransition
	}
	return nil
}

// UpdateProfitLoss refreshes the valuation of a successful record.
func (s *ExecutionStore) UpdateProfitLoss(ctx context.Context, id string, pl domain.ProfitLoss) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE snipe_executions
		SET pl_current_value = $2::numeric, pl_unrealized = $3::numeric, pl_updated_at = $4
		WHERE id = $1 AND status = 'success'`,
		id, decText(pl.CurrentValue), decText(pl.UnrealizedPnL), pl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profit/loss: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return storage.ErrInvalidTransition
	}
	return nil
}

// Get retrieves a record by id.
func (s *ExecutionStore) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	r, err := scanExecution(s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM snipe_executions WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return r, nil
}

// ListByTarget returns the attempts for a target in start order.
func (s *ExecutionStore) ListByTarget(ctx context.Context, targetID string) ([]*domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM snipe_executions WHERE target_id = $1 ORDER BY started_at ASC, id ASC`,
		targetID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExecutionRecord
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Stats aggregates a user's records started at or after since.
func (s *ExecutionStore) Stats(ctx context.Context, userID string, since time.Time) ([]domain.ExecutionStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount_in), 0)::bigint, COALESCE(AVG(total_ms), 0)::float8
		FROM snipe_executions
		WHERE user_id = $1 AND started_at >= $2
		GROUP BY status
		ORDER BY status`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.ExecutionStats
	for rows.Next() {
		var (
			st       domain.ExecutionStats
			status   string
			count    int64
			amountIn int64
		)
		if err := rows.Scan(&status, &count, &amountIn, &st.AvgMs); err != nil {
			return nil, fmt.Errorf("scan execution stats: %w", err)
		}
		st.Status = domain.ExecutionStatus(status)
		st.Count = int(count)
		st.TotalAmountIn = toUint64(amountIn)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.ExecutionRecord, error) {
	var (
		r                              domain.ExecutionRecord
		side, status, path, category   string
		amountIn, amountOut, quotedOut int64
		priorityFee, tipLamports, slot int64
		requestedSlippage              int32
		price                          string
		plValue, plUnrealized          *string
		plUpdatedAt                    *time.Time
	)

	if err := row.Scan(
		&r.ID, &r.TargetID, &r.UserID, &r.AssetAddress, &side, &status, &amountIn, &amountOut, &quotedOut,
		&price, &requestedSlippage, &r.ActualSlippageBps, &priorityFee, &tipLamports,
		&path, &r.Signature, &slot, &r.DetectedAt, &r.StartedAt, &r.CompletedAt, &r.ConfirmedAt, &r.TotalMs,
		&category, &r.ErrorMessage, &plValue, &plUnrealized, &plUpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Side = domain.Side(side)
	r.Status = domain.ExecutionStatus(status)
	r.Path = domain.SubmissionPath(path)
	r.ErrorCategory = domain.ErrorCategory(category)
	r.AmountIn = toUint64(amountIn)
	r.AmountOut = toUint64(amountOut)
	r.QuotedOut = toUint64(quotedOut)
	r.PriorityFee = toUint64(priorityFee)
	r.TipLamports = toUint64(tipLamports)
	r.Slot = toUint64(slot)
	r.RequestedSlippageBps = uint16(requestedSlippage)

	var err error
	if r.Price, err = parseDec(price); err != nil {
		return nil, err
	}
	if plValue != nil && plUnrealized != nil && plUpdatedAt != nil {
		pl := &domain.ProfitLoss{UpdatedAt: *plUpdatedAt}
		if pl.CurrentValue, err = parseDec(*plValue); err != nil {
			return nil, err
		}
		if pl.UnrealizedPnL, err = parseDec(*plUnrealized); err != nil {
			return nil, err
		}
		r.ProfitLoss = pl
	}
	return &r, nil
}
