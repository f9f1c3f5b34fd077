// internal/storage/postgres/target_store.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// TargetStore implements storage.TargetStore using PostgreSQL.
type TargetStore struct {
	pool *Pool
}

// NewTargetStore creates a new TargetStore.
func NewTargetStore(pool *Pool) *TargetStore {
	return &TargetStore{pool: pool}
}

var _ storage.TargetStore = (*TargetStore)(nil)

const targetColumns = `
	id, user_id, asset_address, symbol, name, amount_lamports, slippage_bps,
	min_liquidity_sol::text, max_market_cap_usd::text, priority_fee_lamports,
	trigger_condition, status, auto_close_enabled, take_profit_pct::text, stop_loss_pct::text,
	fill_price::text, amount_received, token_decimals, fill_signature, executed_at,
	attempts, max_attempts, last_attempt_at, notes, is_active, created_at, updated_at`

// Insert adds a new target. A second holder of the (user, asset) slot is
// rejected by the partial unique index and reported as ErrDuplicateKey.
func (s *TargetStore) Insert(ctx context.Context, t *domain.Target) error {
	if t == nil || t.ID == "" || t.UserID == "" || t.AssetAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO snipe_targets (
			id, user_id, asset_address, symbol, name, amount_lamports, slippage_bps,
			min_liquidity_sol, max_market_cap_usd, priority_fee_lamports,
			trigger_condition, status, auto_close_enabled, take_profit_pct, stop_loss_pct,
			attempts, max_attempts, notes, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10,
			$11, $12, $13, $14::numeric, $15::numeric, $16, $17, $18, $19, $20, $21)
	`

	notes := t.Notes
	if notes == nil {
		notes = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.AssetAddress, t.Symbol, t.Name,
		toInt64(t.AmountLamports), int32(t.SlippageBps),
		decText(t.MinLiquiditySOL), nullDecText(t.MaxMarketCapUSD), toInt64(t.PriorityFeeLamports),
		string(t.Trigger), string(t.Status), t.AutoClose.Enabled,
		decText(t.AutoClose.TakeProfitPct), decText(t.AutoClose.StopLossPct),
		t.Attempts, t.MaxAttempts, notes, t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// Get retrieves a target by id.
func (s *TargetStore) Get(ctx context.Context, id string) (*domain.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM snipe_targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// FindActive returns the newest active target for (userID, asset).
func (s *TargetStore) FindActive(ctx context.Context, userID, asset string) (*domain.Target, error) {
	query := `SELECT ` + targetColumns + `
		FROM snipe_targets
		WHERE user_id = $1 AND asset_address = $2 AND is_active
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	t, err := scanTarget(s.pool.QueryRow(ctx, query, userID, asset))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find active target: %w", err)
	}
	return t, nil
}

// ListByStatus returns targets in the given status, oldest first.
func (s *TargetStore) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Target, error) {
	return s.list(ctx, "list targets by status",
		`SELECT `+targetColumns+` FROM snipe_targets WHERE status = $1 ORDER BY created_at ASC, id ASC`,
		string(status))
}

// ListByUser returns all targets of a user, oldest first.
func (s *TargetStore) ListByUser(ctx context.Context, userID string) ([]*domain.Target, error) {
	return s.list(ctx, "list targets by user",
		`SELECT `+targetColumns+` FROM snipe_targets WHERE user_id = $1 ORDER BY created_at ASC, id ASC`,
		userID)
}

// ListPendingByAsset returns pending targets of any user for an asset.
func (s *TargetStore) ListPendingByAsset(ctx context.Context, asset string) ([]*domain.Target, error) {
	return s.list(ctx, "list pending targets by asset",
		`SELECT `+targetColumns+` FROM snipe_targets WHERE asset_address = $1 AND status = 'pending' ORDER BY created_at ASC, id ASC`,
		asset)
}

// ClaimForExecution is a single conditional UPDATE. Concurrent claims that
// slip past NOT EXISTS are stopped by the partial unique index.
func (s *TargetStore) ClaimForExecution(ctx context.Context, id string, at time.Time) (*domain.Target, error) {
	query := `
		UPDATE snipe_targets t
		SET status = 'executing', is_active = TRUE, last_attempt_at = $2, updated_at = $2
		WHERE t.id = $1
		  AND t.status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM snipe_targets s
			WHERE s.user_id = t.user_id
			  AND s.asset_address = t.asset_address
			  AND s.id <> t.id
			  AND s.status IN ('executing', 'executed', 'closed')
		  )
		RETURNING ` + targetColumns

	t, err := scanTarget(s.pool.QueryRow(ctx, query, id, at))
	switch {
	case err == nil:
		return t, nil
	case isDuplicateKeyError(err), isNotFoundError(err):
		return nil, s.explainRejectedClaim(ctx, id)
	default:
		return nil, fmt.Errorf("claim target: %w", err)
	}
}

// explainRejectedClaim maps a claim that updated nothing to the right error.
func (s *TargetStore) explainRejectedClaim(ctx context.Context, id string) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status != domain.StatusPending {
		return storage.ErrInvalidTransition
	}
	holder, err := s.findHolder(ctx, cur.UserID, cur.AssetAddress, cur.ID)
	if err != nil {
		return err
	}
	return &storage.ConflictError{HolderID: holder.ID, HolderStatus: holder.Status}
}

func (s *TargetStore) findHolder(ctx context.Context, userID, asset, exceptID string) (*domain.Target, error) {
	query := `SELECT ` + targetColumns + `
		FROM snipe_targets
		WHERE user_id = $1 AND asset_address = $2 AND id <> $3
		  AND status IN ('executing', 'executed', 'closed')
		LIMIT 1`

	t, err := scanTarget(s.pool.QueryRow(ctx, query, userID, asset, exceptID))
	if err != nil {
		if isNotFoundError(err) {
			// The holder moved on between the update and this read.
			return nil, storage.ErrInvalidTransition
		}
		return nil, fmt.Errorf("find holder: %w", err)
	}
	return t, nil
}

// UpdateStatus applies upd if the current status is one of from.
func (s *TargetStore) UpdateStatus(ctx context.Context, id string, from []domain.Status, upd storage.StatusUpdate) (*domain.Target, error) {
	fromText := make([]string, len(from))
	for i, st := range from {
		fromText[i] = string(st)
	}

	var (
		fillPrice  *string
		fillAmount *int64
		fillDec    *int16
		fillSig    *string
		fillAt     *time.Time
	)
	if f := upd.Fill; f != nil {
		p := decText(f.Price)
		a := toInt64(f.AmountReceived)
		d := int16(f.Decimals)
		fillPrice, fillAmount, fillDec, fillSig, fillAt = &p, &a, &d, &f.Signature, &f.ExecutedAt
	}
	increment := 0
	if upd.IncrementAttempts {
		increment = 1
	}

	query := `
		UPDATE snipe_targets
		SET status = $3,
		    is_active = $4,
		    notes = CASE WHEN $5::text = '' THEN notes ELSE array_append(notes, $5::text) END,
		    attempts = attempts + $6,
		    fill_price = COALESCE($7::numeric, fill_price),
		    amount_received = COALESCE($8::bigint, amount_received),
		    token_decimals = COALESCE($9::smallint, token_decimals),
		    fill_signature = COALESCE($10::text, fill_signature),
		    executed_at = COALESCE($11::timestamptz, executed_at),
		    auto_close_enabled = auto_close_enabled AND NOT $12::boolean,
		    updated_at = $13
		WHERE id = $1 AND status = ANY($2)
		RETURNING ` + targetColumns

	t, err := scanTarget(s.pool.QueryRow(ctx, query,
		id, fromText, string(upd.Status), upd.Status.IsActive(), upd.Note, increment,
		fillPrice, fillAmount, fillDec, fillSig, fillAt, upd.DisableAutoClose, upd.At,
	))
	switch {
	case err == nil:
		return t, nil
	case isDuplicateKeyError(err):
		cur, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		holder, herr := s.findHolder(ctx, cur.UserID, cur.AssetAddress, cur.ID)
		if herr != nil {
			return nil, herr
		}
		return nil, &storage.ConflictError{HolderID: holder.ID, HolderStatus: holder.Status}
	case isNotFoundError(err):
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, storage.ErrInvalidTransition
	default:
		return nil, fmt.Errorf("update target status: %w", err)
	}
}

// AppendNote adds a note without changing status.
func (s *TargetStore) AppendNote(ctx context.Context, id, note string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE snipe_targets SET notes = array_append(notes, $2::text), updated_at = $3 WHERE id = $1`,
		id, note, at)
	if err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ExpirePending cancels pending targets created at or before olderThan.
func (s *TargetStore) ExpirePending(ctx context.Context, olderThan time.Time, reason string, at time.Time) ([]*domain.Target, error) {
	query := `
		UPDATE snipe_targets
		SET status = 'cancelled', is_active = FALSE,
		    notes = array_append(notes, $2::text), updated_at = $3
		WHERE status = 'pending' AND created_at <= $1
		RETURNING ` + targetColumns

	rows, err := s.pool.Query(ctx, query, olderThan, reason, at)
	if err != nil {
		return nil, fmt.Errorf("expire pending targets: %w", err)
	}
	defer rows.Close()
	return scanTargets(rows)
}

func (s *TargetStore) list(ctx context.Context, op, query string, args ...any) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	return scanTargets(rows)
}

func scanTarget(row pgx.Row) (*domain.Target, error) {
	var (
		t                         domain.Target
		amount, priorityFee       int64
		slippage                  int32
		minLiq, tp, sl            string
		maxMcap, fillPrice        *string
		amountReceived            *int64
		tokenDecimals             *int16
		fillSig                   *string
		executedAt, lastAttemptAt *time.Time
		trigger, status           string
		err                       error
	)

	if err = row.Scan(
		&t.ID, &t.UserID, &t.AssetAddress, &t.Symbol, &t.Name, &amount, &slippage,
		&minLiq, &maxMcap, &priorityFee,
		&trigger, &status, &t.AutoClose.Enabled, &tp, &sl,
		&fillPrice, &amountReceived, &tokenDecimals, &fillSig, &executedAt,
		&t.Attempts, &t.MaxAttempts, &lastAttemptAt, &t.Notes, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.AmountLamports = toUint64(amount)
	t.PriorityFeeLamports = toUint64(priorityFee)
	t.SlippageBps = uint16(slippage)
	t.Trigger = domain.Trigger(trigger)
	t.Status = domain.Status(status)
	t.LastAttemptAt = lastAttemptAt

	if t.MinLiquiditySOL, err = parseDec(minLiq); err != nil {
		return nil, err
	}
	if t.MaxMarketCapUSD, err = parseNullDec(maxMcap); err != nil {
		return nil, err
	}
	if t.AutoClose.TakeProfitPct, err = parseDec(tp); err != nil {
		return nil, err
	}
	if t.AutoClose.StopLossPct, err = parseDec(sl); err != nil {
		return nil, err
	}

	if fillPrice != nil && amountReceived != nil {
		price, err := parseDec(*fillPrice)
		if err != nil {
			return nil, err
		}
		fill := &domain.Fill{Price: price, AmountReceived: toUint64(*amountReceived)}
		if tokenDecimals != nil {
			fill.Decimals = uint8(*tokenDecimals)
		}
		if fillSig != nil {
			fill.Signature = *fillSig
		}
		if executedAt != nil {
			fill.ExecutedAt = *executedAt
		}
		t.Fill = fill
	}
	return &t, nil
}

func scanTargets(rows pgx.Rows) ([]*domain.Target, error) {
	var result []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return result, nil
}
