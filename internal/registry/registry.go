// internal/registry/registry.go
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/logger"
)

// ExpiryReason is the note attached to pending targets cancelled by ExpireStale.
const ExpiryReason = "no liquidity found in time"

// Config controls target lifecycle limits.
type Config struct {
	MaxPendingAge time.Duration `mapstructure:"max_pending_age"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

// DefaultConfig returns the default registry limits.
func DefaultConfig() Config {
	return Config{MaxPendingAge: 15 * time.Minute, MaxAttempts: 3}
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(event events.Event) error
}

// NewTarget is the input of Create.
type NewTarget struct {
	UserID              string
	AssetAddress        string
	Symbol              string
	Name                string
	AmountLamports      uint64
	SlippageBps         uint16
	MinLiquiditySOL     decimal.Decimal
	MaxMarketCapUSD     decimal.NullDecimal
	PriorityFeeLamports uint64
	Trigger             domain.Trigger
	AutoClose           domain.AutoClose
	MaxAttempts         int
	Note                string
}

// Validate checks the fields required to create a target.
func (n NewTarget) Validate() error {
	switch {
	case n.UserID == "":
		return fmt.Errorf("%w: user id cannot be empty", ErrInvalidTarget)
	case n.AssetAddress == "":
		return fmt.Errorf("%w: asset address cannot be empty", ErrInvalidTarget)
	case n.AmountLamports == 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTarget)
	case n.SlippageBps == 0 || n.SlippageBps > 10_000:
		return fmt.Errorf("%w: slippage %d bps out of range", ErrInvalidTarget, n.SlippageBps)
	case n.MinLiquiditySOL.IsNegative():
		return fmt.Errorf("%w: minimum liquidity cannot be negative", ErrInvalidTarget)
	case n.MaxMarketCapUSD.Valid && !n.MaxMarketCapUSD.Decimal.IsPositive():
		return fmt.Errorf("%w: market cap ceiling must be positive", ErrInvalidTarget)
	case !n.Trigger.Valid():
		return fmt.Errorf("%w: unknown trigger %q", ErrInvalidTarget, n.Trigger)
	case n.AutoClose.Enabled && !n.AutoClose.TakeProfitPct.IsPositive():
		return fmt.Errorf("%w: take profit must be positive", ErrInvalidTarget)
	}
	if _, err := solana.PublicKeyFromBase58(n.AssetAddress); err != nil {
		return fmt.Errorf("%w: asset address %q: %v", ErrInvalidTarget, n.AssetAddress, err)
	}
	return nil
}

// Registry owns the target state machine. Every transition is a single
// conditional write in the store.
type Registry struct {
	store     storage.TargetStore
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a registry.
func New(store storage.TargetStore, publisher Publisher, cfg Config, logger *zap.Logger) *Registry {
	d := DefaultConfig()
	if cfg.MaxPendingAge <= 0 {
		cfg.MaxPendingAge = d.MaxPendingAge
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	return &Registry{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("registry"),
		now:       time.Now,
	}
}

// Create adds a pending target. If the user already has an active target for
// the asset, a note is appended to it and it is returned with created=false.
func (r *Registry) Create(ctx context.Context, in NewTarget) (*domain.Target, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	now := r.now()
	existing, err := r.store.FindActive(ctx, in.UserID, in.AssetAddress)
	switch {
	case err == nil:
		note := fmt.Sprintf("duplicate request at %s", now.UTC().Format(time.RFC3339))
		if in.Note != "" {
			note += ": " + in.Note
		}
		if err := r.store.AppendNote(ctx, existing.ID, note, now); err != nil {
			return nil, false, fmt.Errorf("append note to %s: %w", existing.ID, err)
		}
		existing.Notes = append(existing.Notes, note)
		r.logger.Debug("Target already active", logger.TargetFields(existing)...)
		return existing, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, fmt.Errorf("find active target: %w", err)
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.cfg.MaxAttempts
	}
	t := &domain.Target{
		ID:                  uuid.NewString(),
		UserID:              in.UserID,
		AssetAddress:        in.AssetAddress,
		Symbol:              in.Symbol,
		Name:                in.Name,
		AmountLamports:      in.AmountLamports,
		SlippageBps:         in.SlippageBps,
		MinLiquiditySOL:     in.MinLiquiditySOL,
		MaxMarketCapUSD:     in.MaxMarketCapUSD,
		PriorityFeeLamports: in.PriorityFeeLamports,
		Trigger:             in.Trigger,
		Status:              domain.StatusPending,
		AutoClose:           in.AutoClose,
		MaxAttempts:         maxAttempts,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if in.Note != "" {
		t.Notes = []string{in.Note}
	}
	if err := r.store.Insert(ctx, t); err != nil {
		return nil, false, fmt.Errorf("insert target: %w", err)
	}

	r.logger.Info("Target created", logger.TargetFields(t)...)
	r.publish(events.TargetCreated, t, "", "")
	return t, true, nil
}

// Claim moves a pending target to executing. When a sibling target already
// holds the position the target is cancelled and ErrDuplicatePosition returned.
func (r *Registry) Claim(ctx context.Context, id string) (*domain.Target, error) {
	t, err := r.store.ClaimForExecution(ctx, id, r.now())
	if err == nil {
		return t, nil
	}

	var conflict *storage.ConflictError
	if !errors.As(err, &conflict) {
		return nil, fmt.Errorf("claim %s: %w", id, err)
	}

	note := fmt.Sprintf("duplicate of target %s (%s)", conflict.HolderID, conflict.HolderStatus)
	cancelled, cerr := r.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusPending}, storage.StatusUpdate{
		Status: domain.StatusCancelled,
		Note:   note,
		At:     r.now(),
	})
	if cerr != nil {
		return nil, fmt.Errorf("cancel duplicate %s: %w", id, cerr)
	}
	r.logger.Warn("Duplicate position", append(logger.TargetFields(cancelled), zap.String("holder", conflict.HolderID))...)
	r.publish(events.TargetCancelled, cancelled, "", note)
	return cancelled, fmt.Errorf("%w: %s", ErrDuplicatePosition, note)
}

// MarkExecuted records a successful buy. A target cancelled while its buy was
// in flight is still marked executed, unless a sibling took the position
// meanwhile, in which case ErrDuplicatePosition is returned and the target
// stays cancelled.
func (r *Registry) MarkExecuted(ctx context.Context, id string, fill domain.Fill) (*domain.Target, error) {
	now := r.now()
	t, err := r.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusExecuting, domain.StatusCancelled}, storage.StatusUpdate{
		Status: domain.StatusExecuted,
		Note:   "executed " + fill.Signature,
		Fill:   &fill,
		At:     now,
	})
	if err != nil {
		var conflict *storage.ConflictError
		if errors.As(err, &conflict) {
			note := fmt.Sprintf("filled by %s after cancellation; position held by target %s", fill.Signature, conflict.HolderID)
			if nerr := r.store.AppendNote(ctx, id, note, now); nerr != nil {
				r.logger.Warn("Failed to append note", zap.String("target_id", id), zap.Error(nerr))
			}
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePosition, note)
		}
		return nil, fmt.Errorf("mark executed %s: %w", id, err)
	}

	r.logger.Info("Target executed", append(logger.TargetFields(t),
		zap.String("signature", fill.Signature),
		zap.String("price", fill.Price.String()),
		zap.Uint64("amount_received", fill.AmountReceived))...)
	r.publish(events.TargetExecuted, t, "", "")
	return t, nil
}

// RecordFailure registers a failed attempt. Transient categories return the
// target to pending until its attempts run out; terminal ones fail it at once.
func (r *Registry) RecordFailure(ctx context.Context, id string, category domain.ErrorCategory, msg string) (*domain.Target, error) {
	cur, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	next := domain.StatusFailed
	if !category.Terminal() && cur.Attempts+1 < cur.MaxAttempts {
		next = domain.StatusPending
	}

	t, err := r.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusExecuting}, storage.StatusUpdate{
		Status:            next,
		Note:              fmt.Sprintf("attempt %d failed [%s]: %s", cur.Attempts+1, category, msg),
		IncrementAttempts: true,
		At:                r.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record failure %s: %w", id, err)
	}

	fields := append(logger.TargetFields(t), zap.String("category", string(category)), zap.String("error", msg))
	if next == domain.StatusPending {
		r.logger.Warn("Attempt failed, will retry", fields...)
		r.publish(events.TargetRetrying, t, category, msg)
	} else {
		r.logger.Error("Target failed", fields...)
		r.publish(events.TargetFailed, t, category, msg)
	}
	return t, nil
}

// Reject ends a pending target that can never be executed.
func (r *Registry) Reject(ctx context.Context, id, reason string) (*domain.Target, error) {
	t, err := r.transition(ctx, id, []domain.Status{domain.StatusPending}, domain.StatusRejected, reason, false)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Target rejected", append(logger.TargetFields(t), zap.String("reason", reason))...)
	r.publish(events.TargetRejected, t, "", reason)
	return t, nil
}

// Cancel withdraws a target that has not completed.
func (r *Registry) Cancel(ctx context.Context, id, reason string) (*domain.Target, error) {
	from := []domain.Status{domain.StatusPending, domain.StatusPaused, domain.StatusExecuting}
	t, err := r.transition(ctx, id, from, domain.StatusCancelled, reason, false)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Target cancelled", append(logger.TargetFields(t), zap.String("reason", reason))...)
	r.publish(events.TargetCancelled, t, "", reason)
	return t, nil
}

// Pause suspends a pending target.
func (r *Registry) Pause(ctx context.Context, id string) (*domain.Target, error) {
	return r.transition(ctx, id, []domain.Status{domain.StatusPending}, domain.StatusPaused, "paused", false)
}

// Resume returns a paused target to pending.
func (r *Registry) Resume(ctx context.Context, id string) (*domain.Target, error) {
	return r.transition(ctx, id, []domain.Status{domain.StatusPaused}, domain.StatusPending, "resumed", false)
}

// Close ends an executed position and disables auto-close.
func (r *Registry) Close(ctx context.Context, id, note string) (*domain.Target, error) {
	t, err := r.transition(ctx, id, []domain.Status{domain.StatusExecuted}, domain.StatusClosed, note, true)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Position closed", append(logger.TargetFields(t), zap.String("note", note))...)
	return t, nil
}

// DemoteInconsistent fails an executed target whose recorded fill is unusable.
func (r *Registry) DemoteInconsistent(ctx context.Context, id, reason string) (*domain.Target, error) {
	t, err := r.transition(ctx, id, []domain.Status{domain.StatusExecuted}, domain.StatusFailed, reason, true)
	if err != nil {
		return nil, err
	}
	r.logger.Error("Target demoted", append(logger.TargetFields(t), zap.String("reason", reason))...)
	return t, nil
}

// ExpireStale cancels every pending target created at or before now - MaxPendingAge.
func (r *Registry) ExpireStale(ctx context.Context, now time.Time) ([]*domain.Target, error) {
	expired, err := r.store.ExpirePending(ctx, now.Add(-r.cfg.MaxPendingAge), ExpiryReason, now)
	if err != nil {
		return nil, fmt.Errorf("expire pending: %w", err)
	}
	for _, t := range expired {
		r.logger.Info("Target expired", logger.TargetFields(t)...)
		r.publish(events.TargetCancelled, t, "", ExpiryReason)
	}
	return expired, nil
}

func (r *Registry) transition(ctx context.Context, id string, from []domain.Status, to domain.Status, note string, disableAutoClose bool) (*domain.Target, error) {
	t, err := r.store.UpdateStatus(ctx, id, from, storage.StatusUpdate{
		Status:           to,
		Note:             note,
		DisableAutoClose: disableAutoClose,
		At:               r.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", to, id, err)
	}
	return t, nil
}

// Get returns a target by id.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Target, error) {
	return r.store.Get(ctx, id)
}

// Pending returns pending targets, oldest first.
func (r *Registry) Pending(ctx context.Context) ([]*domain.Target, error) {
	return r.store.ListByStatus(ctx, domain.StatusPending)
}

// PendingForAsset returns pending targets of every user for asset.
func (r *Registry) PendingForAsset(ctx context.Context, asset string) ([]*domain.Target, error) {
	return r.store.ListPendingByAsset(ctx, asset)
}

// OpenPositions returns executed targets with auto-close enabled.
func (r *Registry) OpenPositions(ctx context.Context) ([]*domain.Target, error) {
	executed, err := r.store.ListByStatus(ctx, domain.StatusExecuted)
	if err != nil {
		return nil, err
	}
	open := executed[:0]
	for _, t := range executed {
		if t.AutoClose.Enabled {
			open = append(open, t)
		}
	}
	return open, nil
}

// ForUser returns every target of a user.
func (r *Registry) ForUser(ctx context.Context, userID string) ([]*domain.Target, error) {
	return r.store.ListByUser(ctx, userID)
}

func (r *Registry) publish(t events.EventType, target *domain.Target, category domain.ErrorCategory, reason string) {
	if r.publisher == nil {
		return
	}
	err := r.publisher.Publish(events.TargetEvent{
		BaseEvent: events.NewBase(t),
		Target:    target.Clone(),
		Category:  category,
		Reason:    reason,
	})
	if err != nil {
		r.logger.Warn("Failed to publish event", zap.String("type", string(t)), zap.Error(err))
	}
}
