// internal/position/manager.go
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/execution"
	"github.com/rovshanmuradov/launch-sniper/internal/marketdata"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/logger"
)

// InconsistentReason is recorded on positions demoted for an unusable fill.
const InconsistentReason = "data inconsistency: executed position has no received amount"

// Config controls the manager.
type Config struct {
	Interval        time.Duration `mapstructure:"interval"`
	SellSlippageBps uint16        `mapstructure:"sell_slippage_bps"`
}

// DefaultConfig returns a 60s interval and 10% sell slippage.
func DefaultConfig() Config {
	return Config{Interval: 60 * time.Second, SellSlippageBps: 1_000}
}

// Registry is the target lifecycle the manager drives.
type Registry interface {
	OpenPositions(ctx context.Context) ([]*domain.Target, error)
	Close(ctx context.Context, id, note string) (*domain.Target, error)
	DemoteInconsistent(ctx context.Context, id, reason string) (*domain.Target, error)
}

// PriceSource returns market snapshots for many assets at once.
type PriceSource interface {
	Snapshots(ctx context.Context, assets []string) (map[string]marketdata.Snapshot, error)
}

// Seller sells tokens for SOL.
type Seller interface {
	Sell(ctx context.Context, req execution.SellRequest) (*execution.Result, error)
}

// Keyring resolves the signing key of a user.
type Keyring interface {
	Key(userID string) (solana.PrivateKey, error)
}

// Publisher receives position events.
type Publisher interface {
	Publish(event events.Event) error
}

// Manager watches executed positions and closes them at take-profit or stop-loss.
type Manager struct {
	cfg        Config
	registry   Registry
	prices     PriceSource
	seller     Seller
	keys       Keyring
	executions storage.ExecutionStore
	publisher  Publisher
	logger     *zap.Logger
	now        func() time.Time

	running sync.Mutex
}

// NewManager creates a position manager.
func NewManager(
	cfg Config,
	registry Registry,
	prices PriceSource,
	seller Seller,
	keys Keyring,
	executions storage.ExecutionStore,
	publisher Publisher,
	logger *zap.Logger,
) *Manager {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.SellSlippageBps == 0 {
		cfg.SellSlippageBps = d.SellSlippageBps
	}
	return &Manager{
		cfg:        cfg,
		registry:   registry,
		prices:     prices,
		seller:     seller,
		keys:       keys,
		executions: executions,
		publisher:  publisher,
		logger:     logger.Named("position"),
		now:        time.Now,
	}
}

// Run checks positions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("Position check failed", zap.Error(err))
			}
		}
	}
}

// Tick evaluates every open position once. Overlapping calls are skipped.
func (m *Manager) Tick(ctx context.Context) error {
	if !m.running.TryLock() {
		m.logger.Debug("Position check already running")
		return nil
	}
	defer m.running.Unlock()

	positions, err := m.registry.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	open := positions[:0]
	for _, t := range positions {
		if t.Fill == nil || t.Fill.AmountReceived == 0 || !t.Fill.Price.IsPositive() {
			m.demote(ctx, t)
			continue
		}
		open = append(open, t)
	}
	if len(open) == 0 {
		return nil
	}

	assets := make([]string, 0, len(open))
	seen := make(map[string]struct{}, len(open))
	for _, t := range open {
		if _, ok := seen[t.AssetAddress]; !ok {
			seen[t.AssetAddress] = struct{}{}
			assets = append(assets, t.AssetAddress)
		}
	}
	snaps, err := m.prices.Snapshots(ctx, assets)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	for _, t := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		snap, ok := snaps[t.AssetAddress]
		if !ok || !snap.PriceSOL.IsPositive() {
			m.logger.Debug("No SOL price for position", logger.TargetFields(t)...)
			continue
		}
		m.evaluate(ctx, t, snap.PriceSOL)
	}
	return nil
}

func (m *Manager) evaluate(ctx context.Context, t *domain.Target, price decimal.Decimal) {
	pnl := Evaluate(*t.Fill, price)
	m.refreshProfitLoss(ctx, t, pnl)

	exit := Decide(t.AutoClose, pnl.ChangePct)
	if exit == Hold {
		return
	}
	m.logger.Info("Auto-close triggered", append(logger.TargetFields(t),
		zap.String("exit", string(exit)),
		zap.String("entry_price", pnl.EntryPrice.String()),
		zap.String("current_price", price.String()),
		zap.String("change_pct", pnl.ChangePct.StringFixed(2)))...)
	m.sell(ctx, t, exit, pnl)
}

func (m *Manager) sell(ctx context.Context, t *domain.Target, exit Exit, pnl PnL) {
	rec := execution.NewRecord(t, domain.SideSell, t.Fill.AmountReceived, m.cfg.SellSlippageBps, m.now())
	if err := m.executions.Insert(ctx, rec); err != nil {
		m.logger.Error("Failed to record sell", append(logger.TargetFields(t), zap.Error(err))...)
		return
	}

	res, err := m.doSell(ctx, t)
	if err != nil {
		cat := execution.Fail(rec, err, m.now())
		m.complete(ctx, rec)
		m.logger.Warn("Auto-close sell failed", append(logger.TargetFields(t),
			zap.String("category", string(cat)), zap.Error(err))...)
		if sellTerminal(cat) {
			m.abandon(ctx, t, rec, pnl, cat, err)
			return
		}
		m.publish(events.PositionSellFailed, t, rec, pnl, cat, err.Error())
		return
	}
	res.Apply(rec)
	m.complete(ctx, rec)

	note := fmt.Sprintf("%s at %s%% (%s)", exit, pnl.ChangePct.StringFixed(2), res.Signature)
	closed, err := m.registry.Close(ctx, t.ID, note)
	if err != nil {
		m.logger.Error("Failed to close sold position", append(logger.TargetFields(t), zap.Error(err))...)
		return
	}
	m.publish(events.PositionClosed, closed, rec, pnl, "", string(exit))
}

// sellTerminal reports whether a failed sell can never succeed on a later
// check. Slippage is re-quoted on the next tick.
func sellTerminal(cat domain.ErrorCategory) bool {
	return cat == domain.ErrBalance || cat == domain.ErrDataInconsistency
}

// abandon fails a position whose sell cannot be retried and reports it once.
func (m *Manager) abandon(ctx context.Context, t *domain.Target, rec *domain.ExecutionRecord, pnl PnL, cat domain.ErrorCategory, cause error) {
	reason := fmt.Sprintf("auto-sell failed (%s): %v", cat, cause)
	failed, err := m.registry.DemoteInconsistent(ctx, t.ID, reason)
	if err != nil {
		m.logger.Error("Failed to disable position", append(logger.TargetFields(t), zap.Error(err))...)
		return
	}
	m.publish(events.PositionInconsistent, failed, rec, pnl, cat, reason)
}

func (m *Manager) doSell(ctx context.Context, t *domain.Target) (*execution.Result, error) {
	key, err := m.keys.Key(t.UserID)
	if err != nil {
		return nil, &execution.Error{Category: domain.ErrDataInconsistency, Op: "wallet", Err: err}
	}
	return m.seller.Sell(ctx, execution.SellRequest{
		Wallet:      key,
		Asset:       t.AssetAddress,
		Amount:      t.Fill.AmountReceived,
		Decimals:    t.Fill.Decimals,
		SlippageBps: m.cfg.SellSlippageBps,
	})
}

func (m *Manager) complete(ctx context.Context, rec *domain.ExecutionRecord) {
	if err := m.executions.Complete(ctx, rec); err != nil {
		m.logger.Error("Failed to complete execution record", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

func (m *Manager) demote(ctx context.Context, t *domain.Target) {
	demoted, err := m.registry.DemoteInconsistent(ctx, t.ID, InconsistentReason)
	if err != nil {
		m.logger.Error("Failed to demote position", append(logger.TargetFields(t), zap.Error(err))...)
		return
	}
	m.publish(events.PositionInconsistent, demoted, nil, PnL{}, domain.ErrDataInconsistency, InconsistentReason)
}

// refreshProfitLoss stores the valuation on the target's successful buy record.
func (m *Manager) refreshProfitLoss(ctx context.Context, t *domain.Target, pnl PnL) {
	records, err := m.executions.ListByTarget(ctx, t.ID)
	if err != nil {
		m.logger.Debug("Failed to load execution records", zap.String("target_id", t.ID), zap.Error(err))
		return
	}
	for _, r := range records {
		if r.Side != domain.SideBuy || r.Status != domain.ExecutionSuccess {
			continue
		}
		invested := decimal.NewFromUint64(r.AmountIn).Shift(-9)
		pl := domain.ProfitLoss{
			CurrentValue:  pnl.CurrentValue,
			UnrealizedPnL: pnl.CurrentValue.Sub(invested),
			UpdatedAt:     m.now(),
		}
		if err := m.executions.UpdateProfitLoss(ctx, r.ID, pl); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Debug("Failed to update profit/loss", zap.String("record_id", r.ID), zap.Error(err))
		}
	}
}

func (m *Manager) publish(typ events.EventType, t *domain.Target, rec *domain.ExecutionRecord, pnl PnL, cat domain.ErrorCategory, reason string) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.Publish(events.PositionEvent{
		BaseEvent:    events.NewBase(typ),
		Target:       t.Clone(),
		Record:       rec.Clone(),
		CurrentPrice: pnl.CurrentPrice,
		ChangePct:    pnl.ChangePct,
		Category:     cat,
		Reason:       reason,
	})
	if err != nil {
		m.logger.Warn("Failed to publish event", zap.String("type", string(typ)), zap.Error(err))
	}
}
