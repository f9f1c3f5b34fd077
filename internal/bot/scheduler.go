// internal/bot/scheduler.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/execution"
	"github.com/rovshanmuradov/launch-sniper/internal/liquidity"
	"github.com/rovshanmuradov/launch-sniper/internal/registry"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/logger"
)

// ErrNotManual is returned by ExecuteNow for targets with an automatic trigger.
var ErrNotManual = errors.New("target is not manually triggered")

// Gate decides whether a pending target is ready.
type Gate interface {
	Check(ctx context.Context, t *domain.Target) liquidity.Decision
}

// Buyer performs the buy swap.
type Buyer interface {
	Buy(ctx context.Context, req execution.BuyRequest) (*execution.Result, error)
}

// Keyring resolves the signing key of a user.
type Keyring interface {
	Key(userID string) (solana.PrivateKey, error)
}

// Subscriber registers event handlers.
type Subscriber interface {
	SubscribeFunc(eventType events.EventType, fn events.Handler) *events.Subscription
}

// Stats are scheduler counters.
type Stats struct {
	Ticks      int64
	Detections int64
	Attempts   int64
	Executed   int64
	Failed     int64
}

// Scheduler drives pending targets through the gate and the engine, and turns
// launch and acquisition detections into executions.
type Scheduler struct {
	cfg        Config
	auto       AutoSnipeConfig
	copyCfg    AutoSnipeConfig
	registry   *registry.Registry
	gate       Gate
	buyer      Buyer
	keys       Keyring
	executions storage.ExecutionStore
	watched    storage.WatchedAccountStore
	logger     *zap.Logger
	now        func() time.Time

	tickMu  sync.Mutex
	workers errgroup.Group
	backlog sync.WaitGroup

	ticks      atomic.Int64
	detections atomic.Int64
	attempts   atomic.Int64
	executed   atomic.Int64
	failed     atomic.Int64
}

// NewScheduler creates a scheduler. auto shapes the targets created from launch
// detections and copyCfg those mirrored from buys of asset sources. watched may
// be nil; such targets are then owned by the configured user.
func NewScheduler(
	cfg Config,
	auto AutoSnipeConfig,
	copyCfg AutoSnipeConfig,
	reg *registry.Registry,
	gate Gate,
	buyer Buyer,
	keys Keyring,
	executions storage.ExecutionStore,
	watched storage.WatchedAccountStore,
	logger *zap.Logger,
) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:        cfg,
		auto:       auto.withDefaults(),
		copyCfg:    copyCfg.withDefaults(),
		registry:   reg,
		gate:       gate,
		buyer:      buyer,
		keys:       keys,
		executions: executions,
		watched:    watched,
		logger:     logger.Named("scheduler"),
		now:        time.Now,
	}
	s.workers.SetLimit(cfg.Workers)
	return s
}

// Register subscribes the scheduler to launch and acquisition detections.
func (s *Scheduler) Register(bus Subscriber) []*events.Subscription {
	handle := func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.LaunchDetectedEvent)
		if !ok {
			return nil
		}
		return s.OnDetection(ctx, ev.Detection)
	}
	return []*events.Subscription{
		bus.SubscribeFunc(events.LaunchDetected, handle),
		bus.SubscribeFunc(events.AssetAcquired, handle),
	}
}

// Run ticks until ctx is cancelled, then waits for running executions.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started",
		zap.Duration("tick_interval", s.cfg.TickInterval),
		zap.Int("workers", s.cfg.Workers),
		zap.Bool("autosnipe", s.auto.Enabled),
		zap.Bool("copytrade", s.copyCfg.Enabled))

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("Tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.Wait()
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick expires stale targets and executes the on-liquidity targets the gate
// reports ready. Overlapping calls return immediately.
func (s *Scheduler) Tick(ctx context.Context) error {
	if !s.tickMu.TryLock() {
		return nil
	}
	defer s.tickMu.Unlock()
	s.ticks.Add(1)

	if _, err := s.registry.ExpireStale(ctx, s.now()); err != nil {
		s.logger.Warn("Expire stale targets failed", zap.Error(err))
	}

	pending, err := s.registry.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, t := range pending {
		if t.Trigger != domain.TriggerOnLiquidity {
			continue
		}
		g.Go(func() error {
			s.evaluate(ctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) evaluate(ctx context.Context, t *domain.Target) {
	d := s.gate.Check(ctx, t)
	fields := append(logger.TargetFields(t),
		zap.String("liquidity_sol", d.LiquiditySOL.StringFixed(2)),
		zap.String("reason", d.Reason))

	switch {
	case d.Rejected:
		if _, err := s.registry.Reject(ctx, t.ID, d.Reason); err != nil {
			s.logger.Warn("Reject failed", append(fields, zap.Error(err))...)
		}
	case d.Ready:
		s.logger.Info("Target ready", append(fields, zap.String("source", d.Source))...)
		s.run(ctx, t.ID, nil)
	default:
		s.logger.Debug("Target not ready", fields...)
	}
}

// ExecuteNow runs a pending manual target immediately.
func (s *Scheduler) ExecuteNow(ctx context.Context, id string) (*domain.Target, error) {
	t, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Trigger != domain.TriggerManual {
		return nil, fmt.Errorf("%w: %s", ErrNotManual, t.Trigger)
	}
	if err := s.execute(ctx, id, nil); err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, id)
}

// OnDetection handles a detection. With auto-snipe enabled a mint creates an
// on-liquidity target and a pool initialization creates an on-first-trade
// target. A pool initialization executes the auto-snipe target and every
// pending on-first-trade target for the asset. An acquisition is handed to
// copyTrade.
func (s *Scheduler) OnDetection(ctx context.Context, det domain.Detection) error {
	s.detections.Add(1)
	if det.Kind == domain.DetectionAssetAcquired {
		return s.copyTrade(ctx, det)
	}

	var ids []string
	if s.auto.Enabled {
		t, err := s.autoSnipe(ctx, det)
		if err != nil {
			s.logger.Warn("Auto-snipe failed", zap.String("asset", det.Asset), zap.Error(err))
		} else if det.Kind == domain.DetectionPoolInitialized && t.Status == domain.StatusPending {
			ids = append(ids, t.ID)
		}
	}

	if det.Kind != domain.DetectionPoolInitialized {
		return nil
	}
	pending, err := s.registry.PendingForAsset(ctx, det.Asset)
	if err != nil {
		return fmt.Errorf("pending for %s: %w", det.Asset, err)
	}
	for _, t := range pending {
		if t.Trigger == domain.TriggerOnFirstTrade && !slices.Contains(ids, t.ID) {
			ids = append(ids, t.ID)
		}
	}

	detectedAt := det.DetectedAt
	for _, id := range ids {
		s.dispatch(func() {
			s.run(context.WithoutCancel(ctx), id, &detectedAt)
		})
	}
	return nil
}

// dispatch runs fn on a free worker. When every worker is busy fn waits for
// one in the background so the detection path never blocks.
func (s *Scheduler) dispatch(fn func()) {
	task := func() error {
		fn()
		return nil
	}
	if s.workers.TryGo(task) {
		return
	}
	s.backlog.Add(1)
	go func() {
		defer s.backlog.Done()
		s.workers.Go(task)
	}()
}

func (s *Scheduler) autoSnipe(ctx context.Context, det domain.Detection) (*domain.Target, error) {
	user := s.owner(ctx, domain.RoleLaunchSource, det.Source, s.auto.UserID)
	if user == "" {
		return nil, errors.New("no auto-snipe user configured")
	}

	trigger := domain.TriggerOnLiquidity
	if det.Kind == domain.DetectionPoolInitialized {
		trigger = domain.TriggerOnFirstTrade
	}
	t, created, err := s.registry.Create(ctx, s.auto.newTarget(user, det.Asset, trigger,
		fmt.Sprintf("auto-snipe via %s from %s", det.Kind, det.Source)))
	if err != nil {
		return nil, err
	}
	s.logger.Info("Auto-snipe target", append(logger.TargetFields(t), zap.Bool("created", created))...)
	return t, nil
}

// copyTrade mirrors a buy made by a watched asset source: a manual target for
// the user who added the wallet, executed right away. A buy of an asset the
// user already targets or holds is skipped.
func (s *Scheduler) copyTrade(ctx context.Context, det domain.Detection) error {
	if !s.copyCfg.Enabled {
		s.logger.Debug("Copy trade disabled", zap.String("asset", det.Asset), zap.String("source", det.Source))
		return nil
	}
	user := s.owner(ctx, domain.RoleAssetSource, det.Source, s.copyCfg.UserID)
	if user == "" {
		return errors.New("no copy-trade user configured")
	}
	if held, err := s.holding(ctx, user, det.Asset); err != nil {
		return err
	} else if held != nil {
		s.logger.Info("Copy trade skipped, asset already held", logger.TargetFields(held)...)
		return nil
	}

	t, created, err := s.registry.Create(ctx, s.copyCfg.newTarget(user, det.Asset, domain.TriggerManual,
		fmt.Sprintf("copy-trade of %s in %s", det.Source, det.Signature)))
	if err != nil {
		return fmt.Errorf("copy-trade target for %s: %w", det.Asset, err)
	}
	if !created {
		s.logger.Info("Copy trade skipped, asset already targeted", logger.TargetFields(t)...)
		return nil
	}
	s.logger.Info("Copy trade", append(logger.TargetFields(t), zap.String("source", det.Source))...)

	id, detectedAt := t.ID, det.DetectedAt
	s.dispatch(func() {
		s.run(context.WithoutCancel(ctx), id, &detectedAt)
	})
	return nil
}

// holding returns the user's target that holds asset, if any.
func (s *Scheduler) holding(ctx context.Context, user, asset string) (*domain.Target, error) {
	targets, err := s.registry.ForUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("targets of %s: %w", user, err)
	}
	for _, t := range targets {
		if t.AssetAddress == asset && t.Status.Holds() {
			return t, nil
		}
	}
	return nil, nil
}

func (c AutoSnipeConfig) newTarget(user, asset string, trigger domain.Trigger, note string) registry.NewTarget {
	return registry.NewTarget{
		UserID:              user,
		AssetAddress:        asset,
		AmountLamports:      lamports(c.AmountSOL),
		SlippageBps:         uint16(c.SlippagePct.Mul(decimal.NewFromInt(100)).IntPart()),
		PriorityFeeLamports: lamports(c.PriorityFeeSOL),
		Trigger:             trigger,
		AutoClose: domain.AutoClose{
			Enabled:       true,
			TakeProfitPct: c.TakeProfitPct,
			StopLossPct:   c.StopLossPct,
		},
		Note: note,
	}
}

// owner returns the user that added the watched source in role, or fallback.
func (s *Scheduler) owner(ctx context.Context, role domain.AccountRole, source, fallback string) string {
	if s.watched != nil && source != "" {
		accounts, err := s.watched.ListActive(ctx, role)
		if err != nil {
			s.logger.Debug("List watched accounts failed", zap.Error(err))
		}
		for _, a := range accounts {
			if a.Address == source && a.AddedBy != "" {
				return a.AddedBy
			}
		}
	}
	return fallback
}

// execute claims the target, buys and records the outcome. A failed buy is
// recorded on the target and is not returned.
func (s *Scheduler) execute(ctx context.Context, id string, detectedAt *time.Time) error {
	t, err := s.registry.Claim(ctx, id)
	if err != nil {
		return err
	}
	s.attempts.Add(1)

	rec := execution.NewRecord(t, domain.SideBuy, t.AmountLamports, t.SlippageBps, s.now())
	rec.DetectedAt = detectedAt
	if err := s.executions.Insert(ctx, rec); err != nil {
		s.logger.Warn("Failed to insert execution record", zap.String("target_id", id), zap.Error(err))
	}

	res, err := s.buy(ctx, t)
	if err != nil {
		return s.fail(ctx, t, rec, err)
	}

	res.Apply(rec)
	if err := s.executions.Complete(ctx, rec); err != nil {
		s.logger.Warn("Failed to complete execution record", zap.String("record_id", rec.ID), zap.Error(err))
	}
	if _, err := s.registry.MarkExecuted(ctx, id, res.Fill()); err != nil {
		s.logger.Error("Failed to mark executed", append(logger.TargetFields(t),
			zap.String("signature", res.Signature), zap.Error(err))...)
		return err
	}
	s.executed.Add(1)
	return nil
}

// run executes a target on behalf of the tick or a detection, where claim
// conflicts are expected.
func (s *Scheduler) run(ctx context.Context, id string, detectedAt *time.Time) {
	err := s.execute(ctx, id, detectedAt)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrDuplicatePosition):
		s.logger.Info("Execution skipped", zap.String("target_id", id), zap.Error(err))
	case errors.Is(err, storage.ErrInvalidTransition):
		s.logger.Debug("Target no longer pending", zap.String("target_id", id))
	default:
		s.logger.Error("Execution failed", zap.String("target_id", id), zap.Error(err))
	}
}

func (s *Scheduler) buy(ctx context.Context, t *domain.Target) (*execution.Result, error) {
	key, err := s.keys.Key(t.UserID)
	if err != nil {
		return nil, &execution.Error{Category: domain.ErrDataInconsistency, Op: "wallet", Err: err}
	}
	return s.buyer.Buy(ctx, execution.BuyRequest{
		Wallet:              key,
		Asset:               t.AssetAddress,
		AmountLamports:      t.AmountLamports,
		SlippageBps:         t.SlippageBps,
		PriorityFeeLamports: t.PriorityFeeLamports,
	})
}

func (s *Scheduler) fail(ctx context.Context, t *domain.Target, rec *domain.ExecutionRecord, cause error) error {
	category := execution.Fail(rec, cause, s.now())
	if err := s.executions.Complete(ctx, rec); err != nil {
		s.logger.Warn("Failed to complete execution record", zap.String("record_id", rec.ID), zap.Error(err))
	}
	s.failed.Add(1)
	if _, err := s.registry.RecordFailure(ctx, t.ID, category, cause.Error()); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:      s.ticks.Load(),
		Detections: s.detections.Load(),
		Attempts:   s.attempts.Load(),
		Executed:   s.executed.Load(),
		Failed:     s.failed.Load(),
	}
}

// UserStats aggregates the user's execution records since the given time.
func (s *Scheduler) UserStats(ctx context.Context, userID string, since time.Time) ([]domain.ExecutionStats, error) {
	return s.executions.Stats(ctx, userID, since)
}

// Wait blocks until executions started by detections finish.
func (s *Scheduler) Wait() {
	s.backlog.Wait()
	_ = s.workers.Wait()
}

func lamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return uint64(sol.Shift(9).IntPart())
}
