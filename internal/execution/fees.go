// internal/execution/fees.go
package execution

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// FeeSampler returns recent per-slot prioritization fees in micro-lamports per CU.
type FeeSampler interface {
	GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]uint64, error)
}

// FeeConfig bounds the priority fee.
type FeeConfig struct {
	Min     uint64        `mapstructure:"min"`
	Max     uint64        `mapstructure:"max"`
	Default uint64        `mapstructure:"default"`
	Refresh time.Duration `mapstructure:"refresh"`
	Window  int           `mapstructure:"window"`
}

// DefaultFeeConfig returns 1000..100000 µlamports/CU, default 5000, 30s refresh, 100 samples.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Min:     1_000,
		Max:     100_000,
		Default: 5_000,
		Refresh: 30 * time.Second,
		Window:  100,
	}
}

func (c FeeConfig) withDefaults() FeeConfig {
	d := DefaultFeeConfig()
	if c.Max == 0 {
		c.Max = d.Max
	}
	if c.Min == 0 {
		c.Min = d.Min
	}
	if c.Default == 0 {
		c.Default = d.Default
	}
	if c.Refresh <= 0 {
		c.Refresh = d.Refresh
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}

// FeeOracle tracks a compute-unit price from recent network samples.
type FeeOracle struct {
	cfg      FeeConfig
	sampler  FeeSampler
	accounts solana.PublicKeySlice
	logger   *zap.Logger

	mu        sync.RWMutex
	fee       uint64
	samples   int
	updatedAt time.Time
}

// NewFeeOracle creates an oracle. accounts narrows sampling to fees paid by
// transactions writing those accounts; nil samples the whole network.
func NewFeeOracle(cfg FeeConfig, sampler FeeSampler, accounts solana.PublicKeySlice, logger *zap.Logger) *FeeOracle {
	cfg = cfg.withDefaults()
	return &FeeOracle{
		cfg:      cfg,
		sampler:  sampler,
		accounts: accounts,
		logger:   logger.Named("fee-oracle"),
		fee:      cfg.estimate(nil),
	}
}

// Fee returns the current compute-unit price in micro-lamports.
func (o *FeeOracle) Fee() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fee
}

// Refresh pulls new samples and recomputes the fee. The previous fee is kept on error.
func (o *FeeOracle) Refresh(ctx context.Context) error {
	samples, err := o.sampler.GetRecentPrioritizationFees(ctx, o.accounts)
	if err != nil {
		return err
	}
	if len(samples) > o.cfg.Window {
		samples = samples[len(samples)-o.cfg.Window:]
	}
	fee := o.cfg.estimate(samples)

	o.mu.Lock()
	o.fee = fee
	o.samples = len(samples)
	o.updatedAt = time.Now()
	o.mu.Unlock()

	o.logger.Debug("Priority fee updated", zap.Uint64("fee", fee), zap.Int("samples", len(samples)))
	return nil
}

// Run refreshes the fee until ctx is cancelled.
func (o *FeeOracle) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Refresh)
	defer ticker.Stop()
	for {
		if err := o.Refresh(ctx); err != nil && ctx.Err() == nil {
			o.logger.Warn("Priority fee refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// estimate returns p90 of positive samples plus 20%, clamped. With no
// positive samples it returns the clamped default.
func (c FeeConfig) estimate(samples []uint64) uint64 {
	positive := make([]uint64, 0, len(samples))
	for _, s := range samples {
		if s > 0 {
			positive = append(positive, s)
		}
	}
	if len(positive) == 0 {
		return c.clamp(c.Default)
	}
	slices.Sort(positive)
	p90 := positive[len(positive)*9/10]
	if p90 > math.MaxUint64/12 {
		return c.Max
	}
	return c.clamp(p90 * 12 / 10)
}

func (c FeeConfig) clamp(v uint64) uint64 {
	return min(max(v, c.Min), c.Max)
}
