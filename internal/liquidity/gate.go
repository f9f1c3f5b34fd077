// internal/liquidity/gate.go
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
	"github.com/rovshanmuradov/launch-sniper/internal/marketdata"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/cache"
)

const (
	SourceDexScreener = "dexscreener"
	SourceJupiter     = "jupiter"

	probeSlippageBps = 1000
	wsolMint         = "So11111111111111111111111111111111111111112"
)

// MarketData returns the market view of an asset.
type MarketData interface {
	Snapshot(ctx context.Context, asset string) (*marketdata.Snapshot, error)
}

// RouteProber quotes a swap.
type RouteProber interface {
	Order(ctx context.Context, req jupiter.OrderRequest) (*jupiter.Order, error)
}

// Config controls the gate.
type Config struct {
	CacheTTL       time.Duration   `mapstructure:"cache_ttl"`
	CacheSize      int             `mapstructure:"cache_size"`
	ProbeAmountSOL decimal.Decimal `mapstructure:"probe_amount_sol"`
	FilterEnabled  bool            `mapstructure:"filter_enabled"`
	McapMin        decimal.Decimal `mapstructure:"mcap_min"`
	McapMax        decimal.Decimal `mapstructure:"mcap_max"`
}

// DefaultConfig returns a 30s cache of 512 assets and a 0.1 SOL probe.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       30 * time.Second,
		CacheSize:      512,
		ProbeAmountSOL: decimal.RequireFromString("0.1"),
	}
}

// Decision is the gate verdict for one target.
type Decision struct {
	Ready        bool
	Rejected     bool
	Reason       string
	LiquidityUSD decimal.Decimal
	LiquiditySOL decimal.Decimal
	MarketCapUSD decimal.NullDecimal
	Source       string
}

// signals are the per-asset observations shared by every target of the asset.
type signals struct {
	snapshot *marketdata.Snapshot
}

// Gate decides whether a pending target can be executed.
type Gate struct {
	market MarketData
	prober RouteProber
	taker  string
	cfg    Config
	cache  *cache.TTL[string, signals]
	routes *cache.TTL[string, bool]
	logger *zap.Logger
}

// NewGate creates a gate. taker is the wallet used for route probes; the
// probe is skipped when prober is nil.
func NewGate(market MarketData, prober RouteProber, taker string, cfg Config, logger *zap.Logger) *Gate {
	d := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = d.CacheSize
	}
	if !cfg.ProbeAmountSOL.IsPositive() {
		cfg.ProbeAmountSOL = d.ProbeAmountSOL
	}
	return &Gate{
		market: market,
		prober: prober,
		taker:  taker,
		cfg:    cfg,
		cache:  cache.NewTTL[string, signals](cfg.CacheSize, cfg.CacheTTL),
		routes: cache.NewTTL[string, bool](cfg.CacheSize, cfg.CacheTTL),
		logger: logger.Named("liquidity"),
	}
}

// Check evaluates t against the current market. Errors from the data
// sources only make the target not ready.
func (g *Gate) Check(ctx context.Context, t *domain.Target) Decision {
	sig := g.observe(ctx, t.AssetAddress)

	var d Decision
	if s := sig.snapshot; s != nil {
		d.LiquidityUSD = s.LiquidityUSD
		d.LiquiditySOL = s.LiquiditySOL
		d.MarketCapUSD = s.MarketCapUSD
		if liquidityMet(t.MinLiquiditySOL, s) {
			d.Ready = true
			d.Source = SourceDexScreener
		}
	}

	if reason, ok := g.valuationRejects(t, d.MarketCapUSD); ok {
		d.Ready = false
		d.Rejected = true
		d.Reason = reason
		return d
	}

	if !d.Ready {
		if g.routable(ctx, t.AssetAddress) {
			d.Ready = true
			d.Source = SourceJupiter
		}
	}

	switch {
	case d.Ready:
		d.Reason = "liquidity confirmed by " + d.Source
	case sig.snapshot == nil:
		d.Reason = "no pairs found"
	default:
		d.Reason = fmt.Sprintf("liquidity %s SOL below %s SOL", d.LiquiditySOL.StringFixed(2), t.MinLiquiditySOL.String())
	}
	return d
}

func liquidityMet(min decimal.Decimal, s *marketdata.Snapshot) bool {
	if !min.IsPositive() {
		return s.LiquiditySOL.IsPositive() || s.LiquidityUSD.IsPositive()
	}
	return s.LiquiditySOL.GreaterThanOrEqual(min)
}

// valuationRejects applies the market-cap range. An unknown market cap never rejects.
func (g *Gate) valuationRejects(t *domain.Target, mcap decimal.NullDecimal) (string, bool) {
	if !mcap.Valid {
		return "", false
	}

	var lo, hi decimal.NullDecimal
	if g.cfg.FilterEnabled {
		if g.cfg.McapMin.IsPositive() {
			lo = decimal.NewNullDecimal(g.cfg.McapMin)
		}
		if g.cfg.McapMax.IsPositive() {
			hi = decimal.NewNullDecimal(g.cfg.McapMax)
		}
	}
	if t.MaxMarketCapUSD.Valid && (!hi.Valid || t.MaxMarketCapUSD.Decimal.LessThan(hi.Decimal)) {
		hi = t.MaxMarketCapUSD
	}

	switch {
	case lo.Valid && mcap.Decimal.LessThan(lo.Decimal):
		return fmt.Sprintf("market cap too low ($%s < $%s)", mcap.Decimal.StringFixed(0), lo.Decimal.StringFixed(0)), true
	case hi.Valid && mcap.Decimal.GreaterThan(hi.Decimal):
		return fmt.Sprintf("market cap too high ($%s > $%s)", mcap.Decimal.StringFixed(0), hi.Decimal.StringFixed(0)), true
	}
	return "", false
}

func (g *Gate) observe(ctx context.Context, asset string) signals {
	if sig, ok := g.cache.Get(asset); ok {
		return sig
	}

	var sig signals
	snap, err := g.market.Snapshot(ctx, asset)
	switch {
	case err == nil:
		sig.snapshot = snap
	case errors.Is(err, marketdata.ErrNoPairs):
	default:
		g.logger.Debug("Market data unavailable", zap.String("asset", asset), zap.Error(err))
	}
	g.cache.Set(asset, sig)
	return sig
}

func (g *Gate) routable(ctx context.Context, asset string) bool {
	if g.prober == nil || g.taker == "" {
		return false
	}
	if ok, cached := g.routes.Get(asset); cached {
		return ok
	}

	_, err := g.prober.Order(ctx, jupiter.OrderRequest{
		InputMint:   wsolMint,
		OutputMint:  asset,
		Amount:      uint64(g.cfg.ProbeAmountSOL.Shift(9).IntPart()),
		Taker:       g.taker,
		SlippageBps: probeSlippageBps,
	})
	if err != nil {
		g.logger.Debug("Route probe failed", zap.String("asset", asset), zap.Error(err))
	}
	g.routes.Set(asset, err == nil)
	return err == nil
}

// Sweep drops expired cache entries.
func (g *Gate) Sweep() int {
	return g.cache.CleanupExpired() + g.routes.CleanupExpired()
}
