// internal/liquidity/gate_test.go
package liquidity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
	"github.com/rovshanmuradov/launch-sniper/internal/marketdata"
)

const asset = "AssetA1111111111111111111111111111111111111"

type fakeMarket struct {
	mu    sync.Mutex
	snap  *marketdata.Snapshot
	err   error
	calls int
}

func (f *fakeMarket) Snapshot(context.Context, string) (*marketdata.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snap
	return &s, nil
}

type fakeProber struct {
	mu   sync.Mutex
	err  error
	reqs []jupiter.OrderRequest
}

func (f *fakeProber) Order(_ context.Context, req jupiter.OrderRequest) (*jupiter.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &jupiter.Order{RequestID: "probe"}, nil
}

func snapshot(liqSOL, liqUSD, mcap string) *marketdata.Snapshot {
	s := &marketdata.Snapshot{
		Asset:        asset,
		LiquiditySOL: decimal.RequireFromString(liqSOL),
		LiquidityUSD: decimal.RequireFromString(liqUSD),
	}
	if mcap != "" {
		s.MarketCapUSD = decimal.NewNullDecimal(decimal.RequireFromString(mcap))
	}
	return s
}

func target(minSOL string) *domain.Target {
	return &domain.Target{ID: "t1", AssetAddress: asset, MinLiquiditySOL: decimal.RequireFromString(minSOL)}
}

func TestCheck_DexLiquidity(t *testing.T) {
	tests := []struct {
		name  string
		min   string
		snap  *marketdata.Snapshot
		ready bool
	}{
		{"above minimum", "5", snapshot("10", "2000", ""), true},
		{"exactly minimum", "10", snapshot("10", "2000", ""), true},
		{"below minimum", "20", snapshot("10", "2000", ""), false},
		{"zero minimum any liquidity", "0", snapshot("0", "50", ""), true},
		{"zero minimum no liquidity", "0", snapshot("0", "0", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(&fakeMarket{snap: tt.snap}, &fakeProber{err: errors.New("no route")}, "taker", Config{}, zaptest.NewLogger(t))
			d := g.Check(context.Background(), target(tt.min))
			assert.Equal(t, tt.ready, d.Ready)
			assert.False(t, d.Rejected)
			if tt.ready {
				assert.Equal(t, SourceDexScreener, d.Source)
			}
		})
	}
}

func TestCheck_RouteProbeFallback(t *testing.T) {
	prober := &fakeProber{}
	g := NewGate(&fakeMarket{err: marketdata.ErrNoPairs}, prober, "taker", Config{}, zaptest.NewLogger(t))

	d := g.Check(context.Background(), target("5"))
	assert.True(t, d.Ready)
	assert.Equal(t, SourceJupiter, d.Source)

	assert.Len(t, prober.reqs, 1)
	req := prober.reqs[0]
	assert.Equal(t, uint64(100_000_000), req.Amount)
	assert.Equal(t, uint16(1000), req.SlippageBps)
	assert.Equal(t, asset, req.OutputMint)
	assert.Equal(t, "taker", req.Taker)
}

func TestCheck_NotReady(t *testing.T) {
	g := NewGate(&fakeMarket{err: marketdata.ErrNoPairs}, &fakeProber{err: jupiter.ErrNoRoute}, "taker", Config{}, zaptest.NewLogger(t))
	d := g.Check(context.Background(), target("5"))
	assert.False(t, d.Ready)
	assert.False(t, d.Rejected)
	assert.Equal(t, "no pairs found", d.Reason)
}

func TestCheck_ResultsCached(t *testing.T) {
	market := &fakeMarket{snap: snapshot("1", "200", "")}
	prober := &fakeProber{err: jupiter.ErrNoRoute}
	g := NewGate(market, prober, "taker", Config{}, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		g.Check(context.Background(), target("5"))
	}
	assert.Equal(t, 1, market.calls)
	assert.Len(t, prober.reqs, 1)
}

func TestCheck_Valuation(t *testing.T) {
	cfg := Config{FilterEnabled: true, McapMin: decimal.NewFromInt(1000), McapMax: decimal.NewFromInt(50000)}
	tests := []struct {
		name     string
		mcap     string
		ceiling  string
		filter   bool
		rejected bool
	}{
		{"inside range", "20000", "", true, false},
		{"below range", "500", "", true, true},
		{"above range", "60000", "", true, true},
		{"above target ceiling", "30000", "25000", true, true},
		{"ceiling above global max ignored", "45000", "100000", true, false},
		{"unknown market cap", "", "", true, false},
		{"filter disabled", "60000", "", false, false},
		{"filter disabled target ceiling", "30000", "25000", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.FilterEnabled = tt.filter
			g := NewGate(&fakeMarket{snap: snapshot("50", "10000", tt.mcap)}, nil, "", c, zaptest.NewLogger(t))
			tgt := target("5")
			if tt.ceiling != "" {
				tgt.MaxMarketCapUSD = decimal.NewNullDecimal(decimal.RequireFromString(tt.ceiling))
			}
			d := g.Check(context.Background(), tgt)
			assert.Equal(t, tt.rejected, d.Rejected, d.Reason)
			assert.Equal(t, !tt.rejected, d.Ready)
		})
	}
}
