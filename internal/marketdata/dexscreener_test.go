// internal/marketdata/dexscreener_test.go
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const (
	assetA = "AssetA1111111111111111111111111111111111111"
	assetB = "AssetB1111111111111111111111111111111111111"
	usdc   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL}, retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, NetworkDelay: time.Millisecond}, zaptest.NewLogger(t))
}

func writePairs(t *testing.T, w http.ResponseWriter, pairs ...Pair) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(tokensResponse{SchemaVersion: "1.0.0", Pairs: pairs}))
}

func solPair(asset string, liqUSD, liqSOL float64, priceNative, priceUSD string) Pair {
	return Pair{
		ChainID:     "solana",
		DexID:       "raydium",
		PairAddress: "pair-" + asset[:6] + fmt.Sprint(liqUSD),
		BaseToken:   Token{Address: asset, Symbol: "AAA"},
		QuoteToken:  Token{Address: wsolMint, Symbol: "SOL"},
		PriceNative: priceNative,
		PriceUSD:    priceUSD,
		Liquidity:   Liquidity{USD: liqUSD, Quote: liqSOL},
	}
}

func TestSnapshot_PicksDeepestPair(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/"+assetA, r.URL.Path)
		shallow := solPair(assetA, 1000, 5, "0.0001", "0.02")
		deep := solPair(assetA, 20000, 100, "0.0002", "0.04")
		deep.FDV = 150000
		other := solPair(assetA, 50000, 0, "0", "0")
		other.ChainID = "ethereum"
		writePairs(t, w, shallow, deep, other)
	})

	s, err := c.Snapshot(context.Background(), assetA)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(s.LiquiditySOL))
	assert.True(t, decimal.RequireFromString("0.0002").Equal(s.PriceSOL))
	assert.True(t, s.MarketCapUSD.Valid)
	assert.True(t, decimal.NewFromInt(150000).Equal(s.MarketCapUSD.Decimal))
	assert.False(t, s.MarketCapEstimated)
}

func TestSnapshot_MarketCapFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Pair)
		want      string
		estimated bool
	}{
		{"market cap field", func(p *Pair) { p.MarketCap = 80000 }, "80000", false},
		{"liquidity estimate", func(p *Pair) {}, "40000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				p := solPair(assetA, 10000, 50, "0.001", "0.2")
				tt.mutate(&p)
				writePairs(t, w, p)
			})
			s, err := c.Snapshot(context.Background(), assetA)
			require.NoError(t, err)
			require.True(t, s.MarketCapUSD.Valid)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(s.MarketCapUSD.Decimal), s.MarketCapUSD.Decimal.String())
			assert.Equal(t, tt.estimated, s.MarketCapEstimated)
		})
	}
}

func TestSnapshot_NonSOLPairUsesDerivedSOLPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		usdcPair := Pair{
			ChainID:    "solana",
			BaseToken:  Token{Address: assetA},
			QuoteToken: Token{Address: usdc},
			PriceUSD:   "1",
			Liquidity:  Liquidity{USD: 2000},
		}
		// SOL at $200 as seen through a SOL-quoted pair of another asset.
		ref := solPair(assetB, 100, 1, "0.005", "1")
		writePairs(t, w, usdcPair, ref)
	})

	s, err := c.Snapshot(context.Background(), assetA)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(s.LiquiditySOL), s.LiquiditySOL.String())
	assert.True(t, s.PriceSOL.IsZero())
}

func TestSnapshot_NoPairs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	})
	_, err := c.Snapshot(context.Background(), assetA)
	assert.ErrorIs(t, err, ErrNoPairs)
}

func TestSnapshots_Batches(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assets := strings.Split(strings.TrimPrefix(r.URL.Path, "/tokens/"), ",")
		mu.Lock()
		batches = append(batches, len(assets))
		mu.Unlock()
		pairs := make([]Pair, 0, len(assets))
		for _, a := range assets {
			pairs = append(pairs, solPair(a, 100, 1, "0.01", "2"))
		}
		writePairs(t, w, pairs...)
	})

	assets := make([]string, 65)
	for i := range assets {
		assets[i] = fmt.Sprintf("Asset%039d", i)
	}
	got, err := c.Snapshots(context.Background(), assets)
	require.NoError(t, err)
	assert.Len(t, got, 65)
	assert.ElementsMatch(t, []int{30, 30, 5}, batches)
}
