// internal/marketdata/dexscreener.go
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/httpclient"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com/latest/dex"

	// MaxBatch is the number of tokens accepted by one tokens request.
	MaxBatch = 30

	rateLimit   = 300 // requests per minute
	solanaChain = "solana"
	wsolMint    = "So11111111111111111111111111111111111111112"
)

// ErrNoPairs means the asset has no trading pair yet.
var ErrNoPairs = errors.New("no pairs found")

// mcapLiquidityMultiple estimates market cap from pool liquidity when the
// API reports neither FDV nor market cap.
var mcapLiquidityMultiple = decimal.NewFromInt(4)

// tokensResponse is the body of /tokens/{addresses}.
type tokensResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is one DexScreener trading pair.
type Pair struct {
	ChainID       string    `json:"chainId"`
	DexID         string    `json:"dexId"`
	PairAddress   string    `json:"pairAddress"`
	BaseToken     Token     `json:"baseToken"`
	QuoteToken    Token     `json:"quoteToken"`
	PriceNative   string    `json:"priceNative"`
	PriceUSD      string    `json:"priceUsd"`
	Liquidity     Liquidity `json:"liquidity"`
	FDV           float64   `json:"fdv"`
	MarketCap     float64   `json:"marketCap"`
	PairCreatedAt int64     `json:"pairCreatedAt"`
}

// Token identifies a pair side.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Liquidity is the pool depth.
type Liquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

func (p *Pair) solQuoted() bool {
	return p.QuoteToken.Address == wsolMint
}

// Snapshot is the market view of one asset taken from its deepest pair.
type Snapshot struct {
	Asset              string
	Symbol             string
	Name               string
	PairAddress        string
	DexID              string
	PriceSOL           decimal.Decimal // SOL per whole token; zero when no SOL pair exists
	PriceUSD           decimal.Decimal
	LiquidityUSD       decimal.Decimal
	LiquiditySOL       decimal.Decimal
	MarketCapUSD       decimal.NullDecimal
	MarketCapEstimated bool
	PairCreatedAt      time.Time
	FetchedAt          time.Time
}

// Config configures the DexScreener client.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client reads pair data from the DexScreener API.
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewClient creates a DexScreener client limited to 300 requests per minute.
func NewClient(cfg Config, policy retry.Policy, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	logger = logger.Named("dexscreener")
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:       cfg.BaseURL,
			Timeout:       cfg.Timeout,
			RatePerSecond: rateLimit / 60.0,
			Burst:         5,
			Retry:         policy,
		}, logger),
		logger: logger,
		now:    time.Now,
	}
}

// Snapshot returns the market view of asset or ErrNoPairs.
func (c *Client) Snapshot(ctx context.Context, asset string) (*Snapshot, error) {
	snaps, err := c.fetch(ctx, []string{asset})
	if err != nil {
		return nil, err
	}
	s, ok := snaps[asset]
	if !ok {
		return nil, fmt.Errorf("%w for token %s", ErrNoPairs, asset)
	}
	return &s, nil
}

// Snapshots returns market views for many assets, MaxBatch per request.
// Assets without pairs are absent from the result.
func (c *Client) Snapshots(ctx context.Context, assets []string) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot, len(assets))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for start := 0; start < len(assets); start += MaxBatch {
		batch := assets[start:min(start+MaxBatch, len(assets))]
		g.Go(func() error {
			snaps, err := c.fetch(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for k, v := range snaps {
				out[k] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, assets []string) (map[string]Snapshot, error) {
	var resp tokensResponse
	if err := c.http.GetJSON(ctx, "/tokens/"+strings.Join(assets, ","), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get token pairs: %w", err)
	}

	solUSD := solPriceUSD(resp.Pairs)
	fetchedAt := c.now()
	out := make(map[string]Snapshot, len(assets))
	for _, asset := range assets {
		if s, ok := buildSnapshot(asset, resp.Pairs, solUSD, fetchedAt); ok {
			out[asset] = s
		}
	}
	c.logger.Debug("Fetched pairs", zap.Int("assets", len(assets)), zap.Int("pairs", len(resp.Pairs)), zap.Int("found", len(out)))
	return out, nil
}

func buildSnapshot(asset string, pairs []Pair, solUSD decimal.Decimal, at time.Time) (Snapshot, bool) {
	var best, bestSOL *Pair
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != solanaChain || p.BaseToken.Address != asset {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
		if p.solQuoted() && (bestSOL == nil || p.Liquidity.USD > bestSOL.Liquidity.USD) {
			bestSOL = p
		}
	}
	if best == nil {
		return Snapshot{}, false
	}

	s := Snapshot{
		Asset:        asset,
		Symbol:       best.BaseToken.Symbol,
		Name:         best.BaseToken.Name,
		PairAddress:  best.PairAddress,
		DexID:        best.DexID,
		PriceUSD:     parseDecimal(best.PriceUSD),
		LiquidityUSD: decimal.NewFromFloat(best.Liquidity.USD),
		FetchedAt:    at,
	}
	if best.PairCreatedAt > 0 {
		s.PairCreatedAt = time.UnixMilli(best.PairCreatedAt)
	}

	switch {
	case best.solQuoted():
		s.LiquiditySOL = decimal.NewFromFloat(best.Liquidity.Quote)
	case solUSD.IsPositive():
		s.LiquiditySOL = s.LiquidityUSD.Div(solUSD)
	}
	if bestSOL != nil {
		s.PriceSOL = parseDecimal(bestSOL.PriceNative)
	}

	switch {
	case best.FDV > 0:
		s.MarketCapUSD = decimal.NewNullDecimal(decimal.NewFromFloat(best.FDV))
	case best.MarketCap > 0:
		s.MarketCapUSD = decimal.NewNullDecimal(decimal.NewFromFloat(best.MarketCap))
	case best.Liquidity.USD > 0:
		s.MarketCapUSD = decimal.NewNullDecimal(s.LiquidityUSD.Mul(mcapLiquidityMultiple))
		s.MarketCapEstimated = true
	}
	return s, true
}

// solPriceUSD derives the SOL price from any SOL-quoted pair in the response.
func solPriceUSD(pairs []Pair) decimal.Decimal {
	for i := range pairs {
		p := &pairs[i]
		if !p.solQuoted() {
			continue
		}
		native, usd := parseDecimal(p.PriceNative), parseDecimal(p.PriceUSD)
		if native.IsPositive() && usd.IsPositive() {
			return usd.Div(native)
		}
	}
	return decimal.Zero
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
