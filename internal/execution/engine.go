// internal/execution/engine.go
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/classifier"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
)

// DefaultTokenDecimals is assumed when a fill cannot be reconciled.
const DefaultTokenDecimals uint8 = 6

// Config controls execution.
type Config struct {
	UseBundles        bool            `mapstructure:"use_bundles"`
	SkipPreflight     bool            `mapstructure:"skip_preflight"`
	TipSOL            decimal.Decimal `mapstructure:"tip_sol"`
	JitoURL           string          `mapstructure:"jito_url"`
	ConfirmTimeout    time.Duration   `mapstructure:"confirm_timeout"`
	ConfirmInterval   time.Duration   `mapstructure:"confirm_interval"`
	FeeBufferSOL      decimal.Decimal `mapstructure:"fee_buffer_sol"`
	ReconcileAttempts int             `mapstructure:"reconcile_attempts"`
	ReconcileDelay    time.Duration   `mapstructure:"reconcile_delay"`
}

// DefaultConfig returns bundles and fast path on, 0.001 SOL tip, 60s
// confirmation and a 0.01 SOL fee buffer.
func DefaultConfig() Config {
	return Config{
		UseBundles:        true,
		SkipPreflight:     true,
		TipSOL:            decimal.RequireFromString("0.001"),
		JitoURL:           DefaultJitoURL,
		ConfirmTimeout:    60 * time.Second,
		ConfirmInterval:   2 * time.Second,
		FeeBufferSOL:      decimal.RequireFromString("0.01"),
		ReconcileAttempts: 5,
		ReconcileDelay:    time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TipSOL.IsZero() {
		c.TipSOL = d.TipSOL
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = d.ConfirmInterval
	}
	if c.FeeBufferSOL.IsZero() {
		c.FeeBufferSOL = d.FeeBufferSOL
	}
	if c.ReconcileAttempts <= 0 {
		c.ReconcileAttempts = d.ReconcileAttempts
	}
	if c.ReconcileDelay <= 0 {
		c.ReconcileDelay = d.ReconcileDelay
	}
	return c
}

// Chain is the RPC surface the engine needs.
type Chain interface {
	TxSender
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature, timeout, interval time.Duration) (uint64, error)
}

// TransactionFetcher loads a confirmed transaction.
type TransactionFetcher interface {
	FetchTransaction(ctx context.Context, signature string) (classifier.TxRecord, error)
}

// Quoter obtains and executes swap orders.
type Quoter interface {
	OrderExecutor
	Order(ctx context.Context, req jupiter.OrderRequest) (*jupiter.Order, error)
}

// BuyRequest spends AmountLamports of SOL on Asset.
type BuyRequest struct {
	Wallet              solana.PrivateKey
	Asset               string
	AmountLamports      uint64
	SlippageBps         uint16
	PriorityFeeLamports uint64
}

// SellRequest sells Amount base units of Asset for SOL.
type SellRequest struct {
	Wallet      solana.PrivateKey
	Asset       string
	Amount      uint64
	Decimals    uint8
	SlippageBps uint16
}

// Result is a confirmed and reconciled swap.
type Result struct {
	Side              domain.Side
	Signature         string
	Slot              uint64
	Path              domain.SubmissionPath
	AmountIn          uint64
	AmountOut         uint64
	QuotedOut         uint64
	Decimals          uint8
	Price             decimal.Decimal // SOL per whole token
	ActualSlippageBps int64
	PriorityFee       uint64
	TipLamports       uint64
	Reconciled        bool
	StartedAt         time.Time
	ConfirmedAt       time.Time
	Elapsed           time.Duration
}

// Engine performs buys and sells through the quote service.
type Engine struct {
	cfg     Config
	chain   Chain
	fetcher TransactionFetcher
	quoter  Quoter
	fees    *FeeOracle
	submit  *submitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates an engine. bundles may be nil to disable the bundle path.
func NewEngine(cfg Config, chain Chain, fetcher TransactionFetcher, quoter Quoter, bundles BundleSender, fees *FeeOracle, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	logger = logger.Named("execution")
	return &Engine{
		cfg:     cfg,
		chain:   chain,
		fetcher: fetcher,
		quoter:  quoter,
		fees:    fees,
		submit: &submitter{
			useBundles:    cfg.UseBundles,
			skipPreflight: cfg.SkipPreflight,
			tipLamports:   toLamports(cfg.TipSOL),
			bundles:       bundles,
			sender:        chain,
			executor:      quoter,
			logger:        logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Buy swaps SOL for req.Asset.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*Result, error) {
	started := e.now()
	taker := req.Wallet.PublicKey()

	balance, err := e.chain.GetBalance(ctx, taker)
	if err != nil {
		return nil, wrap("balance", err, domain.ErrNetwork)
	}
	need := req.AmountLamports + req.PriorityFeeLamports + toLamports(e.cfg.FeeBufferSOL)
	if e.cfg.UseBundles {
		need += e.submit.tipLamports
	}
	if balance < need {
		return nil, &Error{Category: domain.ErrBalance, Op: "balance", Err: fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientBalance, balance, need)}
	}

	res, err := e.swap(ctx, req.Wallet, jupiter.OrderRequest{
		InputMint:   solana.WrappedSol.String(),
		OutputMint:  req.Asset,
		Amount:      req.AmountLamports,
		Taker:       taker.String(),
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	res.Side = domain.SideBuy
	res.StartedAt = started

	rec, fetched := e.confirmedRecord(ctx, res.Signature)
	if delta, decimals, ok := rec.TokenDelta(taker.String(), req.Asset); fetched && ok && delta > 0 {
		res.AmountOut = uint64(delta)
		res.Decimals = decimals
		res.Reconciled = true
	} else {
		res.Decimals = DefaultTokenDecimals
	}
	res.Price = pricePerToken(res.AmountIn, res.AmountOut, res.Decimals)
	e.finish(res)
	return res, nil
}

// Sell swaps req.Amount of req.Asset for SOL.
func (e *Engine) Sell(ctx context.Context, req SellRequest) (*Result, error) {
	started := e.now()
	taker := req.Wallet.PublicKey()

	mint, err := solana.PublicKeyFromBase58(req.Asset)
	if err != nil {
		return nil, &Error{Category: domain.ErrDataInconsistency, Op: "sell", Err: fmt.Errorf("invalid asset %q: %w", req.Asset, err)}
	}
	balance, err := e.chain.GetTokenBalance(ctx, taker, mint)
	if err != nil {
		return nil, wrap("balance", err, domain.ErrNetwork)
	}
	if balance < req.Amount {
		return nil, &Error{Category: domain.ErrBalance, Op: "balance", Err: fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, req.Amount)}
	}

	res, err := e.swap(ctx, req.Wallet, jupiter.OrderRequest{
		InputMint:   req.Asset,
		OutputMint:  solana.WrappedSol.String(),
		Amount:      req.Amount,
		Taker:       taker.String(),
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	res.Side = domain.SideSell
	res.StartedAt = started
	res.Decimals = req.Decimals

	rec, fetched := e.confirmedRecord(ctx, res.Signature)
	if delta, ok := rec.NativeDelta(taker.String()); fetched && ok {
		proceeds := delta + int64(rec.Fee) + int64(res.TipLamports)
		if proceeds > 0 {
			res.AmountOut = uint64(proceeds)
			res.Reconciled = true
		}
	}
	res.Price = pricePerToken(res.AmountOut, res.AmountIn, res.Decimals)
	e.finish(res)
	return res, nil
}

// swap orders, submits and confirms one swap. AmountOut holds the best
// known output until reconciled.
func (e *Engine) swap(ctx context.Context, wallet solana.PrivateKey, req jupiter.OrderRequest) (*Result, error) {
	fee := e.fees.Fee()
	req.ComputeUnitPriceMicroLamports = fee

	order, err := e.quoter.Order(ctx, req)
	if err != nil {
		return nil, wrap("order", err, domain.ErrQuoteService)
	}

	sub, err := e.submit.submit(ctx, order, wallet, fee)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(
		zap.String("signature", sub.Signature.String()),
		zap.String("path", string(sub.Path)))
	logger.Info("Swap submitted",
		zap.String("input", req.InputMint),
		zap.String("output", req.OutputMint),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("quoted_out", order.OutAmount),
		zap.Uint64("priority_fee", fee))

	res := &Result{
		Signature:   sub.Signature.String(),
		Path:        sub.Path,
		AmountIn:    req.Amount,
		AmountOut:   order.OutAmount,
		QuotedOut:   order.OutAmount,
		PriorityFee: fee,
		TipLamports: sub.TipLamports,
		Slot:        sub.Slot,
	}
	if sub.Result != nil && sub.Result.OutputAmount > 0 {
		res.AmountOut = sub.Result.OutputAmount
	}

	if !sub.Landed {
		slot, err := e.chain.WaitForConfirmation(ctx, sub.Signature, e.cfg.ConfirmTimeout, e.cfg.ConfirmInterval)
		if err != nil {
			return nil, &Error{Category: Categorize(err), Op: "confirm", Err: err}
		}
		res.Slot = slot
	}
	res.ConfirmedAt = e.now()
	logger.Info("Swap confirmed", zap.Uint64("slot", res.Slot))
	return res, nil
}

// confirmedRecord fetches the landed transaction, retrying while the node
// has not indexed it yet.
func (e *Engine) confirmedRecord(ctx context.Context, sig string) (classifier.TxRecord, bool) {
	if e.fetcher == nil {
		return classifier.TxRecord{}, false
	}
	for attempt := 1; ; attempt++ {
		rec, err := e.fetcher.FetchTransaction(ctx, sig)
		if err == nil {
			return rec, true
		}
		if attempt >= e.cfg.ReconcileAttempts {
			e.logger.Warn("Falling back to quoted amounts", zap.String("signature", sig), zap.Error(err))
			return classifier.TxRecord{}, false
		}
		select {
		case <-ctx.Done():
			return classifier.TxRecord{}, false
		case <-time.After(e.cfg.ReconcileDelay):
		}
	}
}

func (e *Engine) finish(res *Result) {
	if res.QuotedOut > 0 {
		res.ActualSlippageBps = (int64(res.QuotedOut) - int64(res.AmountOut)) * 10_000 / int64(res.QuotedOut)
	}
	res.Elapsed = res.ConfirmedAt.Sub(res.StartedAt)
	e.logger.Info("Swap reconciled",
		zap.String("side", string(res.Side)),
		zap.String("signature", res.Signature),
		zap.Uint64("amount_in", res.AmountIn),
		zap.Uint64("amount_out", res.AmountOut),
		zap.Bool("reconciled", res.Reconciled),
		zap.Int64("slippage_bps", res.ActualSlippageBps),
		zap.Duration("elapsed", res.Elapsed))
}

// Fees returns the engine's fee oracle.
func (e *Engine) Fees() *FeeOracle {
	return e.fees
}

// pricePerToken returns lamports per whole token expressed in SOL.
func pricePerToken(lamports, tokens uint64, decimals uint8) decimal.Decimal {
	if tokens == 0 {
		return decimal.Zero
	}
	sol := decimal.NewFromUint64(lamports).Shift(-9)
	ui := decimal.NewFromUint64(tokens).Shift(-int32(decimals))
	return sol.Div(ui)
}

func toLamports(sol decimal.Decimal) uint64 {
	if sol.IsNegative() {
		return 0
	}
	return uint64(sol.Shift(9).IntPart())
}
