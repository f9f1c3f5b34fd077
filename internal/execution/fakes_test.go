// internal/execution/fakes_test.go
package execution

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	cb "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/classifier"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
)

type fakeChain struct {
	mu           sync.Mutex
	balance      uint64
	tokenBalance uint64
	sendErr      error
	sent         []*solana.Transaction
	confirmErr   error
	confirmed    []solana.Signature
	slot         uint64
}

func (f *fakeChain) GetBalance(context.Context, solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChain) GetTokenBalance(context.Context, solana.PublicKey, solana.PublicKey) (uint64, error) {
	return f.tokenBalance, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction, _ bool) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return tx.Signatures[0], nil
}

func (f *fakeChain) WaitForConfirmation(_ context.Context, sig solana.Signature, _, _ time.Duration) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, sig)
	if f.confirmErr != nil {
		return 0, f.confirmErr
	}
	return f.slot, nil
}

type fakeQuoter struct {
	mu         sync.Mutex
	order      *jupiter.Order
	orderErr   error
	requests   []jupiter.OrderRequest
	execResult *jupiter.ExecuteResult
	execErr    error
	executed   []*solana.Transaction
}

func (f *fakeQuoter) Order(_ context.Context, req jupiter.OrderRequest) (*jupiter.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	o := *f.order
	return &o, nil
}

func (f *fakeQuoter) Execute(_ context.Context, tx *solana.Transaction, _ string) (*jupiter.ExecuteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, tx)
	if f.execResult != nil && f.execResult.Signature == "" && len(tx.Signatures) > 0 {
		f.execResult.Signature = tx.Signatures[0].String()
	}
	return f.execResult, f.execErr
}

type fakeBundles struct {
	mu   sync.Mutex
	err  error
	sent [][]*solana.Transaction
}

func (f *fakeBundles) SendBundle(_ context.Context, txs []*solana.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, txs)
	if f.err != nil {
		return "", f.err
	}
	return "bundle-1", nil
}

type fakeFetcher struct {
	rec   classifier.TxRecord
	err   error
	calls int
}

func (f *fakeFetcher) FetchTransaction(_ context.Context, sig string) (classifier.TxRecord, error) {
	f.calls++
	if f.err != nil {
		return classifier.TxRecord{}, f.err
	}
	rec := f.rec
	rec.Signature = sig
	return rec, nil
}

type fakeSampler struct {
	fees []uint64
	err  error
}

func (f *fakeSampler) GetRecentPrioritizationFees(context.Context, solana.PublicKeySlice) ([]uint64, error) {
	return f.fees, f.err
}

// unsignedOrderTx builds an unsigned swap-like transaction paying cuPrice.
func unsignedOrderTx(t *testing.T, payer solana.PublicKey, cuPrice uint64) string {
	t.Helper()
	program := solana.NewWallet().PublicKey()
	swap := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(solana.NewWallet().PublicKey()).WRITE(),
	}, []byte{1})
	tx, err := solana.NewTransaction(
		[]solana.Instruction{cb.NewSetComputeUnitPriceInstruction(cuPrice).Build(), swap},
		solana.Hash{7},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

type harness struct {
	wallet  *solana.Wallet
	asset   string
	chain   *fakeChain
	quoter  *fakeQuoter
	bundles *fakeBundles
	fetcher *fakeFetcher
	engine  *Engine
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		wallet:  solana.NewWallet(),
		asset:   solana.NewWallet().PublicKey().String(),
		chain:   &fakeChain{balance: 10 * solana.LAMPORTS_PER_SOL, slot: 321},
		bundles: &fakeBundles{},
		fetcher: &fakeFetcher{},
	}
	h.quoter = &fakeQuoter{
		order: &jupiter.Order{
			RequestID:   "req-1",
			Transaction: unsignedOrderTx(t, h.wallet.PublicKey(), 1_000),
			InAmount:    100_000_000,
			OutAmount:   5_000_000_000,
		},
		execResult: &jupiter.ExecuteResult{Status: "Success", Slot: 999},
	}
	oracle := NewFeeOracle(FeeConfig{Default: 20_000}, &fakeSampler{}, nil, zaptest.NewLogger(t))
	cfg.ReconcileAttempts = 1
	h.engine = NewEngine(cfg, h.chain, h.fetcher, h.quoter, h.bundles, oracle, zaptest.NewLogger(t))
	return h
}

func (h *harness) buyRecord(received uint64) classifier.TxRecord {
	return classifier.TxRecord{
		AccountKeys: []string{h.wallet.PublicKey().String()},
		PostTokenBalances: []classifier.TokenBalance{
			{Mint: h.asset, Owner: h.wallet.PublicKey().String(), Amount: received, Decimals: 9},
		},
	}
}

func (h *harness) sellRecord(pre, post, fee uint64) classifier.TxRecord {
	return classifier.TxRecord{
		AccountKeys:  []string{h.wallet.PublicKey().String()},
		PreBalances:  []uint64{pre},
		PostBalances: []uint64{post},
		Fee:          fee,
	}
}
