// internal/jupiter/ultra_test.go
package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const wsol = "So11111111111111111111111111111111111111112"

func testTx(t *testing.T) (*solana.Transaction, solana.PrivateKey) {
	t.Helper()
	payer := solana.NewWallet().PrivateKey
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer.PublicKey(), to).Build()},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)
	return tx, payer
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, NetworkDelay: time.Millisecond}, zaptest.NewLogger(t))
}

func TestOrder(t *testing.T) {
	tx, _ := testTx(t)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, wsol, q.Get("inputMint"))
		assert.Equal(t, "Mint111", q.Get("outputMint"))
		assert.Equal(t, "100000000", q.Get("amount"))
		assert.Equal(t, "Taker111", q.Get("taker"))
		assert.Equal(t, "1500", q.Get("slippageBps"))
		assert.Equal(t, "20000", q.Get("computeUnitPriceMicroLamports"))
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requestId":   "req-1",
			"transaction": base64.StdEncoding.EncodeToString(raw),
			"inAmount":    "100000000",
			"outAmount":   "123456789",
			"slippageBps": 1500,
			"router":      "iris",
		})
	})
	c := newTestClient(t, mux)

	order, err := c.Order(context.Background(), OrderRequest{
		InputMint:                     wsol,
		OutputMint:                    "Mint111",
		Amount:                        100_000_000,
		Taker:                         "Taker111",
		SlippageBps:                   1500,
		ComputeUnitPriceMicroLamports: 20_000,
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", order.RequestID)
	assert.Equal(t, uint64(123456789), order.OutAmount)
	assert.Equal(t, uint16(1500), order.SlippageBps)

	decoded, err := order.DecodeTransaction()
	require.NoError(t, err)
	assert.Equal(t, tx.Message.RecentBlockhash, decoded.Message.RecentBlockhash)
}

func TestOrder_NoRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requestId":"r","errorCode":1,"errorMessage":"Insufficient funds"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.Order(context.Background(), OrderRequest{InputMint: wsol, OutputMint: "m", Amount: 1, Taker: "t"})
	require.ErrorIs(t, err, ErrNoRoute)
	assert.Contains(t, err.Error(), "Insufficient funds")
}

func TestExecute(t *testing.T) {
	tx, _ := testTx(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "req-1", req.RequestID)
		got, err := solana.TransactionFromBase64(req.SignedTransaction)
		if assert.NoError(t, err) {
			assert.Equal(t, tx.Signatures[0], got.Signatures[0])
		}

		_, _ = w.Write([]byte(`{"status":"Success","signature":"` + tx.Signatures[0].String() + `","slot":"321","code":0,"inputAmountResult":"100","outputAmountResult":"250"}`))
	})
	c := newTestClient(t, mux)

	res, err := c.Execute(context.Background(), tx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(321), res.Slot)
	assert.Equal(t, uint64(250), res.OutputAmount)
	assert.Equal(t, tx.Signatures[0].String(), res.Signature)
}

func TestExecute_Failed(t *testing.T) {
	tx, _ := testTx(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"Failed","code":-1006,"error":"slippage tolerance exceeded"}`))
	})
	c := newTestClient(t, mux)

	res, err := c.Execute(context.Background(), tx, "req-1")
	require.ErrorIs(t, err, ErrExecuteFailed)
	require.NotNil(t, res)
	assert.Equal(t, -1006, res.Code)
	assert.Contains(t, err.Error(), "slippage")
}
