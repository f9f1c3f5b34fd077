// internal/execution/jito.go
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/httpclient"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const DefaultJitoURL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

// TipAccounts are the block engine tip receivers.
var TipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// RandomTipAccount picks a tip receiver.
func RandomTipAccount() solana.PublicKey {
	return TipAccounts[rand.IntN(len(TipAccounts))]
}

// BundleSender submits transaction bundles to a block engine.
type BundleSender interface {
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sendBundleResponse struct {
	Result string        `json:"result"`
	Error  *jsonRPCError `json:"error"`
}

// JitoClient posts bundles over the block engine JSON-RPC API.
type JitoClient struct {
	http   *httpclient.Client
	nextID atomic.Uint64
	logger *zap.Logger
}

// NewJitoClient creates a block engine client for url.
func NewJitoClient(url string, policy retry.Policy, logger *zap.Logger) *JitoClient {
	if url == "" {
		url = DefaultJitoURL
	}
	logger = logger.Named("jito")
	return &JitoClient{
		http:   httpclient.New(httpclient.Config{BaseURL: url, Retry: policy}, logger),
		logger: logger,
	}
}

// SendBundle submits txs as one bundle and returns the bundle id. Refusals
// reported by the block engine wrap ErrBundleRejected; any other error
// leaves the outcome unknown.
func (c *JitoClient) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("%w: encode transaction: %v", ErrBundleRejected, err)
		}
		encoded = append(encoded, base58.Encode(raw))
	}

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "sendBundle",
		Params:  []any{encoded},
	}
	var resp sendBundleResponse
	if err := c.http.PostJSON(ctx, "", req, &resp); err != nil {
		var status *httpclient.StatusError
		if errors.As(err, &status) && status.Code >= 400 && status.Code < 500 {
			return "", fmt.Errorf("%w: %v", ErrBundleRejected, err)
		}
		return "", fmt.Errorf("send bundle: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: code %d: %s", ErrBundleRejected, resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == "" {
		return "", fmt.Errorf("%w: empty bundle id", ErrBundleRejected)
	}
	c.logger.Debug("Bundle accepted", zap.String("bundle_id", resp.Result), zap.Int("transactions", len(txs)))
	return resp.Result, nil
}
