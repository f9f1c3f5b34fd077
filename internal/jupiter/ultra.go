// internal/jupiter/ultra.go
package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/httpclient"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const (
	DefaultBaseURL = "https://lite-api.jup.ag/ultra/v1"

	statusSuccess = "Success"
)

var (
	// ErrNoRoute means Jupiter returned an order without a transaction.
	ErrNoRoute = errors.New("no route found")

	// ErrExecuteFailed means Jupiter reported a failed execution.
	ErrExecuteFailed = errors.New("swap execution failed")
)

// Config configures the Ultra client.
type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

// OrderRequest describes a swap to quote.
type OrderRequest struct {
	InputMint                     string
	OutputMint                    string
	Amount                        uint64
	Taker                         string
	SlippageBps                   uint16
	ComputeUnitPriceMicroLamports uint64
}

// Order is a quoted, unsigned swap.
type Order struct {
	RequestID      string
	Transaction    string // base64, unsigned
	InAmount       uint64
	OutAmount      uint64
	SlippageBps    uint16
	PriceImpactPct string
	Router         string
}

// DecodeTransaction parses the unsigned swap transaction.
func (o *Order) DecodeTransaction() (*solana.Transaction, error) {
	tx, err := solana.TransactionFromBase64(o.Transaction)
	if err != nil {
		return nil, fmt.Errorf("decode order transaction: %w", err)
	}
	return tx, nil
}

// ExecuteResult is the outcome reported by /execute.
type ExecuteResult struct {
	Status       string
	Signature    string
	Slot         uint64
	Code         int
	Error        string
	InputAmount  uint64
	OutputAmount uint64
}

type orderResponse struct {
	RequestID      string      `json:"requestId"`
	Transaction    string      `json:"transaction"`
	InAmount       json.Number `json:"inAmount"`
	OutAmount      json.Number `json:"outAmount"`
	SlippageBps    int         `json:"slippageBps"`
	PriceImpactPct string      `json:"priceImpactPct"`
	Router         string      `json:"router"`
	ErrorCode      int         `json:"errorCode"`
	ErrorMessage   string      `json:"errorMessage"`
	Error          string      `json:"error"`
}

type executeRequest struct {
	SignedTransaction string `json:"signedTransaction"`
	RequestID         string `json:"requestId"`
}

type executeResponse struct {
	Status             string      `json:"status"`
	Signature          string      `json:"signature"`
	Slot               json.Number `json:"slot"`
	Code               int         `json:"code"`
	Error              string      `json:"error"`
	InputAmountResult  json.Number `json:"inputAmountResult"`
	OutputAmountResult json.Number `json:"outputAmountResult"`
}

// Client talks to the Jupiter Ultra API.
type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
}

// NewClient creates an Ultra client.
func NewClient(cfg Config, policy retry.Policy, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-api-key"] = cfg.APIKey
	}
	logger = logger.Named("jupiter")
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:       cfg.BaseURL,
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
			Burst:         int(cfg.RatePerSecond),
			Headers:       headers,
			Retry:         policy,
		}, logger),
		logger: logger,
	}
}

// Order requests an unsigned swap transaction.
func (c *Client) Order(ctx context.Context, req OrderRequest) (*Order, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("taker", req.Taker)
	if req.SlippageBps > 0 {
		q.Set("slippageBps", strconv.Itoa(int(req.SlippageBps)))
	}
	if req.ComputeUnitPriceMicroLamports > 0 {
		q.Set("computeUnitPriceMicroLamports", strconv.FormatUint(req.ComputeUnitPriceMicroLamports, 10))
	}

	var resp orderResponse
	if err := c.http.GetJSON(ctx, "/order", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if resp.Transaction == "" {
		msg := firstNonEmpty(resp.ErrorMessage, resp.Error, "empty transaction")
		return nil, fmt.Errorf("%w: %s -> %s: %s", ErrNoRoute, req.InputMint, req.OutputMint, msg)
	}

	order := &Order{
		RequestID:      resp.RequestID,
		Transaction:    resp.Transaction,
		InAmount:       parseAmount(resp.InAmount),
		OutAmount:      parseAmount(resp.OutAmount),
		SlippageBps:    uint16(resp.SlippageBps),
		PriceImpactPct: resp.PriceImpactPct,
		Router:         resp.Router,
	}
	c.logger.Debug("Order received",
		zap.String("request_id", order.RequestID),
		zap.Uint64("in_amount", order.InAmount),
		zap.Uint64("out_amount", order.OutAmount),
		zap.String("router", order.Router))
	return order, nil
}

// Execute submits a signed order transaction through Jupiter.
func (c *Client) Execute(ctx context.Context, tx *solana.Transaction, requestID string) (*ExecuteResult, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	var resp executeResponse
	err = c.http.PostJSON(ctx, "/execute", executeRequest{
		SignedTransaction: base64.StdEncoding.EncodeToString(raw),
		RequestID:         requestID,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("execute order: %w", err)
	}

	res := &ExecuteResult{
		Status:       resp.Status,
		Signature:    resp.Signature,
		Slot:         parseAmount(resp.Slot),
		Code:         resp.Code,
		Error:        resp.Error,
		InputAmount:  parseAmount(resp.InputAmountResult),
		OutputAmount: parseAmount(resp.OutputAmountResult),
	}
	if res.Status != statusSuccess {
		msg := firstNonEmpty(res.Error, "status "+res.Status)
		return res, fmt.Errorf("%w (code %d): %s", ErrExecuteFailed, res.Code, msg)
	}
	return res, nil
}

func parseAmount(n json.Number) uint64 {
	if n == "" {
		return 0
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
