// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 2 * time.Second
	tokenAmountOffset   = 64
)

// Config configures the resilient client.
type Config struct {
	URLs    []string
	Timeout time.Duration // per attempt
	Retry   retry.Policy
}

// Client rotates requests across RPC nodes and retries rate-limit and
// transient network failures.
type Client struct {
	nodes   []*solanarpc.Client
	urls    []string
	next    atomic.Uint64
	timeout time.Duration
	policy  retry.Policy
	logger  *zap.Logger
}

// NewClient creates a client over the given node URLs.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrNoRPCNodes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	nodes := make([]*solanarpc.Client, len(cfg.URLs))
	for i, url := range cfg.URLs {
		nodes[i] = solanarpc.New(url)
	}

	return &Client{
		nodes:   nodes,
		urls:    cfg.URLs,
		timeout: cfg.Timeout,
		policy:  cfg.Retry,
		logger:  logger.Named("rpc-client"),
	}, nil
}

// pick returns the next node round-robin.
func (c *Client) pick() (*solanarpc.Client, string) {
	i := (c.next.Add(1) - 1) % uint64(len(c.nodes))
	return c.nodes[i], c.urls[i]
}

// execute runs fn against rotating nodes under the retry policy.
func execute[T any](ctx context.Context, c *Client, method string, fn func(context.Context, *solanarpc.Client) (T, error)) (T, error) {
	var lastURL string
	v, err := retry.Do(ctx, c.policy, c.logger, method, func(ctx context.Context) (T, error) {
		node, url := c.pick()
		lastURL = url

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(callCtx, node)
	})
	if err != nil {
		return v, NewError(err, lastURL, method)
	}
	return v, nil
}

// GetBalance returns the native balance in lamports.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return execute(ctx, c, "getBalance", func(ctx context.Context, node *solanarpc.Client) (uint64, error) {
		out, err := node.GetBalance(ctx, account, solanarpc.CommitmentConfirmed)
		if err != nil {
			return 0, err
		}
		return out.Value, nil
	})
}

// GetTokenBalance sums the raw amount of every token account owner holds for mint.
// Works for both the SPL Token and Token-2022 programs.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	return execute(ctx, c, "getTokenAccountsByOwner", func(ctx context.Context, node *solanarpc.Client) (uint64, error) {
		out, err := node.GetTokenAccountsByOwner(ctx, owner,
			&solanarpc.GetTokenAccountsConfig{Mint: mint.ToPointer()},
			&solanarpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64, Commitment: solanarpc.CommitmentConfirmed},
		)
		if err != nil {
			return 0, err
		}
		var total uint64
		for _, acc := range out.Value {
			if acc == nil || acc.Account == nil || acc.Account.Data == nil {
				continue
			}
			data := acc.Account.Data.GetBinary()
			if len(data) < tokenAmountOffset+8 {
				continue
			}
			total += binary.LittleEndian.Uint64(data[tokenAmountOffset : tokenAmountOffset+8])
		}
		return total, nil
	})
}

// GetSignaturesForAddress returns up to limit signatures newer than until, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, account solana.PublicKey, until solana.Signature, limit int) ([]*solanarpc.TransactionSignature, error) {
	return execute(ctx, c, "getSignaturesForAddress", func(ctx context.Context, node *solanarpc.Client) ([]*solanarpc.TransactionSignature, error) {
		return node.GetSignaturesForAddressWithOpts(ctx, account, &solanarpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Until:      until,
			Commitment: solanarpc.CommitmentConfirmed,
		})
	})
}

// GetTransaction fetches a confirmed transaction, including v0 transactions.
// Returns ErrTransactionNotFound while the node has not indexed it yet.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*solanarpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	out, err := execute(ctx, c, "getTransaction", func(ctx context.Context, node *solanarpc.Client) (*solanarpc.GetTransactionResult, error) {
		return node.GetTransaction(ctx, sig, &solanarpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     solanarpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if out == nil || out.Meta == nil {
		return nil, ErrTransactionNotFound
	}
	return out, nil
}

// GetRecentPrioritizationFees returns recent per-slot priority fees in micro-lamports per CU.
func (c *Client) GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]uint64, error) {
	return execute(ctx, c, "getRecentPrioritizationFees", func(ctx context.Context, node *solanarpc.Client) ([]uint64, error) {
		out, err := node.GetRecentPrioritizationFees(ctx, accounts)
		if err != nil {
			return nil, err
		}
		fees := make([]uint64, 0, len(out))
		for _, f := range out {
			fees = append(fees, f.PrioritizationFee)
		}
		return fees, nil
	})
}

// GetLatestBlockhash returns the latest finalized blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return execute(ctx, c, "getLatestBlockhash", func(ctx context.Context, node *solanarpc.Client) (solana.Hash, error) {
		out, err := node.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
		if err != nil {
			return solana.Hash{}, err
		}
		return out.Value.Blockhash, nil
	})
}

// SendTransaction submits a signed transaction. Resubmitting the same signed
// transaction is idempotent on chain.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error) {
	maxRetries := uint(0)
	return execute(ctx, c, "sendTransaction", func(ctx context.Context, node *solanarpc.Client) (solana.Signature, error) {
		return node.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
			SkipPreflight:       skipPreflight,
			PreflightCommitment: solanarpc.CommitmentConfirmed,
			MaxRetries:          &maxRetries,
		})
	})
}

// GetSignatureStatus returns the status of one signature, or nil if unknown.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	return execute(ctx, c, "getSignatureStatuses", func(ctx context.Context, node *solanarpc.Client) (*solanarpc.SignatureStatusesResult, error) {
		out, err := node.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return nil, err
		}
		if out == nil || len(out.Value) == 0 {
			return nil, nil
		}
		return out.Value[0], nil
	})
}

// WaitForConfirmation polls until sig is confirmed or finalized and returns its slot.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature, timeout, interval time.Duration) (uint64, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
			}
			c.logger.Debug("Signature status check failed", zap.String("signature", sig.String()), zap.Error(err))
		case status == nil:
		case status.Err != nil:
			return status.Slot, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
		case status.ConfirmationStatus == solanarpc.ConfirmationStatusConfirmed,
			status.ConfirmationStatus == solanarpc.ConfirmationStatusFinalized:
			return status.Slot, nil
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
		case <-ticker.C:
		}
	}
}

// Close releases resources.
func (c *Client) Close() {}
