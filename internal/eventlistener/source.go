// internal/eventlistener/source.go
package eventlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/launch-sniper/internal/classifier"
)

// ErrNotAvailable means the transaction is not yet served by the node.
var ErrNotAvailable = errors.New("transaction not yet available")

// SignatureInfo is one entry of an account's signature history.
type SignatureInfo struct {
	Signature string
	BlockTime time.Time
	Failed    bool
}

// ChainSource reads account history and transactions.
type ChainSource interface {
	// RecentSignatures returns up to limit signatures newer than until, newest first.
	RecentSignatures(ctx context.Context, account, until string, limit int) ([]SignatureInfo, error)
	// FetchTransaction returns ErrNotAvailable while the transaction is not indexed.
	FetchTransaction(ctx context.Context, sig string) (classifier.TxRecord, error)
}

// RPCSource reads the chain through the resilient RPC client.
type RPCSource struct {
	client *rpc.Client
}

// NewRPCSource wraps client.
func NewRPCSource(client *rpc.Client) *RPCSource {
	return &RPCSource{client: client}
}

func (s *RPCSource) RecentSignatures(ctx context.Context, account, until string, limit int) ([]SignatureInfo, error) {
	pk, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return nil, fmt.Errorf("invalid account %q: %w", account, err)
	}
	var untilSig solana.Signature
	if until != "" {
		if untilSig, err = solana.SignatureFromBase58(until); err != nil {
			return nil, fmt.Errorf("invalid signature %q: %w", until, err)
		}
	}

	out, err := s.client.GetSignaturesForAddress(ctx, pk, untilSig, limit)
	if err != nil {
		return nil, err
	}
	infos := make([]SignatureInfo, 0, len(out))
	for _, sig := range out {
		info := SignatureInfo{Signature: sig.Signature.String(), Failed: sig.Err != nil}
		if sig.BlockTime != nil {
			info.BlockTime = sig.BlockTime.Time()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *RPCSource) FetchTransaction(ctx context.Context, sig string) (classifier.TxRecord, error) {
	parsed, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return classifier.TxRecord{}, fmt.Errorf("invalid signature %q: %w", sig, err)
	}
	res, err := s.client.GetTransaction(ctx, parsed)
	if err != nil {
		if errors.Is(err, rpc.ErrTransactionNotFound) {
			return classifier.TxRecord{}, ErrNotAvailable
		}
		return classifier.TxRecord{}, err
	}
	return classifier.FromRPC(sig, res)
}
