// internal/execution/submit.go
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solana/programs/computebudget"
	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solana/transaction"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
)

// TxSender submits signed transactions to an RPC node.
type TxSender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error)
}

// OrderExecutor executes signed orders through the quote service.
type OrderExecutor interface {
	Execute(ctx context.Context, tx *solana.Transaction, requestID string) (*jupiter.ExecuteResult, error)
}

// Submission is a signed transaction handed to one submission path.
type Submission struct {
	Signature   solana.Signature
	Path        domain.SubmissionPath
	TipLamports uint64
	// Landed is set when the path already reported the transaction as confirmed.
	Landed bool
	Slot   uint64
	Result *jupiter.ExecuteResult
}

type submitter struct {
	useBundles    bool
	skipPreflight bool
	tipLamports   uint64
	bundles       BundleSender
	sender        TxSender
	executor      OrderExecutor
	logger        *zap.Logger
}

// submit signs the order transaction and tries bundle, fast and standard
// paths in that order. fee is the compute-unit price the bundle transaction
// is raised to.
func (s *submitter) submit(ctx context.Context, order *jupiter.Order, wallet solana.PrivateKey, fee uint64) (*Submission, error) {
	tx, err := order.DecodeTransaction()
	if err != nil {
		return nil, &Error{Category: domain.ErrQuoteService, Op: "decode order", Err: err}
	}
	solo := tx.Message.Header.NumRequiredSignatures == 1

	if s.useBundles && s.bundles != nil && solo {
		sub, err := s.submitBundle(ctx, order, wallet, fee)
		switch {
		case err == nil:
			return sub, nil
		case sub != nil:
			// The tipped transaction may still land; another path would risk a second buy.
			s.logger.Warn("Bundle outcome unknown, awaiting confirmation",
				zap.String("signature", sub.Signature.String()), zap.Error(err))
			return sub, nil
		default:
			s.logger.Warn("Bundle path unavailable, falling back", zap.String("request_id", order.RequestID), zap.Error(err))
		}
	}

	if err := transaction.Sign(tx, wallet); err != nil {
		return nil, &Error{Category: domain.ErrUnknown, Op: "sign", Err: err}
	}

	if s.skipPreflight && s.sender != nil && solo {
		sig, err := s.sender.SendTransaction(ctx, tx, true)
		if err == nil {
			return &Submission{Signature: sig, Path: domain.PathFast}, nil
		}
		s.logger.Warn("Fast path failed, falling back", zap.String("request_id", order.RequestID), zap.Error(err))
	}

	res, err := s.executor.Execute(ctx, tx, order.RequestID)
	if err != nil {
		return nil, &Error{Category: categorizeExecute(res, err), Op: "execute", Err: err}
	}
	sig, err := solana.SignatureFromBase58(res.Signature)
	if err != nil {
		if len(tx.Signatures) == 0 {
			return nil, &Error{Category: domain.ErrUnknown, Op: "execute", Err: fmt.Errorf("parse signature: %w", err)}
		}
		sig = tx.Signatures[0]
	}
	return &Submission{Signature: sig, Path: domain.PathStandard, Landed: true, Slot: res.Slot, Result: res}, nil
}

// submitBundle tips the swap transaction itself and posts it as a single
// bundle. A non-nil Submission with an error means the outcome is unknown.
func (s *submitter) submitBundle(ctx context.Context, order *jupiter.Order, wallet solana.PrivateKey, fee uint64) (*Submission, error) {
	tx, err := order.DecodeTransaction()
	if err != nil {
		return nil, err
	}
	if err := transaction.AppendTransfer(&tx.Message, RandomTipAccount(), s.tipLamports); err != nil {
		return nil, err
	}
	if _, err := computebudget.RaiseUnitPrice(&tx.Message, fee); err != nil {
		return nil, err
	}
	tx.Signatures = nil
	if err := transaction.Sign(tx, wallet); err != nil {
		return nil, err
	}
	if err := transaction.CheckSize(tx); err != nil {
		return nil, err
	}

	sub := &Submission{Signature: tx.Signatures[0], Path: domain.PathBundle, TipLamports: s.tipLamports}
	bundleID, err := s.bundles.SendBundle(ctx, []*solana.Transaction{tx})
	if err != nil {
		if errors.Is(err, ErrBundleRejected) {
			return nil, err
		}
		return sub, err
	}
	s.logger.Info("Bundle submitted",
		zap.String("bundle_id", bundleID),
		zap.String("signature", sub.Signature.String()),
		zap.Uint64("tip_lamports", s.tipLamports))
	return sub, nil
}
