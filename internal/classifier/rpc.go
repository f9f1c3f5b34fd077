// internal/classifier/rpc.go
package classifier

import (
	"fmt"
	"strconv"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// FromRPC converts a getTransaction result into a TxRecord.
func FromRPC(signature string, res *solanarpc.GetTransactionResult) (TxRecord, error) {
	if res == nil || res.Meta == nil {
		return TxRecord{}, fmt.Errorf("transaction %s has no meta", signature)
	}

	rec := TxRecord{
		Signature:    signature,
		Slot:         res.Slot,
		Failed:       res.Meta.Err != nil,
		Logs:         res.Meta.LogMessages,
		Fee:          res.Meta.Fee,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
	}
	if res.BlockTime != nil {
		rec.BlockTime = res.BlockTime.Time()
	}

	if res.Transaction != nil {
		tx, err := res.Transaction.GetTransaction()
		if err != nil {
			return TxRecord{}, fmt.Errorf("decode transaction %s: %w", signature, err)
		}
		for _, key := range tx.Message.AccountKeys {
			rec.AccountKeys = append(rec.AccountKeys, key.String())
		}
		for _, key := range res.Meta.LoadedAddresses.Writable {
			rec.AccountKeys = append(rec.AccountKeys, key.String())
		}
		for _, key := range res.Meta.LoadedAddresses.ReadOnly {
			rec.AccountKeys = append(rec.AccountKeys, key.String())
		}
	}

	var err error
	if rec.PreTokenBalances, err = convertBalances(res.Meta.PreTokenBalances); err != nil {
		return TxRecord{}, err
	}
	if rec.PostTokenBalances, err = convertBalances(res.Meta.PostTokenBalances); err != nil {
		return TxRecord{}, err
	}
	return rec, nil
}

func convertBalances(in []solanarpc.TokenBalance) ([]TokenBalance, error) {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		tb := TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint.String(),
		}
		if b.Owner != nil {
			tb.Owner = b.Owner.String()
		}
		if b.UiTokenAmount != nil {
			tb.Decimals = b.UiTokenAmount.Decimals
			if b.UiTokenAmount.Amount != "" {
				amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("parse token amount %q: %w", b.UiTokenAmount.Amount, err)
				}
				tb.Amount = amount
			}
		}
		out = append(out, tb)
	}
	return out, nil
}

// TokenDelta returns post minus pre raw amount of mint owned by owner, and the mint decimals.
func (r TxRecord) TokenDelta(owner, mint string) (delta int64, decimals uint8, found bool) {
	sum := func(balances []TokenBalance) (uint64, bool) {
		var total uint64
		var seen bool
		for _, b := range balances {
			if b.Owner == owner && b.Mint == mint {
				total += b.Amount
				decimals = b.Decimals
				seen = true
			}
		}
		return total, seen
	}
	pre, inPre := sum(r.PreTokenBalances)
	post, inPost := sum(r.PostTokenBalances)
	if !inPre && !inPost {
		return 0, 0, false
	}
	return int64(post) - int64(pre), decimals, true
}

// NativeDelta returns post minus pre lamports of account, and whether the
// account and both balance arrays were present.
func (r TxRecord) NativeDelta(account string) (int64, bool) {
	for i, key := range r.AccountKeys {
		if key != account {
			continue
		}
		if i >= len(r.PreBalances) || i >= len(r.PostBalances) {
			return 0, false
		}
		return int64(r.PostBalances[i]) - int64(r.PreBalances[i]), true
	}
	return 0, false
}
