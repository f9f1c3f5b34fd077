// internal/classifier/acquisition.go
package classifier

import "github.com/rovshanmuradov/launch-sniper/internal/domain"

// Acquisition reports the token wallet bought in rec. A buy is a
// non-excluded mint whose balance owned by wallet grew while the wallet paid
// SOL beyond the fee or an excluded quote mint. The largest raw increase wins.
func (c *Classifier) Acquisition(rec TxRecord, wallet string) (domain.Detection, bool) {
	if rec.Failed || wallet == "" {
		return domain.Detection{}, false
	}

	paid := false
	if d, ok := rec.NativeDelta(wallet); ok && d < 0 && uint64(-d) > rec.Fee {
		paid = true
	}

	var (
		asset string
		best  int64
	)
	for _, mint := range ownedMints(rec, wallet) {
		delta, _, _ := rec.TokenDelta(wallet, mint)
		if c.isExcluded(mint) {
			if delta < 0 {
				paid = true
			}
			continue
		}
		if delta > best {
			asset, best = mint, delta
		}
	}
	if !paid || asset == "" {
		return domain.Detection{}, false
	}

	return domain.Detection{
		Kind:      domain.DetectionAssetAcquired,
		Asset:     asset,
		Signature: rec.Signature,
		Slot:      rec.Slot,
		BlockTime: rec.BlockTime,
	}, true
}

// ownedMints lists the mints held by owner before or after rec, post balances first.
func ownedMints(rec TxRecord, owner string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, balances := range [][]TokenBalance{rec.PostTokenBalances, rec.PreTokenBalances} {
		for _, b := range balances {
			if b.Owner != owner {
				continue
			}
			if _, ok := seen[b.Mint]; ok {
				continue
			}
			seen[b.Mint] = struct{}{}
			out = append(out, b.Mint)
		}
	}
	return out
}
