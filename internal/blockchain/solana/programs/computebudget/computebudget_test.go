// internal/blockchain/solana/programs/computebudget/computebudget_test.go
package computebudget

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	cb "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, withPrice bool, price uint64) *solana.Message {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{cb.NewSetComputeUnitLimitInstruction(200_000).Build()}
	if withPrice {
		ixs = append(ixs, cb.NewSetComputeUnitPriceInstruction(price).Build())
	}
	ixs = append(ixs, system.NewTransferInstruction(1, payer, solana.NewWallet().PublicKey()).Build())
	tx, err := solana.NewTransaction(ixs, solana.Hash{}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return &tx.Message
}

func TestUnitPrice(t *testing.T) {
	price, idx, ok := UnitPrice(message(t, true, 4_200))
	require.True(t, ok)
	assert.Equal(t, uint64(4_200), price)
	assert.Equal(t, 1, idx)

	_, _, ok = UnitPrice(message(t, false, 0))
	assert.False(t, ok)
}

func TestRaiseUnitPrice(t *testing.T) {
	tests := []struct {
		name    string
		current uint64
		min     uint64
		changed bool
		want    uint64
	}{
		{"raises lower price", 1_000, 5_000, true, 5_000},
		{"keeps higher price", 9_000, 5_000, false, 9_000},
		{"keeps equal price", 5_000, 5_000, false, 5_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := message(t, true, tt.current)
			changed, err := RaiseUnitPrice(msg, tt.min)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			got, _, _ := UnitPrice(msg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRaiseUnitPrice_NoInstruction(t *testing.T) {
	msg := message(t, false, 0)
	changed, err := RaiseUnitPrice(msg, 5_000)
	require.NoError(t, err)
	assert.False(t, changed)
}
