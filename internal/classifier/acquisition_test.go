// internal/classifier/acquisition_test.go
package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

const (
	trader    = "Trader1111111111111111111111111111111111111"
	otherMint = "OtherMint11111111111111111111111111111111111"
)

func TestAcquisition(t *testing.T) {
	c := Default()

	tests := []struct {
		name      string
		rec       TxRecord
		wantOK    bool
		wantAsset string
	}{
		{
			name: "sol for token",
			rec: TxRecord{
				Fee:               5000,
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{2_000_000_000},
				PostBalances:      []uint64{1_499_995_000},
				PostTokenBalances: []TokenBalance{{Owner: trader, Mint: newMint, Amount: 1_000_000}},
			},
			wantOK:    true,
			wantAsset: newMint,
		},
		{
			name: "usdc for token",
			rec: TxRecord{
				Fee:               5000,
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{1_000_000},
				PostBalances:      []uint64{995_000},
				PreTokenBalances:  []TokenBalance{{Owner: trader, Mint: USDCMint, Amount: 50_000_000}},
				PostTokenBalances: []TokenBalance{{Owner: trader, Mint: USDCMint, Amount: 10_000_000}, {Owner: trader, Mint: newMint, Amount: 7}},
			},
			wantOK:    true,
			wantAsset: newMint,
		},
		{
			name: "largest increase wins",
			rec: TxRecord{
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{1_000_000_000},
				PostBalances:      []uint64{900_000_000},
				PostTokenBalances: []TokenBalance{{Owner: trader, Mint: otherMint, Amount: 10}, {Owner: trader, Mint: newMint, Amount: 500}},
			},
			wantOK:    true,
			wantAsset: newMint,
		},
		{
			name: "received without paying",
			rec: TxRecord{
				Fee:               5000,
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{1_000_000},
				PostBalances:      []uint64{995_000},
				PostTokenBalances: []TokenBalance{{Owner: trader, Mint: newMint, Amount: 1_000}},
			},
		},
		{
			name: "sold token for sol",
			rec: TxRecord{
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{1_000_000},
				PostBalances:      []uint64{900_000_000},
				PreTokenBalances:  []TokenBalance{{Owner: trader, Mint: newMint, Amount: 1_000}},
				PostTokenBalances: []TokenBalance{{Owner: trader, Mint: newMint, Amount: 0}},
			},
		},
		{
			name: "someone else's balance grew",
			rec: TxRecord{
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{1_000_000_000},
				PostBalances:      []uint64{500_000_000},
				PostTokenBalances: []TokenBalance{{Owner: "Someone", Mint: newMint, Amount: 1_000}},
			},
		},
		{
			name: "failed transaction",
			rec: TxRecord{
				Failed:            true,
				AccountKeys:       []string{trader},
				PreBalances:       []uint64{1_000_000_000},
				PostBalances:      []uint64{500_000_000},
				PostTokenBalances: []TokenBalance{{Owner: trader, Mint: newMint, Amount: 1_000}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec.Signature = "sig"
			det, ok := c.Acquisition(tt.rec, trader)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, domain.DetectionAssetAcquired, det.Kind)
			assert.Equal(t, tt.wantAsset, det.Asset)
			assert.Equal(t, "sig", det.Signature)
		})
	}
}
