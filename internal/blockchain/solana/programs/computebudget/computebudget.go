// internal/blockchain/solana/programs/computebudget/computebudget.go
package computebudget

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	cb "github.com/gagliardetto/solana-go/programs/compute-budget"
)

var ProgramID = solana.ComputeBudget

const (
	RequestUnitsDeprecated uint8 = 0
	RequestHeapFrame       uint8 = 1
	SetComputeUnitLimit    uint8 = 2
	SetComputeUnitPrice    uint8 = 3
)

const unitPriceDataLen = 9

// UnitPrice finds the SetComputeUnitPrice instruction of a compiled message
// and returns its price in micro-lamports per CU.
func UnitPrice(msg *solana.Message) (price uint64, index int, found bool) {
	for i, ix := range msg.Instructions {
		if !isUnitPrice(msg, ix) {
			continue
		}
		return binary.LittleEndian.Uint64(ix.Data[1:unitPriceDataLen]), i, true
	}
	return 0, -1, false
}

// RaiseUnitPrice sets the compute-unit price to min when the message pays
// less. It reports whether the message changed. Messages without a price
// instruction are left untouched.
func RaiseUnitPrice(msg *solana.Message, min uint64) (bool, error) {
	price, idx, ok := UnitPrice(msg)
	if !ok || price >= min {
		return false, nil
	}
	data, err := cb.NewSetComputeUnitPriceInstruction(min).Build().Data()
	if err != nil {
		return false, err
	}
	msg.Instructions[idx].Data = data
	return true, nil
}

func isUnitPrice(msg *solana.Message, ix solana.CompiledInstruction) bool {
	if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) || !msg.AccountKeys[ix.ProgramIDIndex].Equals(ProgramID) {
		return false
	}
	return len(ix.Data) == unitPriceDataLen && ix.Data[0] == SetComputeUnitPrice
}
