// internal/blockchain/solana/transaction/builder.go
package transaction

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// MaxPacketSize is the largest serialized transaction accepted by the network.
const MaxPacketSize = 1232

var (
	ErrSignerNotFound  = errors.New("signer is not a required signer of the transaction")
	ErrNotFullySigned  = errors.New("transaction requires signatures from other parties")
	ErrTooLarge        = errors.New("transaction exceeds packet size")
	ErrReadonlyAccount = errors.New("account is readonly in the message")
)

// AppendTransfer adds a system transfer from the fee payer to a compiled
// message without re-compiling it. The recipient is inserted as a writable
// non-signer and the System program as a readonly non-signer when missing;
// instruction and lookup indices are shifted accordingly.
func AppendTransfer(msg *solana.Message, to solana.PublicKey, lamports uint64) error {
	if len(msg.AccountKeys) == 0 {
		return errors.New("message has no accounts")
	}
	payer := msg.AccountKeys[0]

	toIdx, err := writableIndex(msg, to)
	if err != nil {
		return err
	}
	if toIdx < 0 {
		toIdx = len(msg.AccountKeys) - int(msg.Header.NumReadonlyUnsignedAccounts)
		insertKey(msg, toIdx, to)
	}

	sysIdx := indexOf(msg.AccountKeys, solana.SystemProgramID)
	if sysIdx < 0 {
		sysIdx = len(msg.AccountKeys)
		insertKey(msg, sysIdx, solana.SystemProgramID)
		msg.Header.NumReadonlyUnsignedAccounts++
	}

	data, err := system.NewTransferInstruction(lamports, payer, to).Build().Data()
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	msg.Instructions = append(msg.Instructions, solana.CompiledInstruction{
		ProgramIDIndex: uint16(sysIdx),
		Accounts:       []uint16{0, uint16(toIdx)},
		Data:           data,
	})
	return nil
}

// insertKey places key at pos in the static keys and shifts every compiled
// index at or after pos, including indices into lookup-table accounts.
func insertKey(msg *solana.Message, pos int, key solana.PublicKey) {
	keys := make(solana.PublicKeySlice, 0, len(msg.AccountKeys)+1)
	keys = append(keys, msg.AccountKeys[:pos]...)
	keys = append(keys, key)
	keys = append(keys, msg.AccountKeys[pos:]...)
	msg.AccountKeys = keys

	shift := func(i uint16) uint16 {
		if int(i) >= pos {
			return i + 1
		}
		return i
	}
	for i := range msg.Instructions {
		ix := &msg.Instructions[i]
		ix.ProgramIDIndex = shift(ix.ProgramIDIndex)
		for j := range ix.Accounts {
			ix.Accounts[j] = shift(ix.Accounts[j])
		}
	}
}

// writableIndex returns the index of key when present and writable, -1 when absent.
func writableIndex(msg *solana.Message, key solana.PublicKey) (int, error) {
	idx := indexOf(msg.AccountKeys, key)
	if idx < 0 {
		return -1, nil
	}
	h := msg.Header
	signed := int(h.NumRequiredSignatures)
	switch {
	case idx < signed && idx >= signed-int(h.NumReadonlySignedAccounts):
		return 0, fmt.Errorf("%w: %s", ErrReadonlyAccount, key)
	case idx >= len(msg.AccountKeys)-int(h.NumReadonlyUnsignedAccounts):
		return 0, fmt.Errorf("%w: %s", ErrReadonlyAccount, key)
	}
	return idx, nil
}

func indexOf(keys solana.PublicKeySlice, key solana.PublicKey) int {
	for i, k := range keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}

// Sign places signer's signature in its slot, keeping signatures of other
// required signers.
func Sign(tx *solana.Transaction, signer solana.PrivateKey) error {
	content, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != n {
		sigs := make([]solana.Signature, n)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	pub := signer.PublicKey()
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if !tx.Message.AccountKeys[i].Equals(pub) {
			continue
		}
		sig, err := signer.Sign(content)
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}
		tx.Signatures[i] = sig
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSignerNotFound, pub)
}

// FullySigned reports whether every required signature is present.
func FullySigned(tx *solana.Transaction) bool {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return false
	}
	for _, s := range tx.Signatures {
		if s.IsZero() {
			return false
		}
	}
	return true
}

// CheckSize returns ErrTooLarge when the serialized transaction does not fit a packet.
func CheckSize(tx *solana.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	if len(raw) > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}
	return nil
}
