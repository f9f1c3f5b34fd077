// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRPCNodes is returned when the client is built without URLs.
	ErrNoRPCNodes = errors.New("no RPC nodes available")

	// ErrTransactionNotFound is returned when a transaction is not yet visible at the requested commitment.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConfirmationTimeout is returned when a signature is not confirmed in time.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrTransactionFailed is returned when a transaction landed with an on-chain error.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
)

// Error is an RPC failure with the node and method that produced it.
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with node and method context.
func NewError(err error, nodeURL, method string) error {
	return &Error{
		Err:     err,
		NodeURL: nodeURL,
		Method:  method,
	}
}
