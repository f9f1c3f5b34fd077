// internal/execution/errors_test.go
package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/httpclient"
)

func TestCategorize(t *testing.T) {
	simulation := &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Error processing Instruction 3",
		Data: map[string]interface{}{
			"logs": []interface{}{
				"Program log: AnchorError occurred. Error Code: TooLittleSolReceived. Error Number: 6003. Error Message: Slippage exceeded.",
			},
		},
	}

	tests := []struct {
		name string
		err  error
		want domain.ErrorCategory
	}{
		{"nil", nil, domain.ErrUnknown},
		{"balance sentinel", fmt.Errorf("check: %w", ErrInsufficientBalance), domain.ErrBalance},
		{"insufficient lamports", errors.New("Transfer: insufficient lamports 10, need 20"), domain.ErrBalance},
		{"custom slippage code", errors.New("custom program error: 0x1771"), domain.ErrSlippage},
		{"anchor slippage in simulation logs", simulation, domain.ErrSlippage},
		{"confirmation timeout", fmt.Errorf("%w: abc", rpc.ErrConfirmationTimeout), domain.ErrTimeout},
		{"deadline", context.DeadlineExceeded, domain.ErrTimeout},
		{"no route", fmt.Errorf("%w: a -> b", jupiter.ErrNoRoute), domain.ErrQuoteService},
		{"rate limit", &httpclient.StatusError{Code: 429}, domain.ErrRateLimit},
		{"gateway", &httpclient.StatusError{Code: 502}, domain.ErrNetwork},
		{"connection reset", errors.New("read: connection reset by peer"), domain.ErrNetwork},
		{"other", errors.New("something odd"), domain.ErrUnknown},
		{"already categorized", &Error{Category: domain.ErrDataInconsistency, Op: "x", Err: errors.New("y")}, domain.ErrDataInconsistency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	err := wrap("order", errors.New("bad request"), domain.ErrQuoteService)
	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, domain.ErrQuoteService, e.Category)
	assert.Equal(t, "order", e.Op)

	inner := &Error{Category: domain.ErrBalance, Op: "balance", Err: ErrInsufficientBalance}
	assert.Same(t, inner, wrap("order", inner, domain.ErrQuoteService))

	rl := wrap("order", &httpclient.StatusError{Code: 429}, domain.ErrQuoteService)
	assert.Equal(t, domain.ErrRateLimit, CategoryOf(rl))
}
