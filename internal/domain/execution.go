// internal/domain/execution.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorCategory classifies execution failures for reporting and retry policy.
type ErrorCategory string

const (
	ErrBalance           ErrorCategory = "Balance"
	ErrSlippage          ErrorCategory = "Slippage"
	ErrQuoteService      ErrorCategory = "QuoteService"
	ErrRateLimit         ErrorCategory = "RateLimit"
	ErrTimeout           ErrorCategory = "Timeout"
	ErrNetwork           ErrorCategory = "Network"
	ErrDataInconsistency ErrorCategory = "DataInconsistency"
	ErrUnknown           ErrorCategory = "Unknown"
)

// Terminal reports whether a failure of this category ends the target
// without consuming further attempts.
func (c ErrorCategory) Terminal() bool {
	switch c {
	case ErrBalance, ErrSlippage, ErrDataInconsistency:
		return true
	}
	return false
}

// Side is the direction of a swap.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExecutionStatus is the state of one execution attempt.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// SubmissionPath identifies how a signed transaction reached the chain.
type SubmissionPath string

const (
	PathBundle   SubmissionPath = "bundle"
	PathFast     SubmissionPath = "fast"
	PathStandard SubmissionPath = "standard"
)

// ProfitLoss is the latest valuation of an executed buy.
type ProfitLoss struct {
	CurrentValue  decimal.Decimal `json:"current_value"`  // SOL
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // SOL
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ExecutionRecord is the audit row of a single execution attempt.
type ExecutionRecord struct {
	ID                   string          `json:"id"`
	TargetID             string          `json:"target_id"`
	UserID               string          `json:"user_id"`
	AssetAddress         string          `json:"asset_address"`
	Side                 Side            `json:"side"`
	Status               ExecutionStatus `json:"status"`
	AmountIn             uint64          `json:"amount_in"`
	AmountOut            uint64          `json:"amount_out"`
	QuotedOut            uint64          `json:"quoted_out"`
	Price                decimal.Decimal `json:"price"`
	RequestedSlippageBps uint16          `json:"requested_slippage_bps"`
	ActualSlippageBps    int64           `json:"actual_slippage_bps"`
	PriorityFee          uint64          `json:"priority_fee"` // micro-lamports per CU
	TipLamports          uint64          `json:"tip_lamports"`
	Path                 SubmissionPath  `json:"path,omitempty"`
	Signature            string          `json:"signature,omitempty"`
	Slot                 uint64          `json:"slot"`
	DetectedAt           *time.Time      `json:"detected_at,omitempty"`
	StartedAt            time.Time       `json:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	ConfirmedAt          *time.Time      `json:"confirmed_at,omitempty"`
	TotalMs              int64           `json:"total_ms"`
	ErrorCategory        ErrorCategory   `json:"error_category,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	ProfitLoss           *ProfitLoss     `json:"profit_loss,omitempty"`
}

// Clone returns a deep copy.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	if r == nil {
		return nil
	}
	c := *r
	for _, p := range []**time.Time{&c.DetectedAt, &c.CompletedAt, &c.ConfirmedAt} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	if r.ProfitLoss != nil {
		pl := *r.ProfitLoss
		c.ProfitLoss = &pl
	}
	return &c
}

// ExecutionStats aggregates a user's execution records by status.
type ExecutionStats struct {
	Status        ExecutionStatus `json:"status"`
	Count         int             `json:"count"`
	TotalAmountIn uint64          `json:"total_amount_in"`
	AvgMs         float64         `json:"avg_ms"`
}
