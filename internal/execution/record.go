// internal/execution/record.go
package execution

import (
	"time"

	"github.com/google/uuid"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// NewRecord starts a pending audit row for a swap on behalf of target.
func NewRecord(target *domain.Target, side domain.Side, amountIn uint64, slippageBps uint16, at time.Time) *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		ID:                   uuid.NewString(),
		TargetID:             target.ID,
		UserID:               target.UserID,
		AssetAddress:         target.AssetAddress,
		Side:                 side,
		Status:               domain.ExecutionPending,
		AmountIn:             amountIn,
		RequestedSlippageBps: slippageBps,
		StartedAt:            at,
	}
}

// Apply copies a successful outcome into rec.
func (r *Result) Apply(rec *domain.ExecutionRecord) {
	completed := r.ConfirmedAt
	confirmed := r.ConfirmedAt
	rec.Status = domain.ExecutionSuccess
	rec.AmountIn = r.AmountIn
	rec.AmountOut = r.AmountOut
	rec.QuotedOut = r.QuotedOut
	rec.Price = r.Price
	rec.ActualSlippageBps = r.ActualSlippageBps
	rec.PriorityFee = r.PriorityFee
	rec.TipLamports = r.TipLamports
	rec.Path = r.Path
	rec.Signature = r.Signature
	rec.Slot = r.Slot
	rec.CompletedAt = &completed
	rec.ConfirmedAt = &confirmed
	rec.TotalMs = completed.Sub(rec.StartedAt).Milliseconds()
}

// Fill converts a buy result into the target's fill.
func (r *Result) Fill() domain.Fill {
	return domain.Fill{
		Price:          r.Price,
		AmountReceived: r.AmountOut,
		Decimals:       r.Decimals,
		Signature:      r.Signature,
		ExecutedAt:     r.ConfirmedAt,
	}
}

// Fail marks rec failed with the category carried by err.
func Fail(rec *domain.ExecutionRecord, err error, at time.Time) domain.ErrorCategory {
	cat := CategoryOf(err)
	rec.Status = domain.ExecutionFailed
	rec.ErrorCategory = cat
	rec.ErrorMessage = err.Error()
	rec.CompletedAt = &at
	rec.TotalMs = at.Sub(rec.StartedAt).Milliseconds()
	return cat
}
