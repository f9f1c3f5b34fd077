// internal/domain/target.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a snipe target.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusClosed    Status = "closed"
	StatusPaused    Status = "paused"
)

// HoldingStatuses are the states that own the (user, asset) position slot.
var HoldingStatuses = []Status{StatusExecuting, StatusExecuted, StatusClosed}

// IsActive reports whether a target in this state still represents a standing intent.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusExecuting, StatusPaused:
		return true
	}
	return false
}

// Holds reports whether the state occupies the position slot for its (user, asset).
func (s Status) Holds() bool {
	for _, h := range HoldingStatuses {
		if s == h {
			return true
		}
	}
	return false
}

// Trigger decides when a pending target is executed.
type Trigger string

const (
	TriggerOnLiquidity  Trigger = "on-liquidity"
	TriggerOnFirstTrade Trigger = "on-first-trade"
	TriggerManual       Trigger = "manual"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerOnLiquidity, TriggerOnFirstTrade, TriggerManual:
		return true
	}
	return false
}

// AutoClose holds the take-profit and stop-loss thresholds in percent.
type AutoClose struct {
	Enabled       bool            `json:"enabled"`
	TakeProfitPct decimal.Decimal `json:"take_profit_pct"`
	StopLossPct   decimal.Decimal `json:"stop_loss_pct"`
}

// Fill is the realised result of a buy.
type Fill struct {
	Price          decimal.Decimal `json:"price"` // SOL per whole token
	AmountReceived uint64          `json:"amount_received"`
	Decimals       uint8           `json:"decimals"`
	Signature      string          `json:"signature"`
	ExecutedAt     time.Time       `json:"executed_at"`
}

// Target is a user's standing intent to buy one asset.
type Target struct {
	ID                  string              `json:"id"`
	UserID              string              `json:"user_id"`
	AssetAddress        string              `json:"asset_address"`
	Symbol              string              `json:"symbol,omitempty"`
	Name                string              `json:"name,omitempty"`
	AmountLamports      uint64              `json:"amount_lamports"`
	SlippageBps         uint16              `json:"slippage_bps"`
	MinLiquiditySOL     decimal.Decimal     `json:"min_liquidity_sol"`
	MaxMarketCapUSD     decimal.NullDecimal `json:"max_market_cap_usd"`
	PriorityFeeLamports uint64              `json:"priority_fee_lamports"`
	Trigger             Trigger             `json:"trigger"`
	Status              Status              `json:"status"`
	AutoClose           AutoClose           `json:"auto_close"`
	Fill                *Fill               `json:"fill,omitempty"`
	Attempts            int                 `json:"attempts"`
	MaxAttempts         int                 `json:"max_attempts"`
	LastAttemptAt       *time.Time          `json:"last_attempt_at,omitempty"`
	Notes               []string            `json:"notes,omitempty"`
	IsActive            bool                `json:"is_active"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Clone returns a deep copy.
func (t *Target) Clone() *Target {
	if t == nil {
		return nil
	}
	c := *t
	if t.Fill != nil {
		f := *t.Fill
		c.Fill = &f
	}
	if t.LastAttemptAt != nil {
		at := *t.LastAttemptAt
		c.LastAttemptAt = &at
	}
	c.Notes = append([]string(nil), t.Notes...)
	return &c
}

// AmountUI converts the received amount to whole tokens.
func (f *Fill) AmountUI() decimal.Decimal {
	return decimal.NewFromUint64(f.AmountReceived).Shift(-int32(f.Decimals))
}
