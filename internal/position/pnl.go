// internal/position/pnl.go
package position

import (
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// PnL is the valuation of an open position at the current price.
type PnL struct {
	EntryPrice   decimal.Decimal // SOL per whole token
	CurrentPrice decimal.Decimal
	Amount       decimal.Decimal // whole tokens
	Invested     decimal.Decimal // SOL
	CurrentValue decimal.Decimal // SOL
	NetPnL       decimal.Decimal // SOL
	ChangePct    decimal.Decimal
}

// Evaluate values fill at price.
func Evaluate(fill domain.Fill, price decimal.Decimal) PnL {
	amount := fill.AmountUI()
	p := PnL{
		EntryPrice:   fill.Price,
		CurrentPrice: price,
		Amount:       amount,
		Invested:     fill.Price.Mul(amount),
		CurrentValue: price.Mul(amount),
	}
	p.NetPnL = p.CurrentValue.Sub(p.Invested)
	if fill.Price.IsPositive() {
		p.ChangePct = price.Sub(fill.Price).Div(fill.Price).Mul(hundred)
	}
	return p
}

// Exit is the auto-close decision for a position.
type Exit string

const (
	Hold       Exit = ""
	TakeProfit Exit = "take-profit"
	StopLoss   Exit = "stop-loss"
)

// Decide applies the target's thresholds. A zero threshold is disabled.
func Decide(ac domain.AutoClose, changePct decimal.Decimal) Exit {
	if ac.TakeProfitPct.IsPositive() && changePct.GreaterThanOrEqual(ac.TakeProfitPct) {
		return TakeProfit
	}
	if sl := ac.StopLossPct.Abs(); sl.IsPositive() && changePct.LessThanOrEqual(sl.Neg()) {
		return StopLoss
	}
	return Hold
}
