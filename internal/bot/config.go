// internal/bot/config.go
package bot

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config controls the target scheduler.
type Config struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Workers      int           `mapstructure:"workers"`
	SeedFile     string        `mapstructure:"seed_file"`
}

// AutoSnipeConfig describes the targets created from detections.
type AutoSnipeConfig struct {
	Enabled        bool            `mapstructure:"enabled"`
	UserID         string          `mapstructure:"user_id"`
	AmountSOL      decimal.Decimal `mapstructure:"amount_sol"`
	SlippagePct    decimal.Decimal `mapstructure:"slippage_pct"`
	PriorityFeeSOL decimal.Decimal `mapstructure:"priority_fee_sol"`
	TakeProfitPct  decimal.Decimal `mapstructure:"take_profit_pct"`
	StopLossPct    decimal.Decimal `mapstructure:"stop_loss_pct"`
}

// DefaultConfig ticks every 2s with four concurrent executions.
func DefaultConfig() Config {
	return Config{TickInterval: 2 * time.Second, Workers: 4}
}

// DefaultAutoSnipe spends 0.1 SOL at 15% slippage with a 100% take-profit and 50% stop-loss.
func DefaultAutoSnipe() AutoSnipeConfig {
	return AutoSnipeConfig{
		AmountSOL:      decimal.RequireFromString("0.1"),
		SlippagePct:    decimal.NewFromInt(15),
		PriorityFeeSOL: decimal.RequireFromString("0.005"),
		TakeProfitPct:  decimal.NewFromInt(100),
		StopLossPct:    decimal.NewFromInt(50),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

func (c AutoSnipeConfig) withDefaults() AutoSnipeConfig {
	d := DefaultAutoSnipe()
	if !c.AmountSOL.IsPositive() {
		c.AmountSOL = d.AmountSOL
	}
	if !c.SlippagePct.IsPositive() {
		c.SlippagePct = d.SlippagePct
	}
	if !c.PriorityFeeSOL.IsPositive() {
		c.PriorityFeeSOL = d.PriorityFeeSOL
	}
	if !c.TakeProfitPct.IsPositive() {
		c.TakeProfitPct = d.TakeProfitPct
	}
	return c
}
