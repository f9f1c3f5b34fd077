// internal/registry/seed.go
package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// seedFile is the YAML layout of a targets file.
type seedFile struct {
	Targets []struct {
		User            string  `yaml:"user"`
		Asset           string  `yaml:"asset"`
		Symbol          string  `yaml:"symbol"`
		AmountSol       float64 `yaml:"amount_sol"`
		SlippagePercent float64 `yaml:"slippage_percent"`
		MinLiquiditySol float64 `yaml:"min_liquidity_sol"`
		MaxMarketCapUSD float64 `yaml:"max_market_cap_usd"`
		PriorityFeeSol  float64 `yaml:"priority_fee_sol"`
		Trigger         string  `yaml:"trigger"`
		TakeProfitPct   float64 `yaml:"take_profit_pct"`
		StopLossPct     float64 `yaml:"stop_loss_pct"`
	} `yaml:"targets"`
}

func clamp(val, min, max, def float64) float64 {
	if val < min || val > max {
		return def
	}
	return val
}

func solToLamports(sol float64) uint64 {
	return uint64(decimal.NewFromFloat(sol).Shift(9).IntPart())
}

// LoadSeedFile reads targets to create at startup. Invalid entries are
// skipped with a warning.
func LoadSeedFile(path string, logger *zap.Logger) ([]NewTarget, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	out := make([]NewTarget, 0, len(file.Targets))
	for i, s := range file.Targets {
		trigger := domain.Trigger(s.Trigger)
		if s.Trigger == "" {
			trigger = domain.TriggerOnLiquidity
		}

		nt := NewTarget{
			UserID:              s.User,
			AssetAddress:        s.Asset,
			Symbol:              s.Symbol,
			AmountLamports:      solToLamports(s.AmountSol),
			SlippageBps:         uint16(clamp(s.SlippagePercent, 0.5, 100, 1.0) * 100),
			MinLiquiditySOL:     decimal.NewFromFloat(s.MinLiquiditySol),
			PriorityFeeLamports: solToLamports(s.PriorityFeeSol),
			Trigger:             trigger,
			Note:                "seeded from " + filepath.Base(path),
		}
		if s.MaxMarketCapUSD > 0 {
			nt.MaxMarketCapUSD = decimal.NewNullDecimal(decimal.NewFromFloat(s.MaxMarketCapUSD))
		}
		if s.TakeProfitPct > 0 {
			nt.AutoClose = domain.AutoClose{
				Enabled:       true,
				TakeProfitPct: decimal.NewFromFloat(s.TakeProfitPct),
				StopLossPct:   decimal.NewFromFloat(s.StopLossPct),
			}
		}

		if err := nt.Validate(); err != nil {
			logger.Warn("Skipping invalid seed target", zap.Int("index", i), zap.String("asset", s.Asset), zap.Error(err))
			continue
		}
		out = append(out, nt)
	}

	logger.Info("Loaded seed targets", zap.Int("count", len(out)), zap.Int("skipped", len(file.Targets)-len(out)))
	return out, nil
}
