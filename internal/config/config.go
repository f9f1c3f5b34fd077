// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/launch-sniper/internal/bot"
	"github.com/rovshanmuradov/launch-sniper/internal/eventlistener"
	"github.com/rovshanmuradov/launch-sniper/internal/execution"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
	"github.com/rovshanmuradov/launch-sniper/internal/liquidity"
	"github.com/rovshanmuradov/launch-sniper/internal/marketdata"
	"github.com/rovshanmuradov/launch-sniper/internal/notify"
	"github.com/rovshanmuradov/launch-sniper/internal/position"
	"github.com/rovshanmuradov/launch-sniper/internal/registry"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/logger"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
)

// EnvPrefix prefixes every environment override, e.g. SNIPER_RPC_LIST.
const EnvPrefix = "SNIPER"

// TargetsConfig merges scheduler and registry settings.
type TargetsConfig struct {
	Scheduler bot.Config      `mapstructure:",squash"`
	Registry  registry.Config `mapstructure:",squash"`
}

type Config struct {
	RPCList      []string      `mapstructure:"rpc_list"`
	WebSocketURL string        `mapstructure:"websocket_url"`
	RPCTimeout   time.Duration `mapstructure:"rpc_timeout"`
	PostgresURL  string        `mapstructure:"postgres_url"`

	Log         logger.Config         `mapstructure:"log"`
	Detection   eventlistener.Config  `mapstructure:"detection"`
	Targets     TargetsConfig         `mapstructure:"targets"`
	AutoSnipe   bot.AutoSnipeConfig   `mapstructure:"autosnipe"`
	CopyTrade   bot.AutoSnipeConfig   `mapstructure:"copytrade"`
	Liquidity   liquidity.Config      `mapstructure:"liquidity"`
	Fees        execution.FeeConfig   `mapstructure:"fees"`
	Execution   execution.Config      `mapstructure:"execution"`
	Retry       retry.Policy          `mapstructure:"retry"`
	Position    position.Config       `mapstructure:"position"`
	Jupiter     jupiter.Config        `mapstructure:"jupiter"`
	DexScreener marketdata.Config     `mapstructure:"dexscreener"`
	Telegram    notify.TelegramConfig `mapstructure:"telegram"`
	Wallets     wallet.Config         `mapstructure:"wallets"`
}

func defaults() map[string]any {
	return map[string]any{
		"rpc_list":      []string{},
		"websocket_url": "",
		"rpc_timeout":   "10s",
		"postgres_url":  "",

		"log.file":        "logs/sniper.log",
		"log.max_size":    100,
		"log.max_age":     30,
		"log.max_backups": 5,
		"log.compress":    true,
		"log.development": false,

		"detection.poll_interval":  "15s",
		"detection.max_tx_age":     "60s",
		"detection.dedup_capacity": 1000,
		"detection.fetch_retries":  3,
		"detection.watch_programs": false,
		"detection.programs":       []string{},

		"targets.tick_interval":   "2s",
		"targets.workers":         4,
		"targets.max_pending_age": "15m",
		"targets.max_attempts":    3,
		"targets.seed_file":       "",

		"autosnipe.enabled":          false,
		"autosnipe.user_id":          "",
		"autosnipe.amount_sol":       "0.1",
		"autosnipe.slippage_pct":     "15",
		"autosnipe.priority_fee_sol": "0.005",
		"autosnipe.take_profit_pct":  "100",
		"autosnipe.stop_loss_pct":    "50",

		"copytrade.enabled":          false,
		"copytrade.user_id":          "",
		"copytrade.amount_sol":       "0.011",
		"copytrade.slippage_pct":     "15",
		"copytrade.priority_fee_sol": "0.005",
		"copytrade.take_profit_pct":  "100",
		"copytrade.stop_loss_pct":    "50",

		"liquidity.cache_ttl":        "30s",
		"liquidity.cache_size":       512,
		"liquidity.probe_amount_sol": "0.1",
		"liquidity.filter_enabled":   false,
		"liquidity.mcap_min":         "0",
		"liquidity.mcap_max":         "0",

		"fees.min":     1000,
		"fees.max":     100000,
		"fees.default": 5000,
		"fees.refresh": "30s",
		"fees.window":  100,

		"execution.use_bundles":        true,
		"execution.skip_preflight":     true,
		"execution.tip_sol":            "0.001",
		"execution.jito_url":           execution.DefaultJitoURL,
		"execution.confirm_timeout":    "60s",
		"execution.confirm_interval":   "2s",
		"execution.fee_buffer_sol":     "0.01",
		"execution.reconcile_attempts": 5,
		"execution.reconcile_delay":    "1s",

		"retry.max_retries":   5,
		"retry.base_delay":    "1s",
		"retry.network_delay": "1s",
		"retry.max_jitter":    "500ms",

		"position.interval":          "60s",
		"position.sell_slippage_bps": 1000,

		"jupiter.base_url":       jupiter.DefaultBaseURL,
		"jupiter.api_key":        "",
		"dexscreener.base_url":   marketdata.DefaultBaseURL,
		"telegram.token":         "",
		"telegram.admin_chat_id": "",
		"telegram.base_url":      notify.DefaultTelegramURL,
		"wallets.file":           "",
		"wallets.default_key":    "",
	}
}

// LoadConfig reads path (JSON or YAML), applies defaults and SNIPER_* environment
// overrides and validates the result. An empty path uses defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook,
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.RPCList = cleanList(cfg.RPCList)
	cfg.Detection.Programs = cleanList(cfg.Detection.Programs)

	return &cfg, validateConfig(&cfg)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(from, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		return decimal.NewFromUint64(v), nil
	}
	return data, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return fmt.Errorf("invalid WebSocket URL: %w", err)
		}
	}
	if cfg.PostgresURL != "" {
		if err := validateURLWithCache(cfg.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("invalid postgres_url: %w", err)
		}
	}
	for _, u := range []struct{ name, raw string }{
		{"execution.jito_url", cfg.Execution.JitoURL},
		{"jupiter.base_url", cfg.Jupiter.BaseURL},
		{"dexscreener.base_url", cfg.DexScreener.BaseURL},
	} {
		if err := validateURLWithCache(u.raw, "http"); err != nil {
			return fmt.Errorf("invalid %s: %w", u.name, err)
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	switch {
	case cfg.Detection.PollInterval <= 0:
		return errors.New("invalid detection.poll_interval")
	case cfg.Detection.MaxTxAge <= 0:
		return errors.New("invalid detection.max_tx_age")
	case cfg.Detection.DedupCapacity <= 0:
		return errors.New("invalid detection.dedup_capacity")
	case cfg.Targets.Scheduler.TickInterval <= 0:
		return errors.New("invalid targets.tick_interval")
	case cfg.Targets.Registry.MaxPendingAge <= 0:
		return errors.New("invalid targets.max_pending_age")
	case cfg.Targets.Registry.MaxAttempts <= 0:
		return errors.New("invalid targets.max_attempts")
	case cfg.Retry.MaxRetries < 0:
		return errors.New("invalid retry.max_retries")
	case cfg.Fees.Min > cfg.Fees.Max:
		return errors.New("fees.min exceeds fees.max")
	case cfg.Execution.TipSOL.IsNegative():
		return errors.New("invalid execution.tip_sol")
	case cfg.Execution.ConfirmTimeout <= 0:
		return errors.New("invalid execution.confirm_timeout")
	case cfg.Position.Interval <= 0:
		return errors.New("invalid position.interval")
	case cfg.Position.SellSlippageBps == 0 || cfg.Position.SellSlippageBps > 10_000:
		return errors.New("invalid position.sell_slippage_bps")
	case cfg.Liquidity.McapMax.IsPositive() && cfg.Liquidity.McapMin.GreaterThan(cfg.Liquidity.McapMax):
		return errors.New("liquidity.mcap_min exceeds liquidity.mcap_max")
	}
	if cfg.AutoSnipe.Enabled {
		if err := validateStrategy("autosnipe", cfg.AutoSnipe); err != nil {
			return err
		}
		if cfg.AutoSnipe.UserID == "" && cfg.Telegram.AdminChatID == "" {
			return errors.New("autosnipe needs autosnipe.user_id or telegram.admin_chat_id")
		}
	}
	if cfg.CopyTrade.Enabled {
		return validateStrategy("copytrade", cfg.CopyTrade)
	}
	return nil
}

func validateStrategy(key string, c bot.AutoSnipeConfig) error {
	if !c.AmountSOL.IsPositive() {
		return fmt.Errorf("invalid %s.amount_sol", key)
	}
	pct := c.SlippagePct
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("invalid %s.slippage_pct", key)
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL + "|" + protocol); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL+"|"+protocol, parsed)
	return nil
}
