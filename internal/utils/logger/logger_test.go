// internal/utils/logger/logger_test.go
package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

func TestNewWritesToRotatedFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "sniper.log")
	cfg.Development = true

	l, err := New(cfg)
	require.NoError(t, err)
	l.WithComponent("test").Info("hello")
	assert.NoError(t, l.Sync())
	assert.FileExists(t, cfg.LogFile)
}

func TestWithTargetFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core), config: DefaultConfig()}

	target := &domain.Target{
		ID:             "t-1",
		UserID:         "u-1",
		AssetAddress:   "Mint111",
		Status:         domain.StatusPending,
		Trigger:        domain.TriggerOnLiquidity,
		AmountLamports: 100_000_000,
		SlippageBps:    1500,
	}
	l.WithTarget(target).Info("created")

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", ctx["target_id"])
	assert.Equal(t, "Mint111", ctx["asset"])
	assert.Equal(t, "pending", ctx["status"])
}

func TestWithOperationAddsCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core), config: DefaultConfig()}

	l.WithOperation("buy").Info("a")
	l.WithOperation("buy").Info("b")

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0].ContextMap()["correlation_id"]
	second := logs.All()[1].ContextMap()["correlation_id"]
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
