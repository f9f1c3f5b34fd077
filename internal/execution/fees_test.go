// internal/execution/fees_test.go
package execution

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFeeEstimate(t *testing.T) {
	cfg := DefaultFeeConfig()

	seq := func(n int, f func(i int) uint64) []uint64 {
		out := make([]uint64, n)
		for i := range out {
			out[i] = f(i)
		}
		return out
	}

	tests := []struct {
		name    string
		samples []uint64
		want    uint64
	}{
		{"empty window uses default", nil, 5_000},
		{"zeros are ignored", []uint64{0, 0, 0}, 5_000},
		// sorted 1k..10k, index 9 -> 10k, +20%
		{"p90 plus twenty percent", seq(10, func(i int) uint64 { return uint64(10-i) * 1_000 }), 12_000},
		{"single sample", []uint64{2_000}, 2_400},
		{"clamped to min", []uint64{10, 20}, 1_000},
		{"clamped to max", []uint64{500_000}, 100_000},
		{"huge sample clamps to max", []uint64{math.MaxUint64 / 5}, 100_000},
		{"largest sample clamps to max", []uint64{math.MaxUint64}, 100_000},
		{"zeros do not drag p90", append(seq(90, func(int) uint64 { return 0 }), 3_000, 4_000), 4_800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.estimate(tt.samples))
		})
	}
}

func TestFeeEstimate_DefaultIsClamped(t *testing.T) {
	cfg := FeeConfig{Min: 10_000, Max: 20_000, Default: 5_000}.withDefaults()
	assert.Equal(t, uint64(10_000), cfg.estimate(nil))
}

func TestFeeOracle_Refresh(t *testing.T) {
	sampler := &fakeSampler{fees: []uint64{1_000, 50_000}}
	o := NewFeeOracle(FeeConfig{Window: 1}, sampler, nil, zaptest.NewLogger(t))
	assert.Equal(t, uint64(5_000), o.Fee())

	require.NoError(t, o.Refresh(context.Background()))
	assert.Equal(t, uint64(60_000), o.Fee(), "window keeps the newest sample only")

	sampler.err = errors.New("rpc down")
	assert.Error(t, o.Refresh(context.Background()))
	assert.Equal(t, uint64(60_000), o.Fee(), "previous fee kept on error")
}
