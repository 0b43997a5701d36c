package pricemodel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
)

func runSeries(t *testing.T, params domain.ModelParams, seed int64, startE6 int64, n int) []int64 {
	t.Helper()
	m, err := New(params, Options{RNG: rand.New(rand.NewSource(seed)), TickIntervalMs: 1000})
	require.NoError(t, err)

	out := make([]int64, 0, n)
	prev := startE6
	for i := 0; i < n; i++ {
		prev = m.Next(prev, int64(i))
		out = append(out, prev)
	}
	return out
}

func TestDeterministicUnderFixedSeed(t *testing.T) {
	cases := []struct {
		name   string
		params domain.ModelParams
	}{
		{"random-walk", domain.RandomWalkParams{Volatility: 0.01}},
		{"mean-revert", domain.MeanRevertParams{MeanPriceE6: 100_000000, RevertSpeed: 0.2, NoiseVolatility: 0.005}},
		{"trending", domain.TrendingParams{DriftE6PerTick: 50_000, NoiseVolatility: 0.002}},
		{"crash", domain.CrashParams{CrashMagnitude: 0.4, CrashDurationMs: 5000, RecoverySpeed: 0.1}},
		{"squeeze", domain.SqueezeParams{SqueezeMagnitude: 0.6, SqueezeDurationMs: 5000, RecoverySpeed: 0.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := runSeries(t, tc.params, 42, 100_000000, 50)
			b := runSeries(t, tc.params, 42, 100_000000, 50)
			require.Equal(t, a, b)

			c := runSeries(t, tc.params, 43, 100_000000, 50)
			if tc.name == "random-walk" || tc.name == "mean-revert" || tc.name == "trending" {
				assert.NotEqual(t, a, c, "different seeds should diverge for stochastic models")
			}
		})
	}
}

func TestPriceStaysWithinBounds(t *testing.T) {
	bounds := domain.PriceBounds{MinPriceE6: 1_000000, MaxPriceE6: 500_000000}
	cases := []struct {
		name   string
		params domain.ModelParams
	}{
		{"random-walk high vol", domain.RandomWalkParams{Volatility: 0.8, Bounds: bounds}},
		{"mean-revert full speed", domain.MeanRevertParams{MeanPriceE6: 100_000000, RevertSpeed: 1, Bounds: bounds}},
		{"mean-revert zero noise", domain.MeanRevertParams{MeanPriceE6: 100_000000, RevertSpeed: 0.5, NoiseVolatility: 0, Bounds: bounds}},
		{"trending hard down", domain.TrendingParams{DriftE6PerTick: -50_000000, Bounds: bounds}},
		{"trending hard up", domain.TrendingParams{DriftE6PerTick: 90_000000, Bounds: bounds}},
		{"crash deep", domain.CrashParams{CrashMagnitude: 0.99, CrashDurationMs: 2000, Bounds: bounds}},
		{"squeeze violent", domain.SqueezeParams{SqueezeMagnitude: 50, SqueezeDurationMs: 2000, Bounds: bounds}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			series := runSeries(t, tc.params, 7, 100_000000, 200)
			for i, p := range series {
				require.Greaterf(t, p, int64(0), "tick %d produced non-positive price", i)
				require.GreaterOrEqualf(t, p, bounds.MinPriceE6, "tick %d below floor", i)
				require.LessOrEqualf(t, p, bounds.MaxPriceE6, "tick %d above cap", i)
			}
		})
	}
}

func TestPriceNeverNonPositiveWithoutExplicitFloor(t *testing.T) {
	// No bounds at all: the default floor must still keep the price positive.
	series := runSeries(t, domain.TrendingParams{DriftE6PerTick: -10_000_000_000}, 1, 100_000000, 10)
	for _, p := range series {
		assert.Positive(t, p)
	}
}

func TestCrashReachesTargetThenRecovers(t *testing.T) {
	start := int64(100_000000)
	params := domain.CrashParams{CrashMagnitude: 0.5, CrashDurationMs: 4000, RecoverySpeed: 0.5}
	m, err := New(params, Options{TickIntervalMs: 1000})
	require.NoError(t, err)

	prev := start
	for i := int64(0); i < 4; i++ {
		prev = m.Next(prev, i)
	}
	// After the crash window the price sits at base*(1-magnitude).
	assert.InDelta(t, 50_000000, prev, 2)

	low := prev
	for i := int64(4); i < 30; i++ {
		prev = m.Next(prev, i)
	}
	assert.Greater(t, prev, low, "recovery phase should pull the price back up")
	assert.LessOrEqual(t, prev, start)
}

func TestSqueezeReachesTarget(t *testing.T) {
	start := int64(100_000000)
	params := domain.SqueezeParams{SqueezeMagnitude: 0.25, SqueezeDurationMs: 5000}
	m, err := New(params, Options{TickIntervalMs: 1000})
	require.NoError(t, err)

	prev := start
	for i := int64(0); i < 5; i++ {
		prev = m.Next(prev, i)
	}
	assert.InDelta(t, 125_000000, prev, 2)

	// Without recovery the price holds the squeezed level.
	held := m.Next(prev, 5)
	assert.Equal(t, prev, held)
}

func TestCustomModelClampsHostileOutput(t *testing.T) {
	params := domain.CustomParams{
		Step:   func(prevE6, _ int64) int64 { return -1 },
		Bounds: domain.PriceBounds{MinPriceE6: 500},
	}
	m, err := New(params, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(500), m.Next(100_000000, 0))
}

func TestNewRejectsInvalidParams(t *testing.T) {
	cases := []domain.ModelParams{
		domain.RandomWalkParams{Volatility: -0.1},
		domain.MeanRevertParams{MeanPriceE6: 0, RevertSpeed: 0.5},
		domain.MeanRevertParams{MeanPriceE6: 100, RevertSpeed: 1.5},
		domain.CrashParams{CrashMagnitude: 1.2, CrashDurationMs: 1000},
		domain.CrashParams{CrashMagnitude: 0.5, CrashDurationMs: 0},
		domain.SqueezeParams{SqueezeMagnitude: 0},
		domain.CustomParams{Step: nil},
		nil,
	}
	for _, p := range cases {
		_, err := New(p, Options{})
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
	}
}

func TestClampHandlesNaNAndInf(t *testing.T) {
	b := domain.PriceBounds{MinPriceE6: 10}
	assert.Equal(t, int64(10), clampE6(math.NaN(), b))
	assert.Equal(t, int64(10), clampE6(math.Inf(1), b))
	assert.Equal(t, int64(10), clampE6(math.Inf(-1), b))
	assert.Equal(t, int64(10), clampE6(-5, b))
}
