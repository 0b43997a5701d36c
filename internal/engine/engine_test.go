package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/scenario"
)

// quietInterval keeps the background timer from firing during a test so Tick
// can be driven by hand.
const quietInterval = 3_600_000

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(scenario.Default(), slog.Default())
}

func startConfig(seed int64) Config {
	s := seed
	return Config{
		SessionID:    "sess-test",
		Model:        domain.ModelRandomWalk,
		Params:       domain.RandomWalkParams{Volatility: 0.01},
		StartPriceE6: 100_000000,
		IntervalMs:   quietInterval,
		Seed:         &s,
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	e := newTestEngine(t)

	cases := []Config{
		{SessionID: "", Model: domain.ModelRandomWalk, Params: domain.RandomWalkParams{}, StartPriceE6: 1},
		{SessionID: "s", Model: domain.ModelRandomWalk, Params: domain.RandomWalkParams{}, StartPriceE6: 0},
		{SessionID: "s", Model: "made-up", Params: domain.RandomWalkParams{}, StartPriceE6: 1},
		{SessionID: "s", Model: domain.ModelCrash, Params: domain.RandomWalkParams{}, StartPriceE6: 1},
		{SessionID: "s", Model: domain.ModelRandomWalk, StartPriceE6: 1},
	}
	for _, cfg := range cases {
		_, err := e.Start(context.Background(), cfg)
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
	}
}

func TestStartTwiceFails(t *testing.T) {
	e := newTestEngine(t)
	defer e.Stop()

	snap, err := e.Start(context.Background(), startConfig(1))
	require.NoError(t, err)
	assert.True(t, snap.Running)
	assert.Equal(t, "sess-test", snap.SessionID)

	_, err = e.Start(context.Background(), startConfig(2))
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Equal(t, "sess-test", e.Snapshot().SessionID)
}

func TestDeterministicTickSequence(t *testing.T) {
	series := func() []int64 {
		e := newTestEngine(t)
		_, err := e.Start(context.Background(), startConfig(42))
		require.NoError(t, err)
		defer e.Stop()

		out := make([]int64, 0, 5)
		for i := 0; i < 5; i++ {
			require.True(t, e.Tick())
			out = append(out, e.Snapshot().CurrentPriceE6)
		}
		return out
	}

	a := series()
	b := series()
	require.Equal(t, a, b, "same seed must reproduce the same price path")
	for _, p := range a {
		assert.Positive(t, p)
	}
}

func TestTickPublishesToSubscribers(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(42))
	require.NoError(t, err)
	defer e.Stop()

	ch, cancel := e.Subscribe(8)
	defer cancel()

	require.True(t, e.Tick())
	sample := <-ch
	assert.Equal(t, "sess-test", sample.SourceSessionID)
	assert.Equal(t, domain.ModelRandomWalk, sample.Model)
	assert.Positive(t, sample.PriceE6)
	assert.Equal(t, sample.PriceE6, e.Snapshot().CurrentPriceE6)
}

func TestSlowSubscriberNeverStallsTick(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(42))
	require.NoError(t, err)
	defer e.Stop()

	// Buffer of one and nobody draining: ticks must keep going.
	_, cancel := e.Subscribe(1)
	defer cancel()

	for i := 0; i < 10; i++ {
		require.True(t, e.Tick())
	}
	assert.Equal(t, int64(10), e.UpdatesCount())
	assert.Equal(t, int64(9), e.DroppedSamples())
}

func TestTriggerScenarioSwapsModelPreservingCounters(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(42))
	require.NoError(t, err)
	defer e.Stop()

	for i := 0; i < 3; i++ {
		e.Tick()
	}
	before := e.Snapshot()

	echo, err := e.TriggerScenario("crash")
	require.NoError(t, err)
	assert.Equal(t, "crash", echo.Scenario)
	assert.Equal(t, domain.ModelCrash, echo.Model)
	assert.Equal(t, before.SessionID, echo.SessionID)

	after := e.Snapshot()
	assert.Equal(t, before.SessionID, after.SessionID)
	assert.Equal(t, before.UpdatesCount, after.UpdatesCount, "counter must not reset")
	assert.Equal(t, before.StartedAt, after.StartedAt)
	assert.Equal(t, domain.ModelCrash, after.Model)

	e.Tick()
	assert.Equal(t, before.UpdatesCount+1, e.UpdatesCount())
	assert.Less(t, e.Snapshot().CurrentPriceE6, before.CurrentPriceE6, "crash model should push price down")
}

func TestTriggerScenarioUnknownName(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(1))
	require.NoError(t, err)
	defer e.Stop()

	_, err = e.TriggerScenario("does-not-exist")
	require.ErrorIs(t, err, domain.ErrUnknownScenario)
}

func TestTriggerScenarioWhenIdle(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.TriggerScenario("crash")
	require.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestStopIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(1))
	require.NoError(t, err)

	e.Tick()
	first := e.Stop()
	assert.False(t, first.Running)
	assert.Equal(t, int64(1), first.UpdatesCount)

	second := e.Stop()
	assert.Equal(t, first, second, "stopping an idle engine returns last known state")

	assert.False(t, e.Tick(), "tick after stop must be a no-op")
	assert.Equal(t, int64(1), e.UpdatesCount())
}

func TestHardUpdateCapStopsEngine(t *testing.T) {
	e := newTestEngine(t)
	cfg := startConfig(1)
	cfg.MaxUpdates = 3
	_, err := e.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.True(t, e.Tick())
	require.True(t, e.Tick())
	assert.False(t, e.Tick(), "third tick hits the cap")
	assert.False(t, e.Snapshot().Running)
	assert.Equal(t, int64(3), e.UpdatesCount())
}

func TestRestartAfterStopGetsFreshState(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(1))
	require.NoError(t, err)
	e.Tick()
	e.Stop()

	cfg := startConfig(2)
	cfg.SessionID = "sess-second"
	snap, err := e.Start(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Stop()

	assert.Equal(t, "sess-second", snap.SessionID)
	assert.Equal(t, int64(0), snap.UpdatesCount)
	assert.Equal(t, int64(100_000000), snap.CurrentPriceE6)
}

func TestCancelDuringConcurrentTicksNeverPanics(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), startConfig(7))
	require.NoError(t, err)
	defer e.Stop()

	stop := make(chan struct{})
	var tickers sync.WaitGroup
	for i := 0; i < 4; i++ {
		tickers.Add(1)
		go func() {
			defer tickers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					e.Tick()
				}
			}
		}()
	}

	var subs sync.WaitGroup
	for i := 0; i < 4; i++ {
		subs.Add(1)
		go func() {
			defer subs.Done()
			for j := 0; j < 500; j++ {
				ch, cancel := e.Subscribe(1)
				select {
				case <-ch:
				default:
				}
				cancel()
			}
		}()
	}
	subs.Wait()
	close(stop)
	tickers.Wait()

	assert.Greater(t, e.UpdatesCount(), int64(0))
	assert.Equal(t, "sess-test", e.Snapshot().SessionID)
}
