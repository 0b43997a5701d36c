package fleet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/marketstate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAt(priceE6, ts int64) domain.PriceSample {
	return domain.PriceSample{PriceE6: priceE6, TimestampMs: ts, Model: domain.ModelRandomWalk}
}

func alwaysOK(context.Context, domain.TradeIntent) (bool, error) { return true, nil }

func degenConfig(name string) domain.BotConfig {
	return domain.BotConfig{
		Type:            domain.BotDegen,
		Name:            name,
		MaxPositionSize: 100,
	}
}

func newTestFleet(t *testing.T, exec ExecuteFunc) *Fleet {
	t.Helper()
	f, err := New(Config{Executor: exec, Logger: testLogger()})
	require.NoError(t, err)
	return f
}

func TestNewRequiresExecutor(t *testing.T) {
	_, err := New(Config{Logger: testLogger()})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestAddBotRejectsDuplicates(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.NoError(t, f.AddBot(degenConfig("twin")))
	require.ErrorIs(t, f.AddBot(degenConfig("twin")), domain.ErrInvalidConfig)
}

func TestRemoveBotUnknown(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.ErrorIs(t, f.RemoveBot("ghost"), domain.ErrNotFound)
}

func TestStartTwiceFails(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.NoError(t, f.Start())
	defer f.Stop()
	require.ErrorIs(t, f.Start(), domain.ErrAlreadyRunning)
}

func TestInvalidSamplesAreDroppedBeforeAgents(t *testing.T) {
	var calls atomic.Int64
	exec := func(context.Context, domain.TradeIntent) (bool, error) {
		calls.Add(1)
		return true, nil
	}
	f := newTestFleet(t, exec)
	require.NoError(t, f.AddBot(degenConfig("d1")))
	require.NoError(t, f.Start())
	defer f.Stop()

	f.HandleSample(context.Background(), sampleAt(0, 100))
	f.HandleSample(context.Background(), sampleAt(-5, 200))

	snap := f.Snapshot()
	assert.Equal(t, int64(2), snap.DroppedPriceSamples)
	assert.Zero(t, calls.Load(), "agents must never see invalid samples")
}

func TestIntentsReachExecutorAndCounters(t *testing.T) {
	var calls atomic.Int64
	exec := func(_ context.Context, intent domain.TradeIntent) (bool, error) {
		calls.Add(1)
		require.NotEmpty(t, intent.ID)
		require.Equal(t, "d1", intent.OriginatingAgent)
		return true, nil
	}
	f := newTestFleet(t, exec)
	require.NoError(t, f.AddBot(degenConfig("d1")))
	require.NoError(t, f.Start())

	for i := int64(0); i < 10; i++ {
		f.HandleSample(context.Background(), sampleAt(1_000_000, (i+1)*100))
	}
	f.Stop() // drains in-flight executions

	require.Positive(t, calls.Load())
	snap := f.Snapshot()
	assert.Equal(t, calls.Load(), snap.TotalTradesExecuted)
	assert.Zero(t, snap.TotalTradesFailed)
}

func TestExecutorFailureMovesFailureCounter(t *testing.T) {
	exec := func(context.Context, domain.TradeIntent) (bool, error) {
		return false, errors.New("submission refused")
	}
	f := newTestFleet(t, exec)
	require.NoError(t, f.AddBot(degenConfig("d1")))
	require.NoError(t, f.Start())

	f.HandleSample(context.Background(), sampleAt(1_000_000, 100))
	f.Stop()

	snap := f.Snapshot()
	assert.Zero(t, snap.TotalTradesExecuted)
	assert.Positive(t, snap.TotalTradesFailed)
}

func TestStaleResultsDroppedAfterRemoval(t *testing.T) {
	release := make(chan struct{})
	exec := func(context.Context, domain.TradeIntent) (bool, error) {
		<-release
		return true, nil
	}
	f := newTestFleet(t, exec)
	require.NoError(t, f.AddBot(degenConfig("d1")))
	require.NoError(t, f.Start())

	f.HandleSample(context.Background(), sampleAt(1_000_000, 100))
	require.NoError(t, f.RemoveBot("d1"))
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	f.Stop()

	snap := f.Snapshot()
	assert.Empty(t, snap.Bots)
	assert.Zero(t, snap.TotalTradesExecuted, "results for removed bots are discarded")
}

func TestRunConsumesSubscriptionInOrder(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.NoError(t, f.AddBot(degenConfig("d1")))
	require.NoError(t, f.Start())

	ch := make(chan domain.PriceSample, 8)
	for i := int64(0); i < 5; i++ {
		ch <- sampleAt(1_000_000+i, (i+1)*100)
	}
	close(ch)
	f.Run(context.Background(), ch)
	f.Stop()

	assert.Positive(t, f.Snapshot().TotalTradesExecuted)
}

func TestTriggerWhale(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.NoError(t, f.AddBot(domain.BotConfig{
		Type:            domain.BotWhale,
		Name:            "moby",
		MaxPositionSize: 1000,
		Whale:           &domain.WhaleParams{OnlyOnTrigger: true},
	}))
	require.NoError(t, f.AddBot(degenConfig("d1")))
	require.NoError(t, f.Start())
	defer f.Stop()

	require.ErrorIs(t, f.TriggerWhale("ghost", true), domain.ErrNotFound)
	require.ErrorIs(t, f.TriggerWhale("d1", true), domain.ErrInvalidConfig)
	require.NoError(t, f.TriggerWhale("moby", true))

	f.HandleSample(context.Background(), sampleAt(1_000_000, 100))
	for _, st := range f.Snapshot().Bots {
		if st.Name == "moby" {
			assert.Equal(t, int64(250), st.PositionSize, "triggered whale starts accumulating")
		}
	}
}

func TestAddBotWhileRunningStartsImmediately(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.NoError(t, f.Start())
	defer f.Stop()

	require.NoError(t, f.AddBot(degenConfig("late")))
	f.HandleSample(context.Background(), sampleAt(1_000_000, 100))

	snap := f.Snapshot()
	require.Len(t, snap.Bots, 1)
	assert.True(t, snap.Bots[0].Running)
	assert.NotZero(t, snap.Bots[0].PositionSize)
}

func TestAddBotWhileRunningIsPrimedWithHistory(t *testing.T) {
	f := newTestFleet(t, alwaysOK)
	require.NoError(t, f.Start())

	f.HandleSample(context.Background(), sampleAt(1_000_000, 100))
	f.HandleSample(context.Background(), sampleAt(1_100_000, 200))

	// An always-on whale decides on the priming sample itself: no further
	// tick is needed before its first accumulation clip shows up.
	require.NoError(t, f.AddBot(domain.BotConfig{
		Type:            domain.BotWhale,
		Name:            "late-whale",
		MaxPositionSize: 1000,
		Whale:           &domain.WhaleParams{},
	}))
	f.Stop()

	for _, st := range f.Snapshot().Bots {
		if st.Name == "late-whale" {
			assert.Equal(t, int64(250), st.PositionSize)
			return
		}
	}
	t.Fatal("late-whale not found in snapshot")
}

func TestSharedReaderAdvancesPerTick(t *testing.T) {
	sim := marketstate.NewSimReader(7)
	f, err := New(Config{Executor: alwaysOK, Logger: testLogger(), Reader: sim})
	require.NoError(t, err)
	require.NoError(t, f.Start())
	defer f.Stop()

	before := sim.Utilization()
	f.HandleSample(context.Background(), sampleAt(1_000_000, 100))
	assert.NotEqual(t, before, sim.Utilization())
}

func TestLiquidationHunterFiresWithSharedReader(t *testing.T) {
	var executed atomic.Int64
	exec := func(context.Context, domain.TradeIntent) (bool, error) {
		executed.Add(1)
		return true, nil
	}
	sim := marketstate.NewSimReader(11, marketstate.WithUnhealthyRate(1))
	f, err := New(Config{Executor: exec, Logger: testLogger(), Reader: sim})
	require.NoError(t, err)
	require.NoError(t, f.AddBot(domain.BotConfig{
		Type:            domain.BotLiquidationHunter,
		Name:            "lh",
		MaxPositionSize: 500,
	}))
	require.NoError(t, f.Start())

	for i := 0; i < 5; i++ {
		f.HandleSample(context.Background(), sampleAt(1_000_000, int64(100*(i+1))))
	}
	f.Stop()

	assert.Greater(t, executed.Load(), int64(0),
		"hunter must see liquidatable accounts once the shared reader advances")
}
