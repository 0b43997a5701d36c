package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakySubmitter fails the first n attempts, then succeeds.
type flakySubmitter struct {
	failuresLeft int
	calls        int
}

func (f *flakySubmitter) Submit(context.Context, domain.TradeIntent) error {
	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("transient")
	}
	return nil
}

func testIntent() domain.TradeIntent {
	return domain.TradeIntent{
		ID:               "intent-1",
		Kind:             domain.IntentTrade,
		TargetMarketID:   "btc-perp",
		Size:             50,
		PriceE6:          101_000000,
		OriginatingAgent: "d1",
		CreatedAt:        time.Now().UTC(),
	}
}

func TestNewRequiresSubmitter(t *testing.T) {
	_, err := New(Config{Logger: testLogger()})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	sub := &flakySubmitter{failuresLeft: 2}
	e, err := New(Config{
		Submitter:    sub,
		Logger:       testLogger(),
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	ok, err := e.Execute(context.Background(), testIntent())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, sub.calls)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	sub := &flakySubmitter{failuresLeft: 10}
	e, err := New(Config{
		Submitter:    sub,
		Logger:       testLogger(),
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	ok, err := e.Execute(context.Background(), testIntent())
	assert.False(t, ok)
	require.ErrorIs(t, err, domain.ErrExecutorFailure)
	assert.Equal(t, 3, sub.calls)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	sub := &flakySubmitter{failuresLeft: 10}
	e, err := New(Config{
		Submitter:    sub,
		Logger:       testLogger(),
		MaxAttempts:  5,
		RetryBackoff: time.Hour, // must not actually wait
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	ok, err := e.Execute(ctx, testIntent())
	assert.False(t, ok)
	require.ErrorIs(t, err, domain.ErrExecutorFailure)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteRecordsTradeOutcomes(t *testing.T) {
	ctx := context.Background()
	trades := memory.NewTradeLogStore()
	e, err := New(Config{
		Submitter:    &flakySubmitter{},
		Logger:       testLogger(),
		Trades:       trades,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	e.SetSession("s1")

	_, err = e.Execute(ctx, testIntent())
	require.NoError(t, err)

	failing, err := New(Config{
		Submitter:    &flakySubmitter{failuresLeft: 10},
		Logger:       testLogger(),
		Trades:       trades,
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	failing.SetSession("s1")
	_, _ = failing.Execute(ctx, testIntent())

	recs, err := trades.ListBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Success)
	assert.Empty(t, recs[0].Error)
	assert.False(t, recs[1].Success)
	assert.NotEmpty(t, recs[1].Error)
	assert.Equal(t, "d1", recs[0].AgentName)
	assert.Equal(t, "btc-perp", recs[0].MarketID)
	assert.Equal(t, int64(101_000000), recs[0].PriceE6)
}

func TestSimSubmitterDeterministicFailures(t *testing.T) {
	run := func() []bool {
		sub := NewSimSubmitter(42, 0.5)
		out := make([]bool, 20)
		for i := range out {
			out[i] = sub.Submit(context.Background(), testIntent()) == nil
		}
		return out
	}
	assert.Equal(t, run(), run())

	clean := NewSimSubmitter(1, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, clean.Submit(context.Background(), testIntent()))
	}
	assert.Equal(t, int64(5), clean.Submitted())
}
