package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/perpstack/simcore/internal/domain"
)

const (
	recorderBatchSize     = 50
	recorderFlushInterval = time.Second
)

// Sinks are the optional record destinations for a session. Any field may be
// nil; the recorder skips what is not wired.
type Sinks struct {
	Sessions  domain.SessionStore
	Ticks     domain.TickStore
	Cache     domain.PriceCache
	Publisher domain.PricePublisher
	Trades    domain.TradeLogStore
}

func (s Sinks) empty() bool {
	return s.Sessions == nil && s.Ticks == nil && s.Cache == nil && s.Publisher == nil
}

// recorder drains one engine subscription into the sinks. Tick rows are
// batched; the cache and publisher see every sample as it arrives. Sink
// errors are logged and never propagate back into the price path.
type recorder struct {
	sinks  Sinks
	logger *slog.Logger
	batch  []domain.PriceSample
}

func newRecorder(sinks Sinks, logger *slog.Logger) *recorder {
	return &recorder{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "session_recorder")),
		batch:  make([]domain.PriceSample, 0, recorderBatchSize),
	}
}

// run consumes samples until the context is cancelled or the channel closes,
// then flushes whatever is buffered.
func (r *recorder) run(ctx context.Context, samples <-chan domain.PriceSample) {
	ticker := time.NewTicker(recorderFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			r.flush(ctx)
		case sample, ok := <-samples:
			if !ok {
				r.flush(context.WithoutCancel(ctx))
				return
			}
			r.record(ctx, sample)
		}
	}
}

func (r *recorder) record(ctx context.Context, sample domain.PriceSample) {
	if r.sinks.Cache != nil {
		if err := r.sinks.Cache.SetLatest(ctx, sample); err != nil {
			r.logger.Warn("price cache write failed", slog.Any("error", err))
		}
	}
	if r.sinks.Publisher != nil {
		if err := r.sinks.Publisher.Publish(ctx, sample); err != nil {
			r.logger.Warn("price publish failed", slog.Any("error", err))
		}
	}
	if r.sinks.Ticks == nil {
		return
	}
	r.batch = append(r.batch, sample)
	if len(r.batch) >= recorderBatchSize {
		r.flush(ctx)
	}
}

func (r *recorder) flush(ctx context.Context) {
	if r.sinks.Ticks == nil || len(r.batch) == 0 {
		return
	}
	if err := r.sinks.Ticks.InsertBatch(ctx, r.batch); err != nil {
		r.logger.Warn("tick batch insert failed",
			slog.Int("batch", len(r.batch)),
			slog.Any("error", err))
	}
	r.batch = r.batch[:0]
}

// upsertSession is a best-effort write of the session row.
func (r *recorder) upsertSession(ctx context.Context, rec domain.SessionRecord) {
	if r.sinks.Sessions == nil {
		return
	}
	if err := r.sinks.Sessions.Upsert(ctx, rec); err != nil {
		r.logger.Warn("session upsert failed",
			slog.String("session_id", rec.SessionID),
			slog.Any("error", err))
	}
}
