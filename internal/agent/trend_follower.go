package agent

import (
	"math"

	"github.com/perpstack/simcore/internal/domain"
)

const defaultSlopeWindow = 10

// trendFollower fits a short-window slope over the price history and trades
// in its direction, sized proportional to the slope magnitude and capped at
// the position limit.
type trendFollower struct {
	core
	params domain.TrendFollowerParams
}

func newTrendFollower(cfg domain.BotConfig, deps Deps) *trendFollower {
	params := domain.TrendFollowerParams{}
	if cfg.TrendFollower != nil {
		params = *cfg.TrendFollower
	}
	if params.SlopeWindow < 2 {
		params.SlopeWindow = defaultSlopeWindow
	}
	if params.SlopeScale <= 0 {
		// A sustained 1% per-tick slope wants the full position limit.
		params.SlopeScale = float64(cfg.MaxPositionSize) * 100
	}
	return &trendFollower{core: newCore(cfg, deps), params: params}
}

func (f *trendFollower) Decide(sample domain.PriceSample, history []domain.PriceSample) *domain.TradeIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.runningAndReadyLocked(sample.TimestampMs) {
		return nil
	}
	if len(history) < f.params.SlopeWindow {
		return nil
	}

	tail := history[len(history)-f.params.SlopeWindow:]
	first := float64(tail[0].PriceE6)
	last := float64(tail[len(tail)-1].PriceE6)
	if first == 0 {
		return nil
	}
	// Fractional change per tick across the window.
	slope := (last - first) / first / float64(len(tail)-1)

	raw := slope * f.params.SlopeScale
	step := int64(math.Round(raw))
	if step == 0 {
		return nil
	}
	step = clampStep(f.state.PositionSize, step, f.cfg.MaxPositionSize)

	return f.emitLocked(domain.IntentTrade, step, sample)
}
