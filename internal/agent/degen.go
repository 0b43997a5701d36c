package agent

import (
	"github.com/perpstack/simcore/internal/domain"
)

const (
	defaultAggressionFraction = 0.5
	defaultFlipProbability    = 0.3
)

// degen is the aggressive trader: it slams large clips toward a full-size
// position in its current conviction direction, and flips conviction at
// random. Reproducible through the name-seeded generator.
type degen struct {
	core
	params    domain.DegenParams
	direction int64 // +1 long, -1 short
}

func newDegen(cfg domain.BotConfig, deps Deps) *degen {
	params := domain.DegenParams{}
	if cfg.Degen != nil {
		params = *cfg.Degen
	}
	if params.AggressionFraction <= 0 || params.AggressionFraction > 1 {
		params.AggressionFraction = defaultAggressionFraction
	}
	if params.FlipProbability < 0 || params.FlipProbability > 1 {
		params.FlipProbability = defaultFlipProbability
	}
	return &degen{core: newCore(cfg, deps), params: params, direction: 1}
}

func (d *degen) Decide(sample domain.PriceSample, _ []domain.PriceSample) *domain.TradeIntent {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.runningAndReadyLocked(sample.TimestampMs) {
		return nil
	}

	if d.rng.Float64() < d.params.FlipProbability {
		d.direction = -d.direction
	}

	clip := int64(d.params.AggressionFraction * float64(d.cfg.MaxPositionSize))
	if clip <= 0 {
		clip = 1
	}
	step := clampStep(d.state.PositionSize, d.direction*clip, d.cfg.MaxPositionSize)
	if step == 0 {
		// Pinned at the limit: reverse conviction and wait for the next tick.
		d.direction = -d.direction
		return nil
	}

	return d.emitLocked(domain.IntentTrade, step, sample)
}
