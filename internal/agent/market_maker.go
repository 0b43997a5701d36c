package agent

import (
	"github.com/perpstack/simcore/internal/domain"
)

const defaultRebalanceThreshold = 0.5

// marketMaker targets a roughly flat net position. It provides routine
// two-sided flow, and once inventory drifts past a threshold fraction of the
// position limit it biases every intent toward reducing exposure.
type marketMaker struct {
	core
	params domain.MarketMakerParams
}

func newMarketMaker(cfg domain.BotConfig, deps Deps) *marketMaker {
	params := domain.MarketMakerParams{}
	if cfg.MarketMaker != nil {
		params = *cfg.MarketMaker
	}
	if params.RebalanceThreshold <= 0 || params.RebalanceThreshold > 1 {
		params.RebalanceThreshold = defaultRebalanceThreshold
	}
	if params.QuoteSize <= 0 {
		params.QuoteSize = cfg.MaxPositionSize / 10
		if params.QuoteSize <= 0 {
			params.QuoteSize = 1
		}
	}
	return &marketMaker{core: newCore(cfg, deps), params: params}
}

func (m *marketMaker) Decide(sample domain.PriceSample, _ []domain.PriceSample) *domain.TradeIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.runningAndReadyLocked(sample.TimestampMs) {
		return nil
	}

	pos := m.state.PositionSize
	threshold := int64(m.params.RebalanceThreshold * float64(m.cfg.MaxPositionSize))

	var step int64
	if threshold > 0 && absInt64(pos) > threshold {
		// Inventory too heavy: unwind toward flat.
		step = m.params.QuoteSize
		if pos > 0 {
			step = -step
		}
		if absInt64(step) > absInt64(pos) {
			step = -pos
		}
	} else {
		// Routine flow: alternate sides with a slight bias toward flat.
		step = m.params.QuoteSize
		if m.rng.Intn(2) == 0 {
			step = -step
		}
		if pos > 0 && step > 0 && m.rng.Float64() < 0.5 {
			step = -step
		} else if pos < 0 && step < 0 && m.rng.Float64() < 0.5 {
			step = -step
		}
		step = clampStep(pos, step, m.cfg.MaxPositionSize)
	}

	return m.emitLocked(domain.IntentTrade, step, sample)
}
