package agent

import (
	"log/slog"

	"github.com/perpstack/simcore/internal/domain"
)

// whale is the large-size actor with an explicit three-phase state machine:
// idle → accumulate → dump → idle. In accumulate it buys maxPositionSize/4
// per tick until the limit is reached; in manipulation mode it then chains
// straight into dump, selling half the remaining position per tick until
// flat. The trigger is an external call polled on every Decide.
type whale struct {
	core
	params domain.WhaleParams

	triggered       bool
	triggerManipula bool
}

func newWhale(cfg domain.BotConfig, deps Deps) *whale {
	params := domain.WhaleParams{}
	if cfg.Whale != nil {
		params = *cfg.Whale
	}
	w := &whale{core: newCore(cfg, deps), params: params}
	w.state.Phase = domain.WhaleIdle
	return w
}

// Trigger arms the whale. manipulate selects the accumulate→dump chain; it
// overrides the configured manipulation flag for this cycle.
func (w *whale) Trigger(manipulate bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.triggered = true
	w.triggerManipula = manipulate
	w.logger.Info("whale triggered", slog.Bool("manipulate", manipulate))
}

func (w *whale) Decide(sample domain.PriceSample, _ []domain.PriceSample) *domain.TradeIntent {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.runningAndReadyLocked(sample.TimestampMs) {
		return nil
	}

	switch w.state.Phase {
	case domain.WhaleIdle:
		if w.params.OnlyOnTrigger && !w.triggered {
			return nil
		}
		w.state.Phase = domain.WhaleAccumulate
		fallthrough

	case domain.WhaleAccumulate:
		clip := w.cfg.MaxPositionSize / 4
		if clip <= 0 {
			clip = 1
		}
		if remaining := w.cfg.MaxPositionSize - w.state.PositionSize; clip > remaining {
			clip = remaining
		}
		if clip <= 0 {
			w.finishAccumulateLocked()
			return nil
		}
		intent := w.emitLocked(domain.IntentTrade, clip, sample)
		if w.state.PositionSize >= w.cfg.MaxPositionSize {
			w.finishAccumulateLocked()
		}
		return intent

	case domain.WhaleDump:
		pos := w.state.PositionSize
		if pos <= 0 {
			w.resetLocked()
			return nil
		}
		clip := (pos + 1) / 2
		intent := w.emitLocked(domain.IntentTrade, -clip, sample)
		if w.state.PositionSize <= 0 {
			w.resetLocked()
		}
		return intent
	}
	return nil
}

// finishAccumulateLocked advances out of the accumulate phase once the
// position limit is reached.
func (w *whale) finishAccumulateLocked() {
	if w.manipulationLocked() {
		w.state.Phase = domain.WhaleDump
		return
	}
	w.resetLocked()
}

func (w *whale) manipulationLocked() bool {
	if w.triggered {
		return w.triggerManipula
	}
	return w.params.Manipulation
}

// resetLocked returns to idle and clears any manual trigger.
func (w *whale) resetLocked() {
	w.state.Phase = domain.WhaleIdle
	w.triggered = false
	w.triggerManipula = false
}
