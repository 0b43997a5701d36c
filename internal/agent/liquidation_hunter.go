package agent

import (
	"log/slog"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/marketstate"
)

// liquidationHunter scans the account snapshot every tick for positions whose
// health has fallen below the threshold and emits an offsetting intent
// against the worst offender. Clip size is capped so one agent cannot absorb
// an arbitrarily large underwater position in a single tick.
type liquidationHunter struct {
	core
	params domain.LiquidationHunterParams
	reader marketstate.Reader
}

func newLiquidationHunter(cfg domain.BotConfig, deps Deps) *liquidationHunter {
	params := domain.LiquidationHunterParams{}
	if cfg.LiquidationHunter != nil {
		params = *cfg.LiquidationHunter
	}
	if params.HealthThreshold <= 0 {
		params.HealthThreshold = 1.0
	}
	if params.MaxClipSize <= 0 {
		params.MaxClipSize = cfg.MaxPositionSize
	}
	return &liquidationHunter{core: newCore(cfg, deps), params: params, reader: deps.Reader}
}

func (h *liquidationHunter) Decide(sample domain.PriceSample, _ []domain.PriceSample) *domain.TradeIntent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.runningAndReadyLocked(sample.TimestampMs) {
		return nil
	}

	target, ok := h.worstUnderwater()
	if !ok {
		return nil
	}

	// Offset the target's position; positive target position means we sell
	// into it, and vice versa.
	size := -target.PositionSize
	if absInt64(size) > h.params.MaxClipSize {
		if size > 0 {
			size = h.params.MaxClipSize
		} else {
			size = -h.params.MaxClipSize
		}
	}
	if size == 0 {
		return nil
	}

	h.logger.Debug("liquidating account",
		slog.Int("account", target.Index),
		slog.Float64("health", target.Health),
		slog.Int64("size", size))

	intent := h.emitLocked(domain.IntentTrade, size, sample)
	if intent != nil {
		intent.CounterpartyIndex = target.Index
	}
	return intent
}

// worstUnderwater returns the liquidatable account with the lowest health.
func (h *liquidationHunter) worstUnderwater() (marketstate.Account, bool) {
	var worst marketstate.Account
	found := false
	for _, acct := range h.reader.Accounts() {
		if acct.Health >= h.params.HealthThreshold || acct.PositionSize == 0 {
			continue
		}
		if !found || acct.Health < worst.Health {
			worst = acct
			found = true
		}
	}
	return worst, found
}
