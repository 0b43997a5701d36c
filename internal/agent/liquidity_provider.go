package agent

import (
	"log/slog"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/marketstate"
)

const (
	lpDefaultWithdrawThreshold = 0.3
	lpVolatilityWindow         = 20
	lpVolatilityTrigger        = 0.02
)

// liquidityProvider grows a pool position toward a target size and emits
// liquidity intents rather than trades. High recent price volatility boosts
// the deposit clip by half; pool utilization dropping below the withdraw
// threshold pulls 20% of the current size back out.
type liquidityProvider struct {
	core
	params domain.LiquidityProviderParams
	reader marketstate.Reader
}

func newLiquidityProvider(cfg domain.BotConfig, deps Deps) *liquidityProvider {
	params := domain.LiquidityProviderParams{}
	if cfg.LiquidityProvider != nil {
		params = *cfg.LiquidityProvider
	}
	if params.TargetLpSize <= 0 {
		params.TargetLpSize = cfg.CapitalAllocation
	}
	if params.DepositSize <= 0 {
		params.DepositSize = params.TargetLpSize / 10
		if params.DepositSize <= 0 {
			params.DepositSize = 1
		}
	}
	if params.WithdrawThreshold <= 0 {
		params.WithdrawThreshold = lpDefaultWithdrawThreshold
	}
	return &liquidityProvider{core: newCore(cfg, deps), params: params, reader: deps.Reader}
}

func (l *liquidityProvider) Decide(sample domain.PriceSample, history []domain.PriceSample) *domain.TradeIntent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.runningAndReadyLocked(sample.TimestampMs) {
		return nil
	}

	if util := l.reader.Utilization(); util < l.params.WithdrawThreshold && l.state.CurrentLpSize > 0 {
		clip := l.state.CurrentLpSize / 5
		if clip <= 0 {
			clip = l.state.CurrentLpSize
		}
		l.state.CurrentLpSize -= clip
		l.logger.Debug("withdrawing liquidity",
			slog.Float64("utilization", util),
			slog.Int64("size", clip))
		return l.emitLocked(domain.IntentLiquidity, -clip, sample)
	}

	remaining := l.params.TargetLpSize - l.state.CurrentLpSize
	if remaining <= 0 {
		return nil
	}

	clip := l.params.DepositSize
	if coefficientOfVariation(history, lpVolatilityWindow) > lpVolatilityTrigger {
		clip += clip / 2
	}
	if clip > remaining {
		clip = remaining
	}
	l.state.CurrentLpSize += clip
	return l.emitLocked(domain.IntentLiquidity, clip, sample)
}
