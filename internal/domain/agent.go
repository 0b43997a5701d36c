package domain

import (
	"fmt"
	"time"
)

// BotType identifies an agent behavioral archetype.
type BotType string

const (
	BotMarketMaker       BotType = "market_maker"
	BotTrendFollower     BotType = "trend_follower"
	BotDegen             BotType = "degen"
	BotWhale             BotType = "whale"
	BotLiquidityProvider BotType = "liquidity_provider"
	BotLiquidationHunter BotType = "liquidation_hunter"
)

// MarketMakerParams configure the flat-position market maker.
type MarketMakerParams struct {
	// RebalanceThreshold is the fraction of MaxPositionSize beyond which the
	// maker biases intents toward reducing exposure. Defaults to 0.5.
	RebalanceThreshold float64 `toml:"rebalance_threshold"`
	// QuoteSize is the per-intent size for routine two-sided flow.
	QuoteSize int64 `toml:"quote_size"`
}

// TrendFollowerParams configure the slope follower.
type TrendFollowerParams struct {
	// SlopeWindow is the number of trailing samples used for the slope fit.
	// Defaults to 10.
	SlopeWindow int `toml:"slope_window"`
	// SlopeScale converts fractional per-tick slope into intent size.
	SlopeScale float64 `toml:"slope_scale"`
}

// DegenParams configure the aggressive trader.
type DegenParams struct {
	// AggressionFraction of MaxPositionSize taken per intent. Defaults to 0.5.
	AggressionFraction float64 `toml:"aggression_fraction"`
	// FlipProbability is the chance per decision of reversing direction.
	FlipProbability float64 `toml:"flip_probability"`
}

// WhaleParams configure the large-size actor.
type WhaleParams struct {
	// Manipulation chains accumulate directly into dump.
	Manipulation bool `toml:"manipulation"`
	// OnlyOnTrigger suppresses all activity until Trigger is called.
	OnlyOnTrigger bool `toml:"only_on_trigger"`
}

// LiquidityProviderParams configure the LP agent.
type LiquidityProviderParams struct {
	TargetLpSize int64 `toml:"target_lp_size"`
	DepositSize  int64 `toml:"deposit_size"`
	// WithdrawThreshold is the utilization level below which the LP withdraws
	// 20% of its current size. Defaults to 0.3.
	WithdrawThreshold float64 `toml:"withdraw_threshold"`
}

// LiquidationHunterParams configure the liquidation hunter.
type LiquidationHunterParams struct {
	// HealthThreshold below which an account is considered liquidatable.
	// Defaults to 1.0.
	HealthThreshold float64 `toml:"health_threshold"`
	// MaxClipSize caps the size of a single liquidating intent.
	MaxClipSize int64 `toml:"max_clip_size"`
}

// BotConfig is the immutable per-agent configuration supplied at fleet
// construction. Exactly one of the per-archetype params fields matching Type
// may be set; nil falls back to archetype defaults.
type BotConfig struct {
	Type              BotType `toml:"type"`
	Name              string  `toml:"name"`
	TargetMarketID    string  `toml:"target_market_id"`
	TradeIntervalMs   int64   `toml:"trade_interval_ms"`
	MaxPositionSize   int64   `toml:"max_position_size"`
	CapitalAllocation int64   `toml:"capital_allocation"`
	AccountIndex      int     `toml:"account_index"`

	MarketMaker       *MarketMakerParams       `toml:"market_maker"`
	TrendFollower     *TrendFollowerParams     `toml:"trend_follower"`
	Degen             *DegenParams             `toml:"degen"`
	Whale             *WhaleParams             `toml:"whale"`
	LiquidityProvider *LiquidityProviderParams `toml:"liquidity_provider"`
	LiquidationHunter *LiquidationHunterParams `toml:"liquidation_hunter"`
}

// Validate checks structural invariants of the bot configuration.
func (c BotConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: bot name is required", ErrInvalidConfig)
	}
	switch c.Type {
	case BotMarketMaker, BotTrendFollower, BotDegen, BotWhale,
		BotLiquidityProvider, BotLiquidationHunter:
	default:
		return fmt.Errorf("%w: unknown bot type %q", ErrInvalidConfig, c.Type)
	}
	if c.MaxPositionSize < 0 {
		return fmt.Errorf("%w: bot %s max_position_size must be >= 0", ErrInvalidConfig, c.Name)
	}
	if c.TradeIntervalMs < 0 {
		return fmt.Errorf("%w: bot %s trade_interval_ms must be >= 0", ErrInvalidConfig, c.Name)
	}
	return nil
}

// WhalePhase is the explicit whale state machine phase.
type WhalePhase string

const (
	WhaleIdle       WhalePhase = "idle"
	WhaleAccumulate WhalePhase = "accumulate"
	WhaleDump       WhalePhase = "dump"
)

// BotState is owned and mutated exclusively by the owning strategy; the fleet
// reads copies for reporting only.
type BotState struct {
	Name           string
	Type           BotType
	Running        bool
	PositionSize   int64 // signed
	EntryPriceE6   int64
	PnlEstimateE6  int64
	TradesExecuted int64
	TradesFailed   int64
	LastTradeAt    time.Time
	AccountIndex   int

	// Archetype-specific extras, zero for agents that do not use them.
	CurrentLpSize int64
	Phase         WhalePhase
}

// IntentKind distinguishes directional trades from liquidity operations.
type IntentKind string

const (
	IntentTrade     IntentKind = "trade"
	IntentLiquidity IntentKind = "liquidity"
)

// TradeIntent is a proposed position change produced by an agent and consumed
// exactly once by the executor. Size is signed: positive increases long
// exposure (or deposits liquidity), negative increases short exposure (or
// withdraws).
type TradeIntent struct {
	ID                string
	Kind              IntentKind
	TargetMarketID    string
	CounterpartyIndex int
	AccountIndex      int
	Size              int64
	PriceE6           int64
	OriginatingAgent  string
	CreatedAt         time.Time
}
