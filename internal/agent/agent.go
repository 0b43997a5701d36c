// Package agent implements the autonomous trading strategies that react to
// the oracle price series. Each strategy owns its private state and exposes
// the single Decide contract; the fleet drives the lifecycle and never
// mutates agent state directly.
package agent

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/marketstate"
)

// Strategy is the common agent contract. Decide is called once per price tick
// and returns at most one trade intent; it must be non-blocking and must not
// panic on ordinary input. The fleet validates prices before forwarding, so
// implementations may assume sample.PriceE6 > 0.
type Strategy interface {
	Name() string
	Type() domain.BotType
	Start()
	Stop()
	Decide(sample domain.PriceSample, history []domain.PriceSample) *domain.TradeIntent
	// RecordOutcome reports the executor result for an intent this agent
	// emitted. Internal bookkeeping is never rolled back on failure; only the
	// counters move.
	RecordOutcome(success bool)
	State() domain.BotState
}

// Deps are shared collaborator handles handed to every strategy.
type Deps struct {
	// Reader supplies account and pool state. Nil falls back to a seeded
	// simulated proxy keyed by the agent's name.
	Reader marketstate.Reader
	Logger *slog.Logger
}

// New constructs the strategy matching cfg.Type.
func New(cfg domain.BotConfig, deps Deps) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Reader == nil {
		deps.Reader = marketstate.NewSimReader(marketstate.SeedFromName(cfg.Name))
	}
	switch cfg.Type {
	case domain.BotMarketMaker:
		return newMarketMaker(cfg, deps), nil
	case domain.BotTrendFollower:
		return newTrendFollower(cfg, deps), nil
	case domain.BotDegen:
		return newDegen(cfg, deps), nil
	case domain.BotWhale:
		return newWhale(cfg, deps), nil
	case domain.BotLiquidityProvider:
		return newLiquidityProvider(cfg, deps), nil
	case domain.BotLiquidationHunter:
		return newLiquidationHunter(cfg, deps), nil
	default:
		return nil, fmt.Errorf("%w: unknown bot type %q", domain.ErrInvalidConfig, cfg.Type)
	}
}

// core holds the bookkeeping shared by every archetype. Strategies embed it
// and guard all access through mu.
type core struct {
	cfg    domain.BotConfig
	logger *slog.Logger

	mu           sync.Mutex
	state        domain.BotState
	rng          *rand.Rand
	lastIntentMs int64
}

func newCore(cfg domain.BotConfig, deps Deps) core {
	return core{
		cfg:    cfg,
		logger: deps.Logger.With(slog.String("bot", cfg.Name), slog.String("type", string(cfg.Type))),
		state: domain.BotState{
			Name:         cfg.Name,
			Type:         cfg.Type,
			AccountIndex: cfg.AccountIndex,
		},
		rng: rand.New(rand.NewSource(marketstate.SeedFromName(cfg.Name))),
	}
}

func (c *core) Name() string         { return c.cfg.Name }
func (c *core) Type() domain.BotType { return c.cfg.Type }

func (c *core) Start() {
	c.mu.Lock()
	c.state.Running = true
	c.mu.Unlock()
}

func (c *core) Stop() {
	c.mu.Lock()
	c.state.Running = false
	c.mu.Unlock()
}

func (c *core) State() domain.BotState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *core) RecordOutcome(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.state.TradesExecuted++
	} else {
		c.state.TradesFailed++
	}
}

// runningAndReady reports whether the agent is started and its trade-interval
// throttle has elapsed at the sample timestamp. Caller holds mu.
func (c *core) runningAndReadyLocked(ts int64) bool {
	if !c.state.Running {
		return false
	}
	if c.cfg.TradeIntervalMs <= 0 {
		return true
	}
	if c.lastIntentMs == 0 {
		return true
	}
	return ts-c.lastIntentMs >= c.cfg.TradeIntervalMs
}

// emitLocked books a fill at the sample price and builds the intent. Agents
// assume the trade the moment they emit it; executor failures only move the
// failure counter. Caller holds mu.
func (c *core) emitLocked(kind domain.IntentKind, size int64, sample domain.PriceSample) *domain.TradeIntent {
	if size == 0 {
		return nil
	}
	c.lastIntentMs = sample.TimestampMs
	c.state.LastTradeAt = time.UnixMilli(sample.TimestampMs).UTC()

	if kind == domain.IntentTrade {
		c.applyFillLocked(size, sample.PriceE6)
	}

	return &domain.TradeIntent{
		ID:               uuid.New().String(),
		Kind:             kind,
		TargetMarketID:   c.cfg.TargetMarketID,
		AccountIndex:     c.cfg.AccountIndex,
		Size:             size,
		PriceE6:          sample.PriceE6,
		OriginatingAgent: c.cfg.Name,
		CreatedAt:        time.UnixMilli(sample.TimestampMs).UTC(),
	}
}

// applyFillLocked updates position, average entry, and the PnL estimate.
func (c *core) applyFillLocked(size, priceE6 int64) {
	prev := c.state.PositionSize
	next := prev + size

	switch {
	case prev == 0 || (prev > 0) == (next > 0) && absInt64(next) > absInt64(prev):
		// Opening or adding: volume-weighted entry.
		total := absInt64(prev) + absInt64(size)
		if total > 0 {
			c.state.EntryPriceE6 = (c.state.EntryPriceE6*absInt64(prev) + priceE6*absInt64(size)) / total
		}
	case next == 0:
		c.state.EntryPriceE6 = 0
	case (prev > 0) != (next > 0):
		// Flipped through zero: the remainder is a fresh position at this price.
		c.state.EntryPriceE6 = priceE6
	}
	c.state.PositionSize = next
	c.refreshPnlLocked(priceE6)
}

func (c *core) refreshPnlLocked(priceE6 int64) {
	if c.state.PositionSize == 0 || c.state.EntryPriceE6 == 0 {
		c.state.PnlEstimateE6 = 0
		return
	}
	c.state.PnlEstimateE6 = c.state.PositionSize * (priceE6 - c.state.EntryPriceE6) / 1_000_000
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// clampStep limits a desired position change so the resulting absolute
// position never exceeds max. max <= 0 means unlimited.
func clampStep(pos, step, max int64) int64 {
	if max <= 0 || step == 0 {
		return step
	}
	next := pos + step
	if next > max {
		return max - pos
	}
	if next < -max {
		return -max - pos
	}
	return step
}

// coefficientOfVariation computes stddev/mean over the trailing window of
// price samples. Returns 0 with fewer than two samples.
func coefficientOfVariation(history []domain.PriceSample, window int) float64 {
	if window <= 0 || len(history) < 2 {
		return 0
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}
	tail := history[start:]
	if len(tail) < 2 {
		return 0
	}
	var sum float64
	for _, s := range tail {
		sum += float64(s.PriceE6)
	}
	mean := sum / float64(len(tail))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, s := range tail {
		d := float64(s.PriceE6) - mean
		variance += d * d
	}
	variance /= float64(len(tail))
	return math.Sqrt(variance) / mean
}
