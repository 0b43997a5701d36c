// Package pricemodel implements the pure price-generation strategies used by
// the engine. Models are constructed from validated parameter structs and an
// explicit random source so identical (seed, params, tick count) reproduce
// identical output.
package pricemodel

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/perpstack/simcore/internal/domain"
)

// defaultFloorE6 is the hard price floor applied when a model's bounds do not
// specify one. Keeps every published sample strictly positive.
const defaultFloorE6 = 1

// defaultTickIntervalMs converts millisecond durations into tick counts when
// the caller does not say how often the engine ticks.
const defaultTickIntervalMs = 1000

// Model advances a price series one tick at a time. Implementations hold
// their parameters and any phase state privately; they perform no I/O.
type Model interface {
	Kind() domain.PriceModelKind
	// Next computes the price after the given tick. elapsedTicks counts ticks
	// since this model was activated, starting at 0.
	Next(prevE6 int64, elapsedTicks int64) int64
}

// Options carry engine-level context into model construction.
type Options struct {
	// RNG is the session's random source. A nil RNG gets a time-seeded one.
	RNG *rand.Rand
	// TickIntervalMs converts duration-based parameters into tick counts.
	TickIntervalMs int64
}

func (o Options) rng() *rand.Rand {
	if o.RNG != nil {
		return o.RNG
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (o Options) intervalMs() int64 {
	if o.TickIntervalMs > 0 {
		return o.TickIntervalMs
	}
	return defaultTickIntervalMs
}

// New validates params and constructs the matching model.
func New(params domain.ModelParams, opts Options) (Model, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: model params are required", domain.ErrInvalidConfig)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	switch p := params.(type) {
	case domain.RandomWalkParams:
		return &randomWalk{params: p, rng: opts.rng()}, nil
	case domain.MeanRevertParams:
		return &meanRevert{params: p, rng: opts.rng()}, nil
	case domain.TrendingParams:
		return &trending{params: p, rng: opts.rng()}, nil
	case domain.CrashParams:
		return &crash{params: p, durationTicks: ticksFor(p.CrashDurationMs, opts.intervalMs())}, nil
	case domain.SqueezeParams:
		return &squeeze{params: p, durationTicks: ticksFor(p.SqueezeDurationMs, opts.intervalMs())}, nil
	case domain.CustomParams:
		return &custom{params: p}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model %q", domain.ErrInvalidConfig, params.Kind())
	}
}

func ticksFor(durationMs, intervalMs int64) int64 {
	ticks := durationMs / intervalMs
	if durationMs%intervalMs != 0 {
		ticks++
	}
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// clampE6 converts a float result into fixed-point E6 within bounds. NaN,
// infinities, and non-positive values collapse to the floor.
func clampE6(v float64, b domain.PriceBounds) int64 {
	floor := b.MinPriceE6
	if floor <= 0 {
		floor = defaultFloorE6
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return floor
	}
	e6 := int64(math.Round(v))
	if e6 < floor {
		return floor
	}
	if b.MaxPriceE6 > 0 && e6 > b.MaxPriceE6 {
		return b.MaxPriceE6
	}
	return e6
}
