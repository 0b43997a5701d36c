package domain

import "fmt"

// ModelParams is the closed set of per-model parameter structs. Each model
// variant carries only the fields it actually uses; unknown models or
// out-of-range values are rejected at configuration-load time rather than
// discovered through runtime key lookups.
type ModelParams interface {
	Kind() PriceModelKind
	Validate() error
}

// PriceBounds is shared by every model: results are clamped into
// [MinPriceE6, MaxPriceE6] before being returned. A zero MinPriceE6 means the
// engine-wide floor of 1 (0.000001) applies; a zero MaxPriceE6 means no cap.
type PriceBounds struct {
	MinPriceE6 int64 `toml:"min_price_e6"`
	MaxPriceE6 int64 `toml:"max_price_e6"`
}

func (b PriceBounds) validate() error {
	if b.MinPriceE6 < 0 {
		return fmt.Errorf("%w: min_price_e6 must be >= 0", ErrInvalidConfig)
	}
	if b.MaxPriceE6 < 0 {
		return fmt.Errorf("%w: max_price_e6 must be >= 0", ErrInvalidConfig)
	}
	if b.MaxPriceE6 > 0 && b.MinPriceE6 > b.MaxPriceE6 {
		return fmt.Errorf("%w: min_price_e6 exceeds max_price_e6", ErrInvalidConfig)
	}
	return nil
}

// RandomWalkParams drives next = prev * (1 + N(0, volatility)).
type RandomWalkParams struct {
	// Volatility is the per-tick standard deviation as a fraction
	// (0.01 = 1% per tick).
	Volatility float64     `toml:"volatility"`
	Bounds     PriceBounds `toml:"bounds"`
}

func (p RandomWalkParams) Kind() PriceModelKind { return ModelRandomWalk }

func (p RandomWalkParams) Validate() error {
	if p.Volatility < 0 {
		return fmt.Errorf("%w: random-walk volatility must be >= 0", ErrInvalidConfig)
	}
	return p.Bounds.validate()
}

// MeanRevertParams drives next = prev + revertSpeed*(mean - prev) + noise.
type MeanRevertParams struct {
	MeanPriceE6 int64   `toml:"mean_price_e6"`
	RevertSpeed float64 `toml:"revert_speed"` // in [0, 1]
	// NoiseVolatility scales gaussian noise relative to the current price.
	NoiseVolatility float64     `toml:"noise_volatility"`
	Bounds          PriceBounds `toml:"bounds"`
}

func (p MeanRevertParams) Kind() PriceModelKind { return ModelMeanRevert }

func (p MeanRevertParams) Validate() error {
	if p.MeanPriceE6 <= 0 {
		return fmt.Errorf("%w: mean-revert mean_price_e6 must be > 0", ErrInvalidConfig)
	}
	if p.RevertSpeed < 0 || p.RevertSpeed > 1 {
		return fmt.Errorf("%w: mean-revert revert_speed must be in [0,1]", ErrInvalidConfig)
	}
	if p.NoiseVolatility < 0 {
		return fmt.Errorf("%w: mean-revert noise_volatility must be >= 0", ErrInvalidConfig)
	}
	return p.Bounds.validate()
}

// TrendingParams drives next = prev + driftPerTick, with an optional gaussian
// noise overlay.
type TrendingParams struct {
	DriftE6PerTick  int64       `toml:"drift_e6_per_tick"` // signed
	NoiseVolatility float64     `toml:"noise_volatility"`
	Bounds          PriceBounds `toml:"bounds"`
}

func (p TrendingParams) Kind() PriceModelKind { return ModelTrending }

func (p TrendingParams) Validate() error {
	if p.NoiseVolatility < 0 {
		return fmt.Errorf("%w: trending noise_volatility must be >= 0", ErrInvalidConfig)
	}
	return p.Bounds.validate()
}

// CrashParams decays the price toward prev*(1-magnitude) over the crash
// duration, then optionally recovers toward the pre-crash price.
type CrashParams struct {
	CrashMagnitude  float64 `toml:"crash_magnitude"` // fraction in (0, 1)
	CrashDurationMs int64   `toml:"crash_duration_ms"`
	// RecoverySpeed is the per-tick fraction of the remaining distance back to
	// the pre-crash price. Zero disables recovery.
	RecoverySpeed float64     `toml:"recovery_speed"`
	Bounds        PriceBounds `toml:"bounds"`
}

func (p CrashParams) Kind() PriceModelKind { return ModelCrash }

func (p CrashParams) Validate() error {
	if p.CrashMagnitude <= 0 || p.CrashMagnitude >= 1 {
		return fmt.Errorf("%w: crash_magnitude must be in (0,1)", ErrInvalidConfig)
	}
	if p.CrashDurationMs <= 0 {
		return fmt.Errorf("%w: crash_duration_ms must be > 0", ErrInvalidConfig)
	}
	if p.RecoverySpeed < 0 || p.RecoverySpeed > 1 {
		return fmt.Errorf("%w: recovery_speed must be in [0,1]", ErrInvalidConfig)
	}
	return p.Bounds.validate()
}

// SqueezeParams is symmetric to CrashParams but multiplies the price upward.
type SqueezeParams struct {
	SqueezeMagnitude  float64     `toml:"squeeze_magnitude"` // fraction > 0
	SqueezeDurationMs int64       `toml:"squeeze_duration_ms"`
	RecoverySpeed     float64     `toml:"recovery_speed"`
	Bounds            PriceBounds `toml:"bounds"`
}

func (p SqueezeParams) Kind() PriceModelKind { return ModelSqueeze }

func (p SqueezeParams) Validate() error {
	if p.SqueezeMagnitude <= 0 {
		return fmt.Errorf("%w: squeeze_magnitude must be > 0", ErrInvalidConfig)
	}
	if p.SqueezeDurationMs <= 0 {
		return fmt.Errorf("%w: squeeze_duration_ms must be > 0", ErrInvalidConfig)
	}
	if p.RecoverySpeed < 0 || p.RecoverySpeed > 1 {
		return fmt.Errorf("%w: recovery_speed must be in [0,1]", ErrInvalidConfig)
	}
	return p.Bounds.validate()
}

// CustomParams wraps a caller-supplied step function; the engine treats it
// opaquely.
type CustomParams struct {
	Step   func(prevE6 int64, elapsedTicks int64) int64
	Bounds PriceBounds
}

func (p CustomParams) Kind() PriceModelKind { return ModelCustom }

func (p CustomParams) Validate() error {
	if p.Step == nil {
		return fmt.Errorf("%w: custom model requires a step function", ErrInvalidConfig)
	}
	return p.Bounds.validate()
}
