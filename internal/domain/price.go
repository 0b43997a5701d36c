// Package domain defines the value objects, collaborator interfaces, and
// sentinel errors shared across the simulation core. Prices and sizes use
// fixed-point integers with 6 implied decimal places (the E6 convention).
package domain

import "time"

// PriceModelKind identifies one of the supported price-generation models.
type PriceModelKind string

const (
	ModelRandomWalk PriceModelKind = "random-walk"
	ModelMeanRevert PriceModelKind = "mean-revert"
	ModelTrending   PriceModelKind = "trending"
	ModelCrash      PriceModelKind = "crash"
	ModelSqueeze    PriceModelKind = "squeeze"
	ModelCustom     PriceModelKind = "custom"
)

// KnownModel reports whether kind names a supported price model.
func KnownModel(kind PriceModelKind) bool {
	switch kind {
	case ModelRandomWalk, ModelMeanRevert, ModelTrending, ModelCrash, ModelSqueeze, ModelCustom:
		return true
	default:
		return false
	}
}

// PriceSample is one oracle price observation produced by the engine.
// Immutable once produced.
type PriceSample struct {
	PriceE6         int64
	TimestampMs     int64
	Model           PriceModelKind
	SourceSessionID string
}

// Price returns the display price from fixed-point E6.
func (s PriceSample) Price() float64 {
	return float64(s.PriceE6) / 1e6
}

// Valid reports whether the sample carries a usable positive price.
func (s PriceSample) Valid() bool {
	return s.PriceE6 > 0
}

// EngineSnapshot is a read-only copy of the price engine state handed out to
// callers. The engine owns the mutable original exclusively.
type EngineSnapshot struct {
	SessionID      string
	Running        bool
	Model          PriceModelKind
	CurrentPriceE6 int64
	StartPriceE6   int64
	UpdatesCount   int64
	StartedAt      time.Time
	LastUpdateAt   time.Time
}

// Elapsed returns how long the session has been running at the time of the
// last update, or zero when the engine never ticked.
func (e EngineSnapshot) Elapsed() time.Duration {
	if e.StartedAt.IsZero() || e.LastUpdateAt.IsZero() {
		return 0
	}
	return e.LastUpdateAt.Sub(e.StartedAt)
}

// ScenarioDefinition is an immutable catalog entry bundling a price model with
// a parameter set and an optional duration.
type ScenarioDefinition struct {
	Name        string
	Description string
	Model       PriceModelKind
	Params      ModelParams
	DurationMs  int64
}

// ScenarioEcho confirms a scenario switch back to the caller.
type ScenarioEcho struct {
	SessionID string
	Scenario  string
	Model     PriceModelKind
	AppliedAt time.Time
}
