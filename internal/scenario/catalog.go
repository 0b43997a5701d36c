// Package scenario holds the catalog of named simulation presets. The catalog
// is immutable after construction: definitions are loaded once at process
// start and handed out by value.
package scenario

import (
	"fmt"
	"sort"

	"github.com/perpstack/simcore/internal/domain"
)

// Catalog is a read-only lookup of scenario definitions by name.
type Catalog struct {
	byName map[string]domain.ScenarioDefinition
}

// NewCatalog builds a catalog from the given definitions. Duplicate names and
// invalid parameter sets are rejected.
func NewCatalog(defs []domain.ScenarioDefinition) (*Catalog, error) {
	byName := make(map[string]domain.ScenarioDefinition, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: scenario name is required", domain.ErrInvalidConfig)
		}
		if _, dup := byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario %q", domain.ErrInvalidConfig, def.Name)
		}
		if def.Params == nil {
			return nil, fmt.Errorf("%w: scenario %q has no params", domain.ErrInvalidConfig, def.Name)
		}
		if def.Params.Kind() != def.Model {
			return nil, fmt.Errorf("%w: scenario %q params do not match model %q",
				domain.ErrInvalidConfig, def.Name, def.Model)
		}
		if err := def.Params.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", def.Name, err)
		}
		byName[def.Name] = def
	}
	return &Catalog{byName: byName}, nil
}

// Default returns the built-in catalog shipped with the simulator.
func Default() *Catalog {
	c, err := NewCatalog(builtins())
	if err != nil {
		// builtins are compile-time constants; a failure here is a programming
		// error, not a runtime condition.
		panic(err)
	}
	return c
}

// Lookup returns the definition registered under name, or
// domain.ErrUnknownScenario.
func (c *Catalog) Lookup(name string) (domain.ScenarioDefinition, error) {
	def, ok := c.byName[name]
	if !ok {
		return domain.ScenarioDefinition{}, fmt.Errorf("%w: %q", domain.ErrUnknownScenario, name)
	}
	return def, nil
}

// List returns every definition sorted by name.
func (c *Catalog) List() []domain.ScenarioDefinition {
	out := make([]domain.ScenarioDefinition, 0, len(c.byName))
	for _, def := range c.byName {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func builtins() []domain.ScenarioDefinition {
	return []domain.ScenarioDefinition{
		{
			Name:        "calm",
			Description: "Low-volatility random walk around the starting price",
			Model:       domain.ModelRandomWalk,
			Params:      domain.RandomWalkParams{Volatility: 0.002},
		},
		{
			Name:        "choppy",
			Description: "High-volatility random walk",
			Model:       domain.ModelRandomWalk,
			Params:      domain.RandomWalkParams{Volatility: 0.02},
		},
		{
			Name:        "bull-run",
			Description: "Steady upward drift with light noise",
			Model:       domain.ModelTrending,
			Params:      domain.TrendingParams{DriftE6PerTick: 100_000, NoiseVolatility: 0.004},
		},
		{
			Name:        "bear-slide",
			Description: "Steady downward drift with light noise",
			Model:       domain.ModelTrending,
			Params:      domain.TrendingParams{DriftE6PerTick: -100_000, NoiseVolatility: 0.004},
		},
		{
			Name:        "range-bound",
			Description: "Mean reversion toward the session start price",
			Model:       domain.ModelMeanRevert,
			Params:      domain.MeanRevertParams{MeanPriceE6: 100_000000, RevertSpeed: 0.15, NoiseVolatility: 0.006},
		},
		{
			Name:        "crash",
			Description: "40% crash over 30s, then slow recovery",
			Model:       domain.ModelCrash,
			Params:      domain.CrashParams{CrashMagnitude: 0.4, CrashDurationMs: 30_000, RecoverySpeed: 0.02},
			DurationMs:  300_000,
		},
		{
			Name:        "flash-crash",
			Description: "60% crash over 5s, fast recovery",
			Model:       domain.ModelCrash,
			Params:      domain.CrashParams{CrashMagnitude: 0.6, CrashDurationMs: 5_000, RecoverySpeed: 0.1},
			DurationMs:  120_000,
		},
		{
			Name:        "short-squeeze",
			Description: "80% squeeze over 20s, then bleed back",
			Model:       domain.ModelSqueeze,
			Params:      domain.SqueezeParams{SqueezeMagnitude: 0.8, SqueezeDurationMs: 20_000, RecoverySpeed: 0.03},
			DurationMs:  240_000,
		},
	}
}
