package scenario

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
)

func TestDefaultCatalogLookup(t *testing.T) {
	c := Default()

	def, err := c.Lookup("crash")
	require.NoError(t, err)
	assert.Equal(t, domain.ModelCrash, def.Model)
	assert.Equal(t, domain.ModelCrash, def.Params.Kind())

	_, err = c.Lookup("no-such-scenario")
	require.ErrorIs(t, err, domain.ErrUnknownScenario)
}

func TestDefaultCatalogListSorted(t *testing.T) {
	defs := Default().List()
	require.NotEmpty(t, defs)

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.True(t, sort.StringsAreSorted(names))
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	defs := []domain.ScenarioDefinition{
		{Name: "a", Model: domain.ModelRandomWalk, Params: domain.RandomWalkParams{Volatility: 0.01}},
		{Name: "a", Model: domain.ModelRandomWalk, Params: domain.RandomWalkParams{Volatility: 0.02}},
	}
	_, err := NewCatalog(defs)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNewCatalogRejectsMismatchedModel(t *testing.T) {
	defs := []domain.ScenarioDefinition{
		{Name: "a", Model: domain.ModelCrash, Params: domain.RandomWalkParams{Volatility: 0.01}},
	}
	_, err := NewCatalog(defs)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNewCatalogValidatesParams(t *testing.T) {
	defs := []domain.ScenarioDefinition{
		{Name: "bad", Model: domain.ModelCrash, Params: domain.CrashParams{CrashMagnitude: 2, CrashDurationMs: 1000}},
	}
	_, err := NewCatalog(defs)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
