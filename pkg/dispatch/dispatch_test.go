package dispatch

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"crucible/pkg/models"
)

func TestExpandCartesianProduct(t *testing.T) {
	combos := Expand(map[string][]any{
		"seed": []any{1, 2, 3},
		"rate": []any{0.5, 1.0},
	})
	assert.Len(t, combos, 6)

	keys := make([]string, 0, len(combos))
	for _, c := range combos {
		keys = append(keys, models.NewJobConfig(c).String())
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"{rate=0.5, seed=1}",
		"{rate=0.5, seed=2}",
		"{rate=0.5, seed=3}",
		"{rate=1, seed=1}",
		"{rate=1, seed=2}",
		"{rate=1, seed=3}",
	}, keys)
}

func TestExpandDeterministicOrder(t *testing.T) {
	vars := map[string][]any{
		"b": []any{1, 2},
		"a": []any{"x", "y"},
	}
	first := Expand(vars)
	second := Expand(vars)
	assert.Equal(t, first, second)

	// Sorted variable names: "a" varies slowest.
	assert.Equal(t, "x", first[0]["a"])
	assert.Equal(t, 1, first[0]["b"])
	assert.Equal(t, "x", first[1]["a"])
	assert.Equal(t, 2, first[1]["b"])
	assert.Equal(t, "y", first[2]["a"])
}

func TestExpandSingleVariable(t *testing.T) {
	combos := Expand(map[string][]any{"seed": []any{7}})
	assert.Len(t, combos, 1)
	assert.Equal(t, 7, combos[0]["seed"])
}

func TestExpandEmptySpace(t *testing.T) {
	combos := Expand(nil)
	assert.Len(t, combos, 1)
	assert.Empty(t, combos[0])
}

func TestExpandEmptyDomainYieldsNoJobs(t *testing.T) {
	combos := Expand(map[string][]any{
		"seed": []any{1, 2},
		"rate": []any{},
	})
	assert.Empty(t, combos)
}
