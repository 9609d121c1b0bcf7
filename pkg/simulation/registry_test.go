package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/pkg/models"
	"crucible/pkg/resources"
)

type nopLoader struct{}

func (nopLoader) BuildEnvironment(*resources.Resolver, models.JobConfig) (Environment, []Extractor, error) {
	return nil, nil, nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewLoaderRegistry()
	require.NoError(t, r.Register("yaml", nopLoader{}))

	l, err := r.Resolve("yaml")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = r.Resolve("xml")
	assert.ErrorContains(t, err, `unknown loader "xml"`)
}

func TestRegistryRejectsDuplicateRef(t *testing.T) {
	r := NewLoaderRegistry()
	require.NoError(t, r.Register("yaml", nopLoader{}))
	assert.Error(t, r.Register("yaml", nopLoader{}))
}

func TestRegistryRefsSorted(t *testing.T) {
	r := NewLoaderRegistry()
	require.NoError(t, r.Register("b", nopLoader{}))
	require.NoError(t, r.Register("a", nopLoader{}))
	assert.Equal(t, []string{"a", "b"}, r.Refs())
}
