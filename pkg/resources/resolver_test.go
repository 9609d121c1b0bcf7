package resources_test

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/pkg/resources"
)

func TestFrontLayerShadowsBase(t *testing.T) {
	base := fstest.MapFS{
		"model.yaml": {Data: []byte("base")},
		"shared.txt": {Data: []byte("ambient")},
	}
	front := fstest.MapFS{
		"model.yaml": {Data: []byte("job-local")},
	}

	r := resources.NewResolver(base).Layered(front)

	content, err := r.ReadFile("model.yaml")
	require.NoError(t, err)
	assert.Equal(t, "job-local", string(content))

	// Names absent from the front layer fall through to the base.
	content, err = r.ReadFile("shared.txt")
	require.NoError(t, err)
	assert.Equal(t, "ambient", string(content))
}

func TestLayeredDoesNotMutateReceiver(t *testing.T) {
	base := fstest.MapFS{"model.yaml": {Data: []byte("base")}}
	ambient := resources.NewResolver(base)

	jobA := ambient.Layered(fstest.MapFS{"model.yaml": {Data: []byte("A")}})
	jobB := ambient.Layered(fstest.MapFS{"model.yaml": {Data: []byte("B")}})

	a, err := jobA.ReadFile("model.yaml")
	require.NoError(t, err)
	b, err := jobB.ReadFile("model.yaml")
	require.NoError(t, err)
	amb, err := ambient.ReadFile("model.yaml")
	require.NoError(t, err)

	assert.Equal(t, "A", string(a))
	assert.Equal(t, "B", string(b))
	assert.Equal(t, "base", string(amb))
}

func TestMissingResource(t *testing.T) {
	r := resources.NewResolver(fstest.MapFS{})

	_, err := r.Open("nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, r.Exists("nope.txt"))
}

func TestInvalidName(t *testing.T) {
	r := resources.NewResolver(fstest.MapFS{})

	_, err := r.Open("../escape")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestEmptyResolver(t *testing.T) {
	r := resources.NewResolver()

	_, err := r.Open("anything")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
