package workarea_test

import (
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/pkg/workarea"
)

func TestNewCreatesUniqueRoots(t *testing.T) {
	scratch := t.TempDir()

	a, err := workarea.New(scratch)
	require.NoError(t, err)
	defer a.Release()

	b, err := workarea.New(scratch)
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Root(), b.Root())
	assert.DirExists(t, a.Root())
	assert.DirExists(t, b.Root())
}

func TestMaterializeAndReadBack(t *testing.T) {
	wa, err := workarea.New(t.TempDir())
	require.NoError(t, err)
	defer wa.Release()

	deps := map[string][]byte{
		"lib.jar":        []byte("X"),
		"conf/rates.yml": []byte("rate: 0.5"),
	}
	require.NoError(t, wa.Materialize(deps))

	content, err := fs.ReadFile(wa.Resources(), "lib.jar")
	require.NoError(t, err)
	assert.Equal(t, []byte("X"), content)

	content, err = fs.ReadFile(wa.Resources(), "conf/rates.yml")
	require.NoError(t, err)
	assert.Equal(t, []byte("rate: 0.5"), content)
}

func TestMaterializeRejectsEscapingNames(t *testing.T) {
	wa, err := workarea.New(t.TempDir())
	require.NoError(t, err)
	defer wa.Release()

	err = wa.Materialize(map[string][]byte{"../escape.txt": []byte("nope")})
	assert.Error(t, err)

	err = wa.Materialize(map[string][]byte{"/etc/evil": []byte("nope")})
	assert.Error(t, err)

	// The area stays usable and releasable after a failed materialize.
	require.NoError(t, wa.Materialize(map[string][]byte{"ok.txt": []byte("ok")}))
	require.NoError(t, wa.Release())
}

func TestReadArtifactNotFound(t *testing.T) {
	wa, err := workarea.New(t.TempDir())
	require.NoError(t, err)
	defer wa.Release()

	_, err = wa.ReadArtifact("missing.txt")
	assert.ErrorIs(t, err, workarea.ErrArtifactNotFound)
}

func TestCreateArtifactTruncates(t *testing.T) {
	wa, err := workarea.New(t.TempDir())
	require.NoError(t, err)
	defer wa.Release()

	w, err := wa.CreateArtifact("out.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("first run with a long line"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = wa.CreateArtifact("out.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	content, err := wa.ReadArtifact("out.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), content)
}

func TestReleaseRemovesEverything(t *testing.T) {
	wa, err := workarea.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, wa.Materialize(map[string][]byte{"lib.jar": []byte("X")}))
	root := wa.Root()

	require.NoError(t, wa.Release())
	assert.True(t, wa.Released())
	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))

	// Idempotent.
	require.NoError(t, wa.Release())

	// Operations after release fail cleanly.
	_, err = wa.ReadArtifact("lib.jar")
	assert.ErrorIs(t, err, workarea.ErrReleased)
	assert.ErrorIs(t, wa.Materialize(map[string][]byte{"a": nil}), workarea.ErrReleased)
}
