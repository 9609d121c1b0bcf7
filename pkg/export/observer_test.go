package export_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crucible/pkg/export"
	"crucible/pkg/simulation"
)

type stubEnv struct{ nodes int }

func (s stubEnv) NodeCount() int { return s.nodes }

// memSink records whether the artifact was created and closed.
type memSink struct {
	buf       bytes.Buffer
	created   bool
	closed    bool
	createErr error
	writeErr  error
	closeErr  error
}

func (s *memSink) CreateArtifact(string) (io.WriteCloser, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = true
	return (*memArtifact)(s), nil
}

type memArtifact memSink

func (a *memArtifact) Write(p []byte) (int, error) {
	if a.writeErr != nil {
		return 0, a.writeErr
	}
	return a.buf.Write(p)
}

func (a *memArtifact) Close() error {
	a.closed = true
	return a.closeErr
}

func runObserver(obs *export.Observer, env simulation.Environment) {
	obs.Initialized(env)
	obs.StepDone(env, 0.1, 1)
	obs.StepDone(env, 0.2, 2)
	obs.Finished(env, 0.3, 3)
}

func TestObserverWritesHeaderAndRows(t *testing.T) {
	sink := &memSink{}
	obs := export.NewObserver(sink, "out.txt", []simulation.Extractor{export.NumberOfNodes{}})

	runObserver(obs, stubEnv{nodes: 7})
	require.NoError(t, obs.Err())
	assert.True(t, sink.closed)

	lines := strings.Split(strings.TrimSpace(sink.buf.String()), "\n")
	require.Len(t, lines, 4) // header + 2 steps + final sample
	assert.Equal(t, "# time step nodes", lines[0])
	assert.Equal(t, "0.1 1 7", lines[1])
	assert.Equal(t, "0.3 3 7", lines[3])
}

func TestObserverMultipleExtractors(t *testing.T) {
	sink := &memSink{}
	obs := export.NewObserver(sink, "out.txt",
		[]simulation.Extractor{export.NumberOfNodes{}, export.NewExecutionTime()})

	runObserver(obs, stubEnv{nodes: 2})
	require.NoError(t, obs.Err())

	lines := strings.Split(strings.TrimSpace(sink.buf.String()), "\n")
	assert.Equal(t, "# time step nodes runningTime", lines[0])
	for _, line := range lines[1:] {
		assert.Len(t, strings.Fields(line), 4)
	}
}

func TestObserverCreatesArtifactOnFirstNotification(t *testing.T) {
	sink := &memSink{}
	obs := export.NewObserver(sink, "out.txt", nil)

	// No notifications, no artifact: a run the engine never drives must
	// leave nothing behind for the assembler to read.
	assert.False(t, sink.created)
	require.NoError(t, obs.Close())
	assert.False(t, sink.created)

	obs = export.NewObserver(sink, "out.txt", nil)
	obs.Initialized(stubEnv{})
	assert.True(t, sink.created)
}

func TestObserverCloseWithoutFinished(t *testing.T) {
	sink := &memSink{}
	obs := export.NewObserver(sink, "out.txt", nil)

	obs.Initialized(stubEnv{})
	obs.StepDone(stubEnv{}, 0.1, 1)
	require.False(t, sink.closed)

	// An engine fault skips Finished; the explicit close still lands.
	require.NoError(t, obs.Close())
	assert.True(t, sink.closed)
	require.NoError(t, obs.Close())
	assert.NoError(t, obs.Err())
}

func TestObserverRetainsCreateFault(t *testing.T) {
	sink := &memSink{createErr: assert.AnError}
	obs := export.NewObserver(sink, "out.txt", nil)

	runObserver(obs, stubEnv{})
	require.Error(t, obs.Err())
	assert.Contains(t, obs.Err().Error(), "failed to create artifact")
}

func TestObserverRetainsFirstWriteFault(t *testing.T) {
	sink := &memSink{writeErr: assert.AnError}
	obs := export.NewObserver(sink, "out.txt", nil)

	runObserver(obs, stubEnv{})
	assert.Error(t, obs.Err())
}

func TestExecutionTimeResetsOnNewRun(t *testing.T) {
	e := export.NewExecutionTime()
	env := stubEnv{}

	first := e.ExtractData(env, 0, 5)[0]
	assert.GreaterOrEqual(t, first, 0.0)

	// A step counter moving backwards marks a fresh run.
	reset := e.ExtractData(env, 0, 1)[0]
	assert.Less(t, reset, 0.5)
}

func TestNumberOfNodes(t *testing.T) {
	var n export.NumberOfNodes
	assert.Equal(t, []string{"nodes"}, n.Names())
	assert.Equal(t, []float64{3}, n.ExtractData(stubEnv{nodes: 3}, 0, 0))
}
