package executor_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crucible/pkg/cluster"
	"crucible/pkg/executor"
	"crucible/pkg/models"
	"crucible/pkg/resources"
	"crucible/pkg/simulation"
)

// --- fakes ---

type fakeMembership struct {
	id models.NodeID
}

func (f *fakeMembership) LocalID() models.NodeID { return f.id }
func (f *fakeMembership) Register(context.Context, int) error {
	return nil
}
func (f *fakeMembership) ActiveNodes(context.Context) ([]models.NodeID, error) {
	return []models.NodeID{f.id}, nil
}
func (f *fakeMembership) Close() error { return nil }

var _ cluster.Membership = (*fakeMembership)(nil)

type fakeEnv struct {
	nodes int
}

func (e *fakeEnv) NodeCount() int { return e.nodes }

// fakeLoader reads the named dependency through the job's resolver and
// records what it saw, keyed by config rendering.
type fakeLoader struct {
	depName string

	mu   sync.Mutex
	seen map[string][]byte
}

func newFakeLoader(depName string) *fakeLoader {
	return &fakeLoader{depName: depName, seen: make(map[string][]byte)}
}

func (l *fakeLoader) BuildEnvironment(res *resources.Resolver, config models.JobConfig) (simulation.Environment, []simulation.Extractor, error) {
	content, err := res.ReadFile(l.depName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", l.depName, err)
	}
	l.mu.Lock()
	l.seen[config.String()] = content
	l.mu.Unlock()
	return &fakeEnv{nodes: len(content)}, nil, nil
}

func (l *fakeLoader) sawFor(config models.JobConfig) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[config.String()]
}

// fakeSim drives the observer for a handful of steps. Knobs select the
// failure modes the pipeline has to translate.
type fakeSim struct {
	env          *fakeEnv
	obs          simulation.Observer
	runErr       error // propagated engine fault
	termErr      error // recorded simulation-level error
	skipObserver bool  // never touch the observer: artifact goes missing
	blockOnCtx   bool  // run until the context is cancelled
}

func (s *fakeSim) AttachObserver(obs simulation.Observer) { s.obs = obs }
func (s *fakeSim) Start()                                 {}

func (s *fakeSim) RunToCompletion(ctx context.Context) error {
	if s.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.runErr != nil {
		return s.runErr
	}
	if s.skipObserver {
		return nil
	}
	s.obs.Initialized(s.env)
	for step := int64(0); step < 3; step++ {
		s.obs.StepDone(s.env, float64(step)/10, step)
	}
	s.obs.Finished(s.env, 0.3, 3)
	return nil
}

func (s *fakeSim) TerminalError() error { return s.termErr }

// --- helpers ---

type pipelineFixture struct {
	pipeline *executor.Pipeline
	loader   *fakeLoader
	scratch  string
	sims     []*fakeSim
	mu       sync.Mutex
	simSetup func(*fakeSim)
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		loader:  newFakeLoader("lib.jar"),
		scratch: t.TempDir(),
	}

	registry := simulation.NewLoaderRegistry()
	require.NoError(t, registry.Register("test-loader", f.loader))

	factory := func(env simulation.Environment, endStep int64, endTime float64) simulation.Simulation {
		sim := &fakeSim{env: env.(*fakeEnv)}
		if f.simSetup != nil {
			f.simSetup(sim)
		}
		f.mu.Lock()
		f.sims = append(f.sims, sim)
		f.mu.Unlock()
		return sim
	}

	f.pipeline = executor.NewPipeline(
		registry,
		factory,
		&fakeMembership{id: "worker-1"},
		resources.NewResolver(),
		f.scratch,
		zap.NewNop(),
	)
	return f
}

func testBatch(deps map[string][]byte) *models.BatchConfig {
	return models.NewBatchConfig(deps, "test-loader", 100, 10.0)
}

// assertScratchEmpty verifies no working area survived the call.
func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "working area not released")
}

// --- tests ---

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t)
	job := models.NewJobConfig(map[string]any{"seed": 1})

	result, err := f.pipeline.Execute(context.Background(),
		testBatch(map[string][]byte{"lib.jar": []byte("X")}), job, "coord-A")
	require.NoError(t, err)

	assert.False(t, result.HasError())
	assert.Equal(t, models.NodeID("worker-1"), result.Worker)
	assert.True(t, result.Config.Equal(job), "result must echo the originating config")

	// The observer wrote header plus one row per step.
	assert.Contains(t, string(result.Output), "# time step")
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteCarriesSimulationErrorAsData(t *testing.T) {
	f := newFixture(t)
	f.simSetup = func(s *fakeSim) { s.termErr = errors.New("divergent model state") }
	job := models.NewJobConfig(map[string]any{"seed": 2})

	result, err := f.pipeline.Execute(context.Background(),
		testBatch(map[string][]byte{"lib.jar": []byte("X")}), job, "coord-A")
	require.NoError(t, err, "a recorded simulation error is not a pipeline failure")

	// Errors and output are not mutually exclusive.
	assert.Equal(t, "divergent model state", result.Error)
	assert.NotEmpty(t, result.Output)
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteEngineFaultIsFatal(t *testing.T) {
	f := newFixture(t)
	f.simSetup = func(s *fakeSim) { s.runErr = errors.New("engine exploded") }

	result, err := f.pipeline.Execute(context.Background(),
		testBatch(map[string][]byte{"lib.jar": []byte("X")}),
		models.NewJobConfig(map[string]any{"seed": 1}), "coord-A")

	require.Nil(t, result)
	assert.ErrorIs(t, err, executor.ErrJobExecution)
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteMissingArtifactWithoutSimError(t *testing.T) {
	f := newFixture(t)
	f.simSetup = func(s *fakeSim) { s.skipObserver = true }

	result, err := f.pipeline.Execute(context.Background(),
		testBatch(map[string][]byte{"lib.jar": []byte("X")}),
		models.NewJobConfig(map[string]any{"seed": 1}), "coord-A")

	// A clean run with no artifact is a contract violation, never an
	// empty result.
	require.Nil(t, result)
	assert.ErrorIs(t, err, executor.ErrJobExecution)
	assert.Contains(t, err.Error(), "coord-A_{seed=1}.txt")
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteSetupFailure(t *testing.T) {
	f := newFixture(t)

	result, err := f.pipeline.Execute(context.Background(),
		testBatch(map[string][]byte{"../evil.jar": []byte("X")}),
		models.NewJobConfig(map[string]any{"seed": 1}), "coord-A")

	require.Nil(t, result)
	assert.ErrorIs(t, err, executor.ErrJobExecution)
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteUnknownLoader(t *testing.T) {
	f := newFixture(t)
	batch := models.NewBatchConfig(map[string][]byte{"lib.jar": []byte("X")}, "no-such-loader", 0, 0)

	result, err := f.pipeline.Execute(context.Background(), batch,
		models.NewJobConfig(map[string]any{"seed": 1}), "coord-A")

	require.Nil(t, result)
	assert.ErrorIs(t, err, executor.ErrJobExecution)
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteInterruption(t *testing.T) {
	f := newFixture(t)
	f.simSetup = func(s *fakeSim) { s.blockOnCtx = true }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result, err := f.pipeline.Execute(ctx,
		testBatch(map[string][]byte{"lib.jar": []byte("X")}),
		models.NewJobConfig(map[string]any{"seed": 1}), "coord-A")

	require.Nil(t, result)
	assert.ErrorIs(t, err, executor.ErrJobExecution)
	// Interruption still releases the working area.
	assertScratchEmpty(t, f.scratch)
}

func TestConcurrentJobsDoNotObserveEachOther(t *testing.T) {
	f := newFixture(t)

	jobA := models.NewJobConfig(map[string]any{"tenant": "A"})
	jobB := models.NewJobConfig(map[string]any{"tenant": "B"})
	batchA := testBatch(map[string][]byte{"lib.jar": []byte("contents-of-A")})
	batchB := testBatch(map[string][]byte{"lib.jar": []byte("contents-of-B!!")})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.pipeline.Execute(context.Background(), batchA, jobA, "coord-A")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.pipeline.Execute(context.Background(), batchB, jobB, "coord-A")
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Each job resolved its own bytes for the same logical name.
	assert.Equal(t, []byte("contents-of-A"), f.loader.sawFor(jobA))
	assert.Equal(t, []byte("contents-of-B!!"), f.loader.sawFor(jobB))
	assertScratchEmpty(t, f.scratch)
}

func TestRepeatedSubmissionOverwrites(t *testing.T) {
	f := newFixture(t)
	job := models.NewJobConfig(map[string]any{"seed": 1})
	batch := testBatch(map[string][]byte{"lib.jar": []byte("X")})

	first, err := f.pipeline.Execute(context.Background(), batch, job, "coord-A")
	require.NoError(t, err)

	second, err := f.pipeline.Execute(context.Background(), batch, job, "coord-A")
	require.NoError(t, err)

	// Same config, same submitter: same artifact name on both runs, and
	// the second run's output stands alone rather than being appended to
	// the first.
	assert.Equal(t,
		models.ArtifactName("coord-A", first.Config),
		models.ArtifactName("coord-A", second.Config))
	assert.Equal(t, len(first.Output), len(second.Output))
	assertScratchEmpty(t, f.scratch)
}

func TestExecuteEmptyDependencySetIsValid(t *testing.T) {
	f := newFixture(t)
	// Loader fails to resolve its dep, which is a build failure, not a
	// materialize failure.
	result, err := f.pipeline.Execute(context.Background(),
		testBatch(nil), models.NewJobConfig(map[string]any{"seed": 1}), "coord-A")

	require.Nil(t, result)
	assert.ErrorIs(t, err, executor.ErrJobExecution)
	assertScratchEmpty(t, f.scratch)
}
