// Package simulation defines the contracts between the executor core and its
// external collaborators: the loader that builds a simulation environment
// from variable bindings, the discrete-event engine that runs it, and the
// extractors that observe it. The core never inspects their internals; it
// only sequences calls and reads the terminal error.
package simulation

import (
	"context"

	"crucible/pkg/models"
	"crucible/pkg/resources"
)

// Environment is the simulated world the engine advances. Opaque to the
// executor; extractors read the little they need through this interface.
type Environment interface {
	// NodeCount returns the number of nodes currently in the scenario.
	NodeCount() int
}

// Observer is notified as the simulation advances. The output observer that
// writes the job's artifact implements this.
type Observer interface {
	// Initialized fires once before the first step.
	Initialized(env Environment)

	// StepDone fires after each step with the current simulated time.
	StepDone(env Environment, time float64, step int64)

	// Finished fires once, after the last step, whether or not the engine
	// recorded a terminal error.
	Finished(env Environment, time float64, step int64)
}

// Simulation is one run of the engine, built for a single job.
type Simulation interface {
	// AttachObserver registers an observer before the run starts.
	AttachObserver(obs Observer)

	// Start marks the simulation runnable.
	Start()

	// RunToCompletion advances the simulation until a termination
	// condition or ctx cancellation. A returned error is an engine fault
	// propagated to the caller; errors the engine recorded internally are
	// reported through TerminalError instead.
	RunToCompletion(ctx context.Context) error

	// TerminalError returns the error the engine recorded during the run,
	// or nil. It is data: a simulation that ends with a recorded error
	// still counts as an executed job.
	TerminalError() error
}

// EngineFactory builds a Simulation for an environment bounded by the
// batch's termination conditions. Zero endStep or endTime means unbounded.
type EngineFactory func(env Environment, endStep int64, endTime float64) Simulation

// Extractor pulls one row's worth of numeric columns out of the running
// simulation at each step.
type Extractor interface {
	// Names returns the column names, in the order ExtractData reports
	// their values.
	Names() []string

	// ExtractData samples the columns at the given step.
	ExtractData(env Environment, time float64, step int64) []float64
}

// Loader turns a configuration plus variable bindings into a ready
// environment and its extractors. Resolution of any named resource the
// configuration references must go through the supplied resolver, so that
// job-local artifacts shadow the worker's ambient ones.
type Loader interface {
	BuildEnvironment(res *resources.Resolver, config models.JobConfig) (Environment, []Extractor, error)
}
