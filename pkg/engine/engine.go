// Package engine provides the built-in fixed-step simulation engine and the
// synthetic loader registered by default on every worker. The synthetic
// incarnation exists for cluster smoke runs: it exercises the full job
// pipeline (dependency materialization, isolated run, artifact export)
// without any external model files.
package engine

import (
	"context"
	"fmt"
	"sync"

	"crucible/pkg/models"
	"crucible/pkg/resources"
	"crucible/pkg/simulation"
)

// SteppedEngine advances an environment in fixed time increments until a
// termination condition is met or the run context is cancelled. It
// implements simulation.Simulation.
type SteppedEngine struct {
	env     simulation.Environment
	dt      float64
	endStep int64
	endTime float64

	mu        sync.Mutex
	observers []simulation.Observer
	started   bool
	termErr   error
}

// Stepper is implemented by environments that mutate themselves each step.
// Environments without it are advanced as static worlds.
type Stepper interface {
	Step(time float64, step int64) error
}

// New builds a SteppedEngine for env. Zero endStep or endTime leaves that
// bound open; with both zero the engine performs a single step and stops.
func New(env simulation.Environment, endStep int64, endTime float64) simulation.Simulation {
	return &SteppedEngine{
		env:     env,
		dt:      1.0,
		endStep: endStep,
		endTime: endTime,
	}
}

// Factory is the simulation.EngineFactory for the built-in engine.
func Factory(env simulation.Environment, endStep int64, endTime float64) simulation.Simulation {
	return New(env, endStep, endTime)
}

func (e *SteppedEngine) AttachObserver(obs simulation.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

func (e *SteppedEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
}

// RunToCompletion drives the step loop. Stepper errors become the terminal
// error and end the run; they are recorded, not returned, because a model
// that dies mid-run is still an executed job.
func (e *SteppedEngine) RunToCompletion(ctx context.Context) error {
	e.mu.Lock()
	started := e.started
	observers := e.observers
	e.mu.Unlock()
	if !started {
		return fmt.Errorf("engine not started")
	}

	for _, obs := range observers {
		obs.Initialized(e.env)
	}

	var time float64
	var step int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		time += e.dt
		step++

		if stepper, ok := e.env.(Stepper); ok {
			if err := stepper.Step(time, step); err != nil {
				e.mu.Lock()
				e.termErr = err
				e.mu.Unlock()
				break
			}
		}

		for _, obs := range observers {
			obs.StepDone(e.env, time, step)
		}

		if e.endStep > 0 && step >= e.endStep {
			break
		}
		if e.endTime > 0 && time >= e.endTime {
			break
		}
		if e.endStep == 0 && e.endTime == 0 {
			break
		}
	}

	for _, obs := range observers {
		obs.Finished(e.env, time, step)
	}
	return nil
}

func (e *SteppedEngine) TerminalError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.termErr
}

// SyntheticLoader builds self-contained environments from bindings alone.
// Recognized bindings: "nodes" (initial node count, default 1), "growth"
// (nodes added per step, default 0), "fail_at_step" (the step at which the
// model records a terminal error, for failure-path smoke runs).
type SyntheticLoader struct{}

// Ref is the registry name of the built-in loader.
const Ref = "synthetic"

func (SyntheticLoader) BuildEnvironment(
	_ *resources.Resolver,
	config models.JobConfig,
) (simulation.Environment, []simulation.Extractor, error) {
	nodes := intBinding(config, "nodes", 1)
	if nodes < 0 {
		return nil, nil, fmt.Errorf("binding %q must be non-negative, got %d", "nodes", nodes)
	}
	env := &syntheticEnv{
		nodes:      nodes,
		growth:     intBinding(config, "growth", 0),
		failAtStep: int64(intBinding(config, "fail_at_step", 0)),
	}
	return env, nil, nil
}

type syntheticEnv struct {
	mu         sync.Mutex
	nodes      int
	growth     int
	failAtStep int64
}

func (s *syntheticEnv) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes
}

func (s *syntheticEnv) Step(_ float64, step int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAtStep > 0 && step >= s.failAtStep {
		return fmt.Errorf("synthetic failure at step %d", step)
	}
	s.nodes += s.growth
	return nil
}

func intBinding(config models.JobConfig, name string, fallback int) int {
	v, ok := config.Value(name)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
