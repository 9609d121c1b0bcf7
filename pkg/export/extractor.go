// Package export implements output observation for simulation runs: stock
// extractors sampling per-step columns, and the observer that renders them
// into the job's output artifact.
package export

import (
	"time"

	"crucible/pkg/simulation"
)

// ExecutionTime reports the wall-clock seconds elapsed since the first
// sample of the run. A step counter moving backwards means a new run reused
// the extractor, which resets the clock.
type ExecutionTime struct {
	started  bool
	initial  time.Time
	lastStep int64
}

// NewExecutionTime creates the extractor.
func NewExecutionTime() *ExecutionTime {
	return &ExecutionTime{}
}

func (e *ExecutionTime) Names() []string {
	return []string{"runningTime"}
}

func (e *ExecutionTime) ExtractData(_ simulation.Environment, _ float64, step int64) []float64 {
	if step < e.lastStep {
		e.started = false
	}
	if !e.started {
		e.started = true
		e.initial = time.Now()
	}
	e.lastStep = step
	return []float64{time.Since(e.initial).Seconds()}
}

// NumberOfNodes logs the number of nodes in the scenario.
type NumberOfNodes struct{}

func (NumberOfNodes) Names() []string {
	return []string{"nodes"}
}

func (NumberOfNodes) ExtractData(env simulation.Environment, _ float64, _ int64) []float64 {
	return []float64{float64(env.NodeCount())}
}
