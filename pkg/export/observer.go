package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"crucible/pkg/simulation"
)

// ArtifactSink creates the named output artifact on demand. The working
// area implements it.
type ArtifactSink interface {
	CreateArtifact(name string) (io.WriteCloser, error)
}

// Observer renders extractor columns into the job's output artifact, one row
// per simulation step. The artifact is created lazily on the first
// notification: a simulation that never drives the observer leaves no file
// behind, and the result assembler treats that absence as a contract
// violation.
//
// Write faults do not interrupt the simulation; the first one is retained
// and reported through Err after the run.
type Observer struct {
	sink       ArtifactSink
	name       string
	extractors []simulation.Extractor
	w          io.WriteCloser
	err        error
}

// NewObserver builds an observer that writes the named artifact into sink.
func NewObserver(sink ArtifactSink, name string, extractors []simulation.Extractor) *Observer {
	return &Observer{sink: sink, name: name, extractors: extractors}
}

// Initialized writes the column header.
func (o *Observer) Initialized(_ simulation.Environment) {
	cols := []string{"time", "step"}
	for _, e := range o.extractors {
		cols = append(cols, e.Names()...)
	}
	o.writeLine("# " + strings.Join(cols, " "))
}

// StepDone samples every extractor and appends one row.
func (o *Observer) StepDone(env simulation.Environment, time float64, step int64) {
	o.writeRow(env, time, step)
}

// Finished appends the final sample and closes the artifact.
func (o *Observer) Finished(env simulation.Environment, time float64, step int64) {
	o.writeRow(env, time, step)
	o.Close()
}

// Close closes the artifact if one was opened. Idempotent: Finished calls
// it on the normal path and the pipeline calls it again on fault paths, so
// an engine that dies before Finished does not leak the descriptor.
func (o *Observer) Close() error {
	if o.w == nil {
		return nil
	}
	w := o.w
	o.w = nil
	if err := w.Close(); err != nil {
		if o.err == nil {
			o.err = fmt.Errorf("failed to close artifact: %w", err)
		}
		return err
	}
	return nil
}

// Err returns the first write fault encountered, if any.
func (o *Observer) Err() error {
	return o.err
}

func (o *Observer) writeRow(env simulation.Environment, time float64, step int64) {
	row := make([]string, 0, 2+len(o.extractors))
	row = append(row,
		strconv.FormatFloat(time, 'g', -1, 64),
		strconv.FormatInt(step, 10),
	)
	for _, e := range o.extractors {
		for _, v := range e.ExtractData(env, time, step) {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	o.writeLine(strings.Join(row, " "))
}

func (o *Observer) writeLine(line string) {
	if o.err != nil {
		return
	}
	if o.w == nil {
		w, err := o.sink.CreateArtifact(o.name)
		if err != nil {
			o.err = fmt.Errorf("failed to create artifact: %w", err)
			return
		}
		o.w = w
	}
	if _, err := io.WriteString(o.w, line+"\n"); err != nil {
		o.err = fmt.Errorf("failed to write artifact row: %w", err)
	}
}
