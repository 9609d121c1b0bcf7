package executor

import (
	"errors"
	"fmt"
)

// ErrJobExecution is the single fatal category every pipeline-level fault
// collapses to at the job boundary: setup I/O and permission faults,
// interruption of the waiting caller, faults propagated out of the isolated
// run, illegal job descriptions, and missing-output integrity violations.
// Coordinators retry or mark the job failed; they never branch on a
// sub-kind. A simulation-level error is not in this category: it travels as
// data inside a RemoteResult.
var ErrJobExecution = errors.New("job execution failed")

// fatal folds any pipeline fault into the boundary category. The cause stays
// on the chain for logs and debugging, but the category is the contract.
func fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrJobExecution, err)
}

func fatalf(format string, args ...any) error {
	return fatal(fmt.Errorf(format, args...))
}
