package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchConfig is the configuration shared by every job in a batch: the
// dependency artifacts each job needs materialized locally, the loader that
// knows how to build a simulation from the bindings, and the batch's
// termination conditions. It is owned by the coordinator and strictly
// read-only on the worker, which makes it safe to share across concurrently
// running jobs.
type BatchConfig struct {
	ID uuid.UUID

	// Dependencies maps artifact names to their raw bytes. Names may not
	// contain path separators; each job gets its own private copy written
	// into its working area.
	Dependencies map[string][]byte

	// LoaderRef names the loader, resolved on the worker through the
	// simulation loader registry.
	LoaderRef string

	// EndStep and EndTime bound the simulation: it stops at whichever
	// comes first. Zero values mean unbounded.
	EndStep int64
	EndTime float64
}

// NewBatchConfig builds a batch configuration with a fresh ID.
func NewBatchConfig(deps map[string][]byte, loaderRef string, endStep int64, endTime float64) *BatchConfig {
	return &BatchConfig{
		ID:           uuid.New(),
		Dependencies: deps,
		LoaderRef:    loaderRef,
		EndStep:      endStep,
		EndTime:      endTime,
	}
}

// JobMessage is the per-job payload the dispatcher pushes onto the job
// stream. Dependency bytes stay out of it: workers fetch them from the blob
// store by key, so the message stays small regardless of batch size.
type JobMessage struct {
	JobID       uuid.UUID         `json:"job_id"`
	BatchID     uuid.UUID         `json:"batch_id"`
	SubmitterID NodeID            `json:"submitter_id"`
	LoaderRef   string            `json:"loader_ref"`
	EndStep     int64             `json:"end_step"`
	EndTime     float64           `json:"end_time"`
	DepKeys     map[string]string `json:"dep_keys"` // artifact name -> blob key
	Bindings    map[string]any    `json:"bindings"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}

// Config reconstructs the job's immutable JobConfig from the wire bindings.
func (m *JobMessage) Config() JobConfig {
	return NewJobConfig(m.Bindings)
}

// ResultMessage carries one job's outcome back to the dispatcher. Exactly one
// of Result or Failure is meaningful: a boundary failure means no RemoteResult
// exists for this job at all.
type ResultMessage struct {
	JobID       uuid.UUID      `json:"job_id"`
	BatchID     uuid.UUID      `json:"batch_id"`
	WorkerID    NodeID         `json:"worker_id"`
	Bindings    map[string]any `json:"bindings"`
	Output      []byte         `json:"output,omitempty"`
	SimError    string         `json:"sim_error,omitempty"`
	Failure     string         `json:"failure,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Failed reports whether the job pipeline itself failed (as opposed to the
// simulation recording an internal error, which still yields a result).
func (m *ResultMessage) Failed() bool {
	return m.Failure != ""
}
