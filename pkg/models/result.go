package models

// RemoteResult is the coordinator-facing product of one job execution: the
// captured output artifact, the identity of the node that produced it, the
// simulation's terminal error if it recorded one, and the originating
// JobConfig so the coordinator can correlate the result back to its job.
//
// A set Error does not make the result a failure: a simulation that ends
// having recorded an internal error is still a successfully executed job, and
// an empty Output after a clean run is valid (a trivial run writes nothing
// beyond its header).
type RemoteResult struct {
	// Output holds the bytes of the captured output artifact.
	Output []byte

	// Worker is the node that actually executed the job, read from the
	// membership layer at assembly time.
	Worker NodeID

	// Error carries the simulation's own terminal error, empty when the
	// engine finished cleanly. It is data, not a propagated failure.
	Error string

	// Config is the originating JobConfig, echoed back verbatim.
	Config JobConfig
}

// HasError reports whether the simulation recorded a terminal error.
func (r *RemoteResult) HasError() bool {
	return r.Error != ""
}
