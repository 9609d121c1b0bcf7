package cluster

import (
	"context"

	"crucible/pkg/models"
)

// Membership is the worker's read-mostly view of the cluster. The executor
// core only ever reads the local identity and sends heartbeats; it never
// manages membership itself.
type Membership interface {
	// LocalID returns the identity of this node. Result assembly reads it
	// at assembly time, not at job start, so a retried job reports the
	// node that actually ran it.
	LocalID() models.NodeID

	// Register announces this node as alive with the given TTL in seconds.
	// Called periodically from the heartbeat loop; a node that stops
	// calling it expires from the cluster view.
	Register(ctx context.Context, ttlSeconds int) error

	// ActiveNodes lists the identities of nodes currently alive.
	ActiveNodes(ctx context.Context) ([]models.NodeID, error)

	// Close terminates the membership connection.
	Close() error
}
