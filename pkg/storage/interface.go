package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"crucible/pkg/models"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Queue dispatches jobs to workers. Workers consume through a consumer
// group, which is what spreads a batch across the cluster without any
// placement logic here.
type Queue interface {
	// PushJob adds a job to the pending stream.
	PushJob(ctx context.Context, msg *models.JobMessage) error

	// PopJob retrieves one job for the given consumer, blocking briefly.
	// A nil message with nil error means the wait timed out empty.
	PopJob(ctx context.Context, group, consumer string) (string, *models.JobMessage, error)

	// AckJob acknowledges a job as processed.
	AckJob(ctx context.Context, group, msgID string) error

	// EnsureJobGroup ensures the consumer group exists.
	EnsureJobGroup(ctx context.Context, group string) error
}

// ResultBus carries job outcomes back to the dispatcher.
type ResultBus interface {
	PublishResult(ctx context.Context, msg *models.ResultMessage) error
	PopResult(ctx context.Context, group, consumer string) (string, *models.ResultMessage, error)
	AckResult(ctx context.Context, group, msgID string) error
	EnsureResultGroup(ctx context.Context, group string) error
}

// BlobStore holds batch dependency artifacts. The dispatcher uploads them
// once per batch; each worker fetches them by key when materializing a job's
// working area.
type BlobStore interface {
	// Store saves a blob and returns its key.
	Store(ctx context.Context, key string, content []byte) error

	// Retrieve fetches a blob by key; ErrNotFound if absent.
	Retrieve(ctx context.Context, key string) ([]byte, error)
}

// ResultStore is the dispatcher-side history of collected results.
type ResultStore interface {
	SaveResult(ctx context.Context, rec *models.ResultRecord) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.ResultRecord, error)
	CountByBatch(ctx context.Context, batchID uuid.UUID) (completed int64, failed int64, err error)
}
