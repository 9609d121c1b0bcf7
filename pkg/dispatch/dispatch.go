// Package dispatch implements the coordinator side of a batch run: expanding
// the variable space into per-job bindings, staging dependency artifacts in
// the blob store, pushing one job message per binding, and collecting the
// results as they come back. Which worker picks up which job is decided by
// the queue's consumer group, not here.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crucible/pkg/cluster"
	"crucible/pkg/metrics"
	"crucible/pkg/models"
	"crucible/pkg/storage"
)

// ResultGroup is the consumer group dispatchers collect results through.
const ResultGroup = "crucible-dispatchers"

// Batch describes a parametrized simulation batch before splitting: one job
// is created per combination of the variable domains.
type Batch struct {
	Dependencies map[string][]byte
	LoaderRef    string
	EndStep      int64
	EndTime      float64

	// Variables maps each variable name to its domain of values.
	Variables map[string][]any
}

// Dispatcher splits batches into jobs and gathers their results.
type Dispatcher struct {
	queue      storage.Queue
	results    storage.ResultBus
	blobs      storage.BlobStore
	store      storage.ResultStore
	membership cluster.Membership
	logger     *zap.Logger
}

// NewDispatcher wires the dispatcher's collaborators. store may be nil when
// result history persistence is not wanted.
func NewDispatcher(
	queue storage.Queue,
	results storage.ResultBus,
	blobs storage.BlobStore,
	store storage.ResultStore,
	membership cluster.Membership,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		queue:      queue,
		results:    results,
		blobs:      blobs,
		store:      store,
		membership: membership,
		logger:     logger,
	}
}

// SubmitBatch stages the batch's dependencies, expands its variable space,
// and pushes one job per binding. It returns the batch ID and the number of
// jobs dispatched.
func (d *Dispatcher) SubmitBatch(ctx context.Context, batch *Batch) (uuid.UUID, int, error) {
	batchID := uuid.New()
	submitter := d.membership.LocalID()

	depKeys := make(map[string]string, len(batch.Dependencies))
	for name, content := range batch.Dependencies {
		key := fmt.Sprintf("%s/deps/%s", batchID, name)
		if err := d.blobs.Store(ctx, key, content); err != nil {
			return uuid.Nil, 0, fmt.Errorf("failed to stage dependency %q: %w", name, err)
		}
		depKeys[name] = key
	}

	bindings := Expand(batch.Variables)
	for _, b := range bindings {
		msg := &models.JobMessage{
			JobID:       uuid.New(),
			BatchID:     batchID,
			SubmitterID: submitter,
			LoaderRef:   batch.LoaderRef,
			EndStep:     batch.EndStep,
			EndTime:     batch.EndTime,
			DepKeys:     depKeys,
			Bindings:    b,
			EnqueuedAt:  time.Now().UTC(),
		}
		if err := d.queue.PushJob(ctx, msg); err != nil {
			return batchID, 0, fmt.Errorf("failed to dispatch job %s: %w", msg.JobID, err)
		}
		metrics.JobsDispatched.Inc()
	}

	d.logger.Info("batch dispatched",
		zap.String("batch_id", batchID.String()),
		zap.Int("jobs", len(bindings)),
		zap.String("loader", batch.LoaderRef))
	return batchID, len(bindings), nil
}

// Run collects results until the context is cancelled, persisting each to
// the result store when one is configured. It also refreshes the
// active-node gauge from the membership view.
func (d *Dispatcher) Run(ctx context.Context) {
	if err := d.results.EnsureResultGroup(ctx, ResultGroup); err != nil {
		d.logger.Warn("failed to ensure result group", zap.Error(err))
	}

	nodeTicker := time.NewTicker(30 * time.Second)
	defer nodeTicker.Stop()

	consumer := string(d.membership.LocalID())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shutting down")
			return
		case <-nodeTicker.C:
			if nodes, err := d.membership.ActiveNodes(ctx); err == nil {
				metrics.ActiveNodes.Set(float64(len(nodes)))
			}
		default:
			d.collectOne(ctx, consumer)
		}
	}
}

func (d *Dispatcher) collectOne(ctx context.Context, consumer string) {
	msgID, msg, err := d.results.PopResult(ctx, ResultGroup, consumer)
	if err != nil {
		d.logger.Error("failed to pop result", zap.Error(err))
		time.Sleep(time.Second)
		return
	}
	if msg == nil {
		return
	}

	if msg.Failed() {
		d.logger.Warn("job failed on worker",
			zap.String("job_id", msg.JobID.String()),
			zap.String("worker", string(msg.WorkerID)),
			zap.String("failure", msg.Failure))
	}

	if d.store != nil {
		rec := &models.ResultRecord{
			BatchID:     msg.BatchID,
			JobID:       msg.JobID,
			JobKey:      models.NewJobConfig(msg.Bindings).String(),
			WorkerID:    string(msg.WorkerID),
			Bindings:    msg.Bindings,
			Output:      msg.Output,
			SimError:    msg.SimError,
			Failure:     msg.Failure,
			CompletedAt: msg.CompletedAt,
		}
		if err := d.store.SaveResult(ctx, rec); err != nil {
			d.logger.Error("failed to persist result",
				zap.String("job_id", msg.JobID.String()), zap.Error(err))
			// Unacked: redelivered on the next pass.
			return
		}
	}

	if err := d.results.AckResult(ctx, ResultGroup, msgID); err != nil {
		d.logger.Error("failed to ack result",
			zap.String("job_id", msg.JobID.String()), zap.Error(err))
	}
}

// Expand produces one binding map per combination of the variable domains.
// Variable names are walked in sorted order so the expansion order is
// deterministic: re-submitting the same batch enumerates jobs identically.
func Expand(variables map[string][]any) []map[string]any {
	if len(variables) == 0 {
		return []map[string]any{{}}
	}

	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]any{{}}
	for _, name := range names {
		domain := variables[name]
		next := make([]map[string]any, 0, len(combos)*len(domain))
		for _, combo := range combos {
			for _, value := range domain {
				expanded := make(map[string]any, len(combo)+1)
				for k, v := range combo {
					expanded[k] = v
				}
				expanded[name] = value
				next = append(next, expanded)
			}
		}
		combos = next
	}
	return combos
}
