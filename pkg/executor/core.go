package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	config "crucible/configs"
	"crucible/pkg/cluster"
	"crucible/pkg/metrics"
	"crucible/pkg/models"
	"crucible/pkg/storage"
)

// ConsumerGroup is the redis consumer group all workers pop jobs through.
const ConsumerGroup = "crucible-workers"

// Worker is the per-node executor daemon: it heartbeats into the cluster,
// pops jobs off the queue, runs each through the pipeline, and publishes the
// outcome to the result stream.
type Worker struct {
	ID models.NodeID

	// Resources
	TotalCPU int
	TotalMem uint64 // In MB

	membership cluster.Membership
	queue      storage.Queue
	results    storage.ResultBus
	blobs      storage.BlobStore
	pipeline   *Pipeline
	logger     *zap.Logger

	heartbeatTTL int
	jobTimeout   time.Duration
	concurrency  int
	running      atomic.Int64
}

// NewWorker assembles a worker from its collaborators. Concurrency defaults
// to one job per CPU.
func NewWorker(
	cfg *config.Config,
	membership cluster.Membership,
	queue storage.Queue,
	results storage.ResultBus,
	blobs storage.BlobStore,
	pipeline *Pipeline,
	logger *zap.Logger,
) *Worker {
	concurrency := cfg.MaxConcurrent
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	return &Worker{
		ID:           membership.LocalID(),
		TotalCPU:     runtime.NumCPU(),
		TotalMem:     detectTotalMemory(logger),
		membership:   membership,
		queue:        queue,
		results:      results,
		blobs:        blobs,
		pipeline:     pipeline,
		logger:       logger.With(zap.String("worker_id", string(membership.LocalID()))),
		heartbeatTTL: cfg.HeartbeatTTL,
		jobTimeout:   cfg.JobTimeout,
		concurrency:  concurrency,
	}
}

func detectTotalMemory(logger *zap.Logger) uint64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn("failed to detect memory, defaulting to 1GB", zap.Error(err))
		return 1024
	}
	// Return in MB
	return v.Total / 1024 / 1024
}

// RunningJobs reports the number of jobs currently executing.
func (w *Worker) RunningJobs() int64 {
	return w.running.Load()
}

// Start begins the worker's heartbeat and work loops. It blocks until the
// context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("worker starting",
		zap.Int("cpus", w.TotalCPU),
		zap.Uint64("mem_mb", w.TotalMem),
		zap.Int("concurrency", w.concurrency))

	if err := w.queue.EnsureJobGroup(ctx, ConsumerGroup); err != nil {
		w.logger.Warn("failed to ensure consumer group", zap.Error(err))
	}

	interval := time.Duration(w.heartbeatTTL) * time.Second / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.heartbeat(ctx); err != nil {
					w.logger.Warn("heartbeat failed", zap.Error(err))
				}
			}
		}
	}()

	// Worker pool: the semaphore bounds concurrent jobs, each of which
	// owns its own working area and execution context.
	sem := make(chan struct{}, w.concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				w.consumeOne(ctx)
			}()
		}
	}
}

func (w *Worker) consumeOne(ctx context.Context) {
	msgID, msg, err := w.queue.PopJob(ctx, ConsumerGroup, string(w.ID))
	if err != nil {
		w.logger.Error("failed to pop job", zap.Error(err))
		time.Sleep(time.Second)
		return
	}
	if msg == nil {
		// Empty poll; back off briefly so a drained queue does not spin
		// the semaphore.
		time.Sleep(time.Second)
		return
	}

	metrics.JobsRunning.Inc()
	w.running.Add(1)
	defer func() {
		metrics.JobsRunning.Dec()
		w.running.Add(-1)
	}()

	job := msg.Config()
	w.logger.Info("received job",
		zap.String("job_id", msg.JobID.String()),
		zap.String("batch_id", msg.BatchID.String()),
		zap.String("config", job.String()))

	start := time.Now()
	result, err := w.runJob(ctx, msg, job)
	elapsed := time.Since(start)

	outcome := "completed"
	res := &models.ResultMessage{
		JobID:       msg.JobID,
		BatchID:     msg.BatchID,
		WorkerID:    w.ID,
		Bindings:    msg.Bindings,
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		// The single boundary category: no result exists for this job.
		outcome = "failed"
		res.Failure = err.Error()
		w.logger.Error("job failed",
			zap.String("job_id", msg.JobID.String()),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	} else {
		res.WorkerID = result.Worker
		res.Output = result.Output
		res.SimError = result.Error
		w.logger.Info("job finished",
			zap.String("job_id", msg.JobID.String()),
			zap.Duration("duration", elapsed),
			zap.Bool("sim_error", result.HasError()))
	}

	metrics.RecordJob(outcome, elapsed.Seconds())

	if err := w.results.PublishResult(ctx, res); err != nil {
		w.logger.Error("failed to publish result",
			zap.String("job_id", msg.JobID.String()), zap.Error(err))
		// Leave the message unacked; the queue redelivers it.
		return
	}
	metrics.ResultsPublished.WithLabelValues(outcome).Inc()

	if err := w.queue.AckJob(ctx, ConsumerGroup, msgID); err != nil {
		w.logger.Error("failed to ack job",
			zap.String("job_id", msg.JobID.String()), zap.Error(err))
	}
}

// runJob reconstructs the batch configuration from the blob store and runs
// the job pipeline under the configured timeout.
func (w *Worker) runJob(ctx context.Context, msg *models.JobMessage, job models.JobConfig) (*models.RemoteResult, error) {
	deps, err := w.fetchDependencies(ctx, msg.DepKeys)
	if err != nil {
		return nil, fatal(err)
	}

	batch := &models.BatchConfig{
		ID:           msg.BatchID,
		Dependencies: deps,
		LoaderRef:    msg.LoaderRef,
		EndStep:      msg.EndStep,
		EndTime:      msg.EndTime,
	}

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	return w.pipeline.Execute(runCtx, batch, job, msg.SubmitterID)
}

func (w *Worker) fetchDependencies(ctx context.Context, keys map[string]string) (map[string][]byte, error) {
	deps := make(map[string][]byte, len(keys))
	for name, key := range keys {
		content, err := w.blobs.Retrieve(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dependency %q: %w", name, err)
		}
		deps[name] = content
	}
	return deps, nil
}

func (w *Worker) heartbeat(ctx context.Context) error {
	if err := w.membership.Register(ctx, w.heartbeatTTL); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}
	metrics.HeartbeatsSent.Inc()
	return nil
}
