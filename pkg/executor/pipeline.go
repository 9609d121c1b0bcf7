package executor

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"crucible/pkg/cluster"
	"crucible/pkg/export"
	"crucible/pkg/metrics"
	"crucible/pkg/models"
	"crucible/pkg/resources"
	"crucible/pkg/simulation"
	"crucible/pkg/workarea"
)

// Pipeline composes the end-to-end per-job execution: acquire a scoped
// working area, materialize the batch's dependencies, build and run the
// simulation inside an isolated execution context, assemble a RemoteResult,
// and release the working area on every exit path.
//
// One Pipeline serves all jobs on a worker; per-job state lives entirely in
// the working area and the isolated context, so concurrent Execute calls are
// independent.
type Pipeline struct {
	loaders    *simulation.LoaderRegistry
	engine     simulation.EngineFactory
	membership cluster.Membership
	ambient    *resources.Resolver
	scratchDir string
	logger     *zap.Logger
}

// NewPipeline wires the pipeline's collaborators. The ambient resolver is
// the worker's baseline resource scope; each job's working area is layered
// in front of it for the duration of that job only.
func NewPipeline(
	loaders *simulation.LoaderRegistry,
	engine simulation.EngineFactory,
	membership cluster.Membership,
	ambient *resources.Resolver,
	scratchDir string,
	logger *zap.Logger,
) *Pipeline {
	if ambient == nil {
		ambient = resources.NewResolver()
	}
	return &Pipeline{
		loaders:    loaders,
		engine:     engine,
		membership: membership,
		ambient:    ambient,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// Execute runs one job to completion and returns its RemoteResult.
//
// Every pipeline-level fault comes back as ErrJobExecution and means no
// result exists for this job. A simulation that recorded a terminal error is
// not a fault: it yields a well-formed result whose Error field is set.
// The working area is released before Execute returns, on success and on
// every failure path, including interruption of ctx.
func (p *Pipeline) Execute(
	ctx context.Context,
	batch *models.BatchConfig,
	job models.JobConfig,
	submitter models.NodeID,
) (result *models.RemoteResult, err error) {
	ctx, span := otel.Tracer("crucible/executor").Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.String("job.config", job.String()),
			attribute.String("job.submitter", string(submitter)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	p.logger.Debug("executing simulation", zap.String("variables", job.String()))

	wa, err := workarea.New(p.scratchDir)
	if err != nil {
		return nil, fatal(err)
	}
	metrics.WorkAreasActive.Inc()
	defer func() {
		if relErr := wa.Release(); relErr != nil {
			p.logger.Error("failed to release working area",
				zap.String("root", wa.Root()), zap.Error(relErr))
		}
		metrics.WorkAreasActive.Dec()
	}()

	if err := wa.Materialize(batch.Dependencies); err != nil {
		return nil, fatal(err)
	}
	var depBytes int
	for _, content := range batch.Dependencies {
		depBytes += len(content)
	}
	metrics.DependencyBytes.Observe(float64(depBytes))

	loader, err := p.loaders.Resolve(batch.LoaderRef)
	if err != nil {
		return nil, fatal(err)
	}

	artifact := models.ArtifactName(submitter, job)

	// The build-and-run computation executes on its own goroutine with a
	// resolution scope private to this job: the working area's contents
	// shadow the ambient resources, and the layered resolver dies with
	// the task, so nothing leaks into the next job.
	task := Go(ctx, func(runCtx context.Context) (simulation.Simulation, error) {
		res := p.ambient.Layered(wa.Resources())

		env, extractors, err := loader.BuildEnvironment(res, job)
		if err != nil {
			return nil, err
		}

		sim := p.engine(env, batch.EndStep, batch.EndTime)

		// The observer creates the artifact on its first notification,
		// so a run that never exports leaves the file absent and the
		// assembler can tell silence from empty output. The deferred
		// close covers engine faults that skip Finished.
		obs := export.NewObserver(wa, artifact, extractors)
		defer obs.Close()
		sim.AttachObserver(obs)

		sim.Start()
		if err := sim.RunToCompletion(runCtx); err != nil {
			return nil, err
		}
		obs.Close()
		if err := obs.Err(); err != nil {
			return nil, err
		}
		return sim, nil
	})

	sim, err := task.Wait(ctx)
	if err != nil {
		return nil, fatal(err)
	}

	// Assembly happens outside the isolated context but still inside the
	// working-area scope: the artifact has to be read before release.
	return p.assemble(wa, sim, job, artifact)
}

// assemble packages the captured output, the worker's identity, the
// simulation's terminal error, and the originating config into the
// coordinator-facing result.
func (p *Pipeline) assemble(
	wa *workarea.WorkingArea,
	sim simulation.Simulation,
	job models.JobConfig,
	artifact string,
) (*models.RemoteResult, error) {
	simErr := sim.TerminalError()

	output, err := wa.ReadArtifact(artifact)
	if err != nil {
		if errors.Is(err, workarea.ErrArtifactNotFound) && simErr == nil {
			// A clean run that produced no artifact is a contract
			// violation between the output observer and the naming
			// convention. Surfacing it beats returning garbage.
			return nil, fatalf("output artifact %q missing after run without simulation error: %w", artifact, err)
		}
		return nil, fatal(err)
	}

	errText := ""
	if simErr != nil {
		errText = simErr.Error()
	}

	return &models.RemoteResult{
		Output: output,
		Worker: p.membership.LocalID(),
		Error:  errText,
		Config: job,
	}, nil
}
