package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	config "crucible/configs"
	"crucible/pkg/cluster/etcd"
	"crucible/pkg/dispatch"
	"crucible/pkg/engine"
	"crucible/pkg/logger"
	"crucible/pkg/storage"
	"crucible/pkg/storage/blob"
	"crucible/pkg/storage/postgres"
	"crucible/pkg/storage/redis"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		loaderRef = flag.String("loader", engine.Ref, "loader reference the workers resolve")
		endStep   = flag.Int64("end-step", 0, "terminate each simulation after this many steps (0 = unbounded)")
		endTime   = flag.Float64("end-time", 0, "terminate each simulation at this simulated time (0 = unbounded)")
		collect   = flag.Bool("collect-only", false, "skip submission and only collect results")
		vars      stringList
		deps      stringList
	)
	flag.Var(&vars, "var", "variable domain as name=v1,v2,... (repeatable)")
	flag.Var(&deps, "dep", "dependency file to stage for every job (repeatable)")
	flag.Parse()

	cfg := config.LoadConfig()

	zlog, err := logger.Init(logger.DefaultConfig("crucible-dispatcher"))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zlog.Info("crucible dispatcher starting up")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		zlog.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	membership, err := etcd.NewEtcdMembership(cfg.EtcdEndpoints)
	if err != nil {
		zlog.Fatal("failed to connect to etcd", zap.Error(err))
	}
	defer membership.Close()

	queue, err := redis.NewRedisQueue(cfg.RedisAddr())
	if err != nil {
		zlog.Fatal("failed to initialize redis queue", zap.Error(err))
	}
	defer queue.Close()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		zlog.Fatal("failed to initialize blob store", zap.Error(err))
	}

	store, err := postgres.NewPostgresStore(cfg.PostgresDSN())
	if err != nil {
		zlog.Fatal("failed to initialize result store", zap.Error(err))
	}
	defer store.Close()

	d := dispatch.NewDispatcher(queue, queue, blobs, store, membership, zlog)

	if !*collect {
		batch, err := buildBatch(*loaderRef, *endStep, *endTime, vars, deps)
		if err != nil {
			zlog.Fatal("invalid batch", zap.Error(err))
		}
		batchID, jobs, err := d.SubmitBatch(ctx, batch)
		if err != nil {
			zlog.Fatal("failed to submit batch", zap.Error(err))
		}
		zlog.Info("batch submitted",
			zap.String("batch_id", batchID.String()),
			zap.Int("jobs", jobs))
	}

	d.Run(ctx)
}

func buildBatch(loaderRef string, endStep int64, endTime float64, vars, deps stringList) (*dispatch.Batch, error) {
	variables := make(map[string][]any, len(vars))
	for _, spec := range vars {
		name, domain, ok := strings.Cut(spec, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed -var %q, want name=v1,v2,...", spec)
		}
		var values []any
		for _, raw := range strings.Split(domain, ",") {
			values = append(values, parseValue(raw))
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("variable %q has an empty domain", name)
		}
		variables[name] = values
	}

	dependencies := make(map[string][]byte, len(deps))
	for _, path := range deps {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read dependency %q: %w", path, err)
		}
		dependencies[filepath.Base(path)] = content
	}

	return &dispatch.Batch{
		Dependencies: dependencies,
		LoaderRef:    loaderRef,
		EndStep:      endStep,
		EndTime:      endTime,
		Variables:    variables,
	}, nil
}

// parseValue keeps numeric domain values numeric so binding keys render the
// same on the dispatcher and the worker.
func parseValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.BlobAccessKey != "" || cfg.BlobEndpoint != "" {
		return blob.NewS3BlobStore(ctx, blob.S3BlobStoreConfig{
			Bucket:          cfg.BlobBucket,
			Prefix:          cfg.BlobPrefix,
			Region:          cfg.BlobRegion,
			Endpoint:        cfg.BlobEndpoint,
			AccessKeyID:     cfg.BlobAccessKey,
			SecretAccessKey: cfg.BlobSecretKey,
		})
	}
	return blob.NewLocalBlobStore(filepath.Join(cfg.ScratchDir, "crucible-blobs"))
}
