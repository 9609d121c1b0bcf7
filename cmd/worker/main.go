package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "crucible/configs"
	"crucible/pkg/api"
	"crucible/pkg/cluster/etcd"
	"crucible/pkg/engine"
	"crucible/pkg/executor"
	"crucible/pkg/logger"
	tracing "crucible/pkg/observability"
	"crucible/pkg/simulation"
	"crucible/pkg/storage"
	"crucible/pkg/storage/blob"
	"crucible/pkg/storage/redis"
)

func main() {
	cfg := config.LoadConfig()

	zlog, err := logger.Init(logger.DefaultConfig("crucible-worker"))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zlog.Info("crucible worker starting up")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	tracer, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "crucible-worker",
		Endpoint:     cfg.TracingEndpoint,
		Enabled:      cfg.TracingEnabled,
		SamplingRate: 1.0,
	})
	if err != nil {
		zlog.Fatal("failed to initialize tracing", zap.Error(err))
	}

	membership, err := etcd.NewEtcdMembership(cfg.EtcdEndpoints)
	if err != nil {
		zlog.Fatal("failed to connect to etcd", zap.Error(err))
	}
	defer membership.Close()
	zlog.Info("etcd connected", zap.String("worker_id", string(membership.LocalID())))

	queue, err := redis.NewRedisQueue(cfg.RedisAddr())
	if err != nil {
		zlog.Fatal("failed to initialize redis queue", zap.Error(err))
	}
	defer queue.Close()
	zlog.Info("redis connected", zap.String("addr", cfg.RedisAddr()))

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		zlog.Fatal("failed to initialize blob store", zap.Error(err))
	}

	loaders := simulation.NewLoaderRegistry()
	if err := loaders.Register(engine.Ref, engine.SyntheticLoader{}); err != nil {
		zlog.Fatal("failed to register loader", zap.Error(err))
	}
	zlog.Info("loaders registered", zap.Strings("refs", loaders.Refs()))

	pipeline := executor.NewPipeline(loaders, engine.Factory, membership, nil, cfg.ScratchDir, zlog)
	worker := executor.NewWorker(cfg, membership, queue, queue, blobs, pipeline, zlog)

	server := api.NewServer(api.Config{
		Port:       cfg.APIPort,
		Worker:     worker,
		Membership: membership,
		Logger:     zlog,
	})
	go func() {
		if err := server.Start(); err != nil {
			zlog.Error("status server error", zap.Error(err))
		}
	}()
	zlog.Info("status server started", zap.String("port", cfg.APIPort))

	go func() {
		sig := <-sigChan
		zlog.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	worker.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("status server shutdown error", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("tracing shutdown error", zap.Error(err))
	}
	zlog.Info("shutdown complete")
}

// newBlobStore picks S3-compatible storage when credentials are configured
// and falls back to a filesystem store for single-host setups.
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.BlobAccessKey != "" || cfg.BlobEndpoint != "" {
		return blob.NewS3BlobStore(ctx, blob.S3BlobStoreConfig{
			Bucket:          cfg.BlobBucket,
			Prefix:          cfg.BlobPrefix,
			Region:          cfg.BlobRegion,
			Endpoint:        cfg.BlobEndpoint,
			AccessKeyID:     cfg.BlobAccessKey,
			SecretAccessKey: cfg.BlobSecretKey,
			LocalCacheDir:   filepath.Join(cfg.ScratchDir, "crucible-blob-cache"),
		})
	}
	return blob.NewLocalBlobStore(filepath.Join(cfg.ScratchDir, "crucible-blobs"))
}
