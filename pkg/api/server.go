package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crucible/pkg/cluster"
	"crucible/pkg/executor"
)

// Server is the worker's status API: health, cluster view, running-job
// counts, and the Prometheus scrape endpoint. It is cluster-internal; job
// submission never goes through HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	worker     *executor.Worker
	membership cluster.Membership
	logger     *zap.Logger
}

// Config holds API server configuration.
type Config struct {
	Port       string
	Worker     *executor.Worker
	Membership cluster.Membership
	Logger     *zap.Logger
}

// NewServer creates the status server.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:     router,
		worker:     cfg.Worker,
		membership: cfg.Membership,
		logger:     cfg.Logger,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("status API listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/status", s.status)
	s.router.GET("/cluster/nodes", s.clusterNodes)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"worker_id":    s.worker.ID,
		"cpus":         s.worker.TotalCPU,
		"mem_mb":       s.worker.TotalMem,
		"jobs_running": s.worker.RunningJobs(),
	})
}

func (s *Server) clusterNodes(c *gin.Context) {
	nodes, err := s.membership.ActiveNodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "count": len(nodes)})
}
