package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/farm-advisor/internal/app"
	"github.com/joseph-ayodele/farm-advisor/internal/async"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/ingest"
	"github.com/joseph-ayodele/farm-advisor/internal/server"
	"github.com/joseph-ayodele/farm-advisor/internal/soil"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stdout, cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Journal: true})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Watch folders feed soil scans through a bounded queue.
	var queue *async.ProcessorQueue
	if len(cfg.Watch.Dirs) > 0 {
		queue = async.NewProcessorQueue(a.Processor, logger,
			async.WithWorkers(cfg.Watch.Workers),
			async.WithQueueSize(cfg.Watch.QueueSize),
			async.WithProcessTimeout(cfg.Watch.ProcessTimeout),
			async.WithResultHandler(func(job async.Job, res soil.ScanResult, jobID uuid.UUID, err error) {
				if err != nil {
					return
				}
				logger.Info("watch.scan.done", "file", filepath.Base(job.Path), "job_id", jobID, "success", res.Success)
			}),
		)
		ing := ingest.NewService(queue, logger)
		go func() {
			err := ing.Run(ctx, ingest.WatchConfig{Roots: cfg.Watch.Dirs, Debounce: cfg.Watch.Debounce, Logger: logger}, cfg.Watch.InitialScan)
			if err != nil && !errors.Is(err, async.ErrQueueClosed) {
				logger.Error("watch folder stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 2)

	// gRPC server
	grpcServer, healthServer := server.NewGRPCServer(a.Processor, logger)
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		logger.Info("gRPC listening", "addr", cfg.Server.GRPCAddr)
		go func() { errCh <- grpcServer.Serve(lis) }()
	}

	// HTTP server
	e := server.NewHTTPServer(a.HTTPDeps())
	if cfg.Server.HTTPAddr != "" {
		logger.Info("HTTP listening", "addr", cfg.Server.HTTPAddr)
		go func() {
			if err := e.Start(cfg.Server.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	stopGRPC(grpcServer.GracefulStop, grpcServer.Stop, cfg.Server.ShutdownTimeout)
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
	logger.Info("stopped")
}

// stopGRPC waits for in-flight calls up to timeout, then forces the stop.
func stopGRPC(graceful, force func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		graceful()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		force()
	}
}
