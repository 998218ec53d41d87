// Command catalogbridged runs the merge control surface: an HTTP API that
// accepts merge requests, runs them against the paired device's tunnel (or
// a local directory during development), and reports progress over
// websockets.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"catalogbridge/internal/catalog/orchestrator"
	"catalogbridge/internal/config"
	"catalogbridge/internal/device"
	"catalogbridge/internal/device/localfs"
	"catalogbridge/internal/device/tunnelhttp"
	"catalogbridge/internal/httpapi"
	"catalogbridge/internal/lock"
	"catalogbridge/internal/logging"
	"catalogbridge/internal/progress"
	"catalogbridge/internal/recovery"
	"catalogbridge/pkg/semaphore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer logger.Sync()

	adapter, err := buildDeviceAdapter(cfg.Device)
	if err != nil {
		logger.Fatal("failed to build device adapter", zap.Error(err))
	}

	locks := lock.New(cfg.Lock)
	hubs := progress.NewRegistry()
	orch := orchestrator.New(adapter, locks, hubs, logger)
	sem := semaphore.New(cfg.Merge.MaxConcurrent)

	health := recovery.NewHealthChecker(30*time.Second, 5*time.Second, logger)
	health.AddCheck(recovery.HealthCheck{
		Name:     "merge-lock",
		Critical: true,
		Check: func(ctx context.Context) error {
			_, err := locks.Held(ctx, "healthz-probe")
			return err
		},
	})

	merges := httpapi.NewMergeHandler(orch, sem, logger)
	progressHandler := httpapi.NewProgressHandler(hubs, merges, logger)
	healthHandler := httpapi.NewHealthHandler(health)
	router := httpapi.NewRouter(logger, merges, progressHandler, healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		logger.Info("starting catalogbridge control surface", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down control surface")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shut down", zap.Error(err))
	}
	logger.Info("control surface exited")
}

// buildDeviceAdapter picks the tunnel adapter when a paired device endpoint
// is configured, falling back to a local directory for development and for
// operators running catalogbridged against a mounted device filesystem.
func buildDeviceAdapter(cfg config.DeviceConfig) (device.Adapter, error) {
	if cfg.TunnelBaseURL != "" {
		return tunnelhttp.New(tunnelhttp.Config{
			BaseURL:              cfg.TunnelBaseURL,
			UploadBytesPerSecond: cfg.UploadBytesPerSecond,
			BreakerName:          "device-tunnel",
		}), nil
	}
	return localfs.New(cfg.LocalBasePath)
}
