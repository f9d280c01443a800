package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loganventer/loganventerprofile-sub000/pkg/config"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
	"github.com/loganventer/loganventerprofile-sub000/pkg/middleware"
	"github.com/loganventer/loganventerprofile-sub000/pkg/monitoring"
)

// Config represents server configuration
type Config struct {
	Port            string
	ServiceName     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns default server configuration. WriteTimeout is zero
// because chat responses are long-lived event streams.
func DefaultConfig(serviceName, defaultPort string) Config {
	return Config{
		Port:            config.GetEnv("PORT", defaultPort),
		ServiceName:     serviceName,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 20 * time.Second,
	}
}

// SetupServiceRouter creates a Gin router with the common middleware chain,
// a /health endpoint backed by hc and a Prometheus /metrics endpoint.
func SetupServiceRouter(logger logging.Logger, serviceName string, hc *monitoring.HealthChecker, mc *monitoring.MetricsCollector) *gin.Engine {
	if config.GetEnv("GIN_MODE", "debug") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	middleware.SetupCommonMiddleware(router, logger)
	if mc != nil {
		router.Use(mc.MetricsMiddleware())
		router.GET("/metrics", mc.Handler())
	}

	if hc != nil {
		router.GET("/health", hc.Handler())
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": monitoring.StatusHealthy, "service": serviceName})
		})
	}

	return router
}

// Start serves router until SIGINT/SIGTERM, then shuts down gracefully.
func Start(cfg Config, router http.Handler, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, cfg, router, logger)
}

// Run serves router until ctx is cancelled.
func Run(ctx context.Context, cfg Config, router http.Handler, logger logging.Logger) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logging.Fields{
			"port":    cfg.Port,
			"service": cfg.ServiceName,
		}).Info("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.WithField("service", cfg.ServiceName).Info("Shutting down server...")

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.WithField("service", cfg.ServiceName).Info("Server stopped")
	return nil
}
