package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/studio-booking-assistant/internal/api/router"
	"github.com/wolfman30/studio-booking-assistant/internal/app/bootstrap"
	"github.com/wolfman30/studio-booking-assistant/internal/chatproxy"
	appconfig "github.com/wolfman30/studio-booking-assistant/internal/config"
	"github.com/wolfman30/studio-booking-assistant/internal/demo"
	httpmiddleware "github.com/wolfman30/studio-booking-assistant/internal/http/middleware"
	"github.com/wolfman30/studio-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/studio-booking-assistant/internal/webchat"
	"github.com/wolfman30/studio-booking-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting studio booking assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	registry, err := bootstrap.BuildStudioRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to load studios", "error", err)
		os.Exit(1)
	}

	metricsHandler, assistantMetrics, proxyMetrics := setupMetrics()

	// Optional transcript archive
	redisClient := bootstrap.BuildRedisClient(context.Background(), cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("transcript archive enabled", "redis_addr", cfg.RedisAddr)
	}

	// Initialize handlers
	chatProxy := chatproxy.NewHandler(chatproxy.Config{
		WebhookURL:     cfg.WorkflowWebhookURL,
		DemoWebhookURL: cfg.DemoWebhookURL,
		Timeout:        cfg.WebhookTimeout,
		Registry:       registry,
		Logger:         logger,
		Metrics:        proxyMetrics,
	})
	webChat := webchat.NewHandler(webchat.Config{
		Registry:  registry,
		NewSender: bootstrap.SenderFactory(cfg, logger, assistantMetrics),
		Limits:    bootstrap.Limits(cfg),
		Archive:   bootstrap.BuildTranscriptArchive(redisClient),
		Metrics:   assistantMetrics,
		Logger:    logger,
	})

	var demoWorkflow *demo.Workflow
	if cfg.DemoWorkflow {
		demoWorkflow = demo.NewWorkflow()
		logger.Info("scripted demo workflow mounted", "path", "/demo/workflow")
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst)
	stopSweep := make(chan struct{})
	go limiter.Run(stopSweep)
	defer close(stopSweep)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		ChatProxy:          chatProxy,
		WebChat:            webChat,
		DemoWorkflow:       demoWorkflow,
		ChatRateLimiter:    limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Create HTTP server. WriteTimeout covers the webhook round trip.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WebhookTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the service collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.AssistantMetrics, *metrics.ProxyMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewAssistantMetrics(reg), metrics.NewProxyMetrics(reg)
}
