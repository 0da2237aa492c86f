package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/prosearch-ai/prosearch/internal/activities"
	"github.com/prosearch-ai/prosearch/internal/config"
	"github.com/prosearch-ai/prosearch/internal/httpapi"
	"github.com/prosearch-ai/prosearch/internal/llm"
	"github.com/prosearch-ai/prosearch/internal/search"
	"github.com/prosearch-ai/prosearch/internal/temporal"
	"github.com/prosearch-ai/prosearch/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	clients, err := llm.NewAvailableClients(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build provider clients", zap.Error(err))
	}

	policy, err := search.LoadPolicy(cfg.Search.PolicyFile)
	if err != nil {
		logger.Fatal("Failed to load fetch policy", zap.Error(err))
	}

	var pageCache *redis.Client
	if cfg.Redis.Addr != "" {
		pageCache = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := pageCache.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, page cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			pageCache = nil
		}
	}

	searcher := search.NewDuckDuckGo(&http.Client{Timeout: cfg.Search.FetchTimeout}, policy, logger)
	fetcher := search.NewFetcher(cfg.Search.FetchTimeout, cfg.Search.MaxContentLength, pageCache, cfg.Redis.CacheTTL, logger)
	acts := activities.NewActivities(clients, cfg, searcher, fetcher, logger)

	// Metrics endpoint comes up first so scrapes work while Temporal is
	// still connecting.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	tClient := dialTemporal(cfg, logger)
	defer tClient.Close()

	w := worker.New(tClient, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 10,
	})
	w.RegisterWorkflow(workflows.ResearchWorkflow)
	w.RegisterActivity(acts)

	go func() {
		logger.Info("Temporal worker started", zap.String("queue", cfg.Temporal.TaskQueue))
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Error("Temporal worker exited with error", zap.Error(err))
		}
	}()

	api := httpapi.NewServer(tClient, cfg, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Minute, // runs are answered synchronously
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Run API listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Run API server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Run API shutdown failed", zap.Error(err))
	}
	w.Stop()
}

// dialTemporal waits for the Temporal frontend and dials it with retry, so
// the process survives starting before its backend in compose setups.
func dialTemporal(cfg *config.Config, logger *zap.Logger) client.Client {
	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", cfg.Temporal.HostPort, 2*time.Second)
		if err == nil {
			_ = c.Close()
			break
		}
		logger.Warn("Waiting for Temporal TCP endpoint", zap.String("host", cfg.Temporal.HostPort), zap.Int("attempt", i))
		time.Sleep(time.Second)
	}

	for attempt := 1; ; attempt++ {
		tClient, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewZapAdapter(logger),
		})
		if err == nil {
			return tClient
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		time.Sleep(delay)
	}
}
