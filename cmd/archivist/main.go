package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jmunro/archivist/pkg/api"
	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/config"
	"github.com/jmunro/archivist/pkg/index"
	"github.com/jmunro/archivist/pkg/ingest"
	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/queue"
	"github.com/jmunro/archivist/pkg/search"
)

// dedupCacheSize bounds the in-process LRU fronting the index dedup check.
const dedupCacheSize = 8192

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tp, err := observability.InitTracing(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	store, err := blob.NewS3Store(ctx, cfg.Blob)
	if err != nil {
		log.Fatalf("Failed to connect to blob store: %v", err)
	}
	logger.Infof("blob store connected, bucket %s", cfg.Blob.Bucket)

	idx, err := index.Open(cfg.Index.Driver, cfg.Index.DSN)
	if err != nil {
		log.Fatalf("Failed to open metadata index: %v", err)
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure index schema: %v", err)
	}
	logger.Infof("metadata index ready, driver %s", cfg.Index.Driver)

	q, err := queue.Connect(ctx, cfg.Queue.URL, cfg.Queue.Name)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	logger.Infof("queue connected, list %s", cfg.Queue.Name)

	var searcher search.Searcher
	if cfg.Search.BaseURL != "" {
		searcher = search.NewClient(cfg.Search.BaseURL, cfg.Search.Timeout)
	} else {
		logger.Warn("no similarity-search URL configured, search routes will fail")
	}

	svc, err := ingest.NewService(store, idx, q, dedupCacheSize, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to build ingestion service: %v", err)
	}

	server := api.NewServer(svc, store, searcher, cfg.Auth.Token, logger, metrics)
	handler := otelhttp.NewHandler(server.Router(), "archivist-api")

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own listener so probes and scrapes
	// never compete with API traffic.
	health := observability.NewHealthChecker(idx.DB(), q.Client(), store)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.Infof("health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error { return healthServer.Shutdown(ctx) })
	shutdown.Register(func(ctx context.Context) error { return idx.Close() })
	shutdown.Register(func(ctx context.Context) error { return q.Client().Close() })
	if tp != nil {
		shutdown.Register(func(ctx context.Context) error { return tp.Shutdown(ctx) })
	}

	go func() {
		logger.Infof("archive API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if err := shutdown.Wait(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}
