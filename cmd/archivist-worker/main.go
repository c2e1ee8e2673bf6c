package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/config"
	"github.com/jmunro/archivist/pkg/consumer"
	"github.com/jmunro/archivist/pkg/envelope"
	"github.com/jmunro/archivist/pkg/index"
	"github.com/jmunro/archivist/pkg/ingest"
	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/queue"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	store, err := blob.NewS3Store(ctx, cfg.Blob)
	if err != nil {
		log.Fatalf("Failed to connect to blob store: %v", err)
	}

	idx, err := index.Open(cfg.Index.Driver, cfg.Index.DSN)
	if err != nil {
		log.Fatalf("Failed to open metadata index: %v", err)
	}
	defer idx.Close()
	if err := idx.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure index schema: %v", err)
	}

	q, err := queue.Connect(ctx, cfg.Queue.URL, cfg.Queue.Name)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Client().Close()

	processor := consumer.NewProcessor(store, idx, logger, metrics)

	logrus.WithFields(logrus.Fields{
		"workers": cfg.Queue.Workers,
		"queue":   cfg.Queue.Name,
	}).Info("starting consumer loops")

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Queue.Workers; i++ {
		worker := i
		group.Go(func() error {
			runner := consumer.NewRunner(q, processor, logger.WithField("worker", worker), metrics)
			return runner.Run(groupCtx)
		})
	}

	// Scheduled full reindex keeps the hot tier converged with cold
	// storage even if individual messages were lost to the dead letter.
	var scheduler *cron.Cron
	if cfg.Queue.ReindexCron != "" {
		svc, err := ingest.NewService(store, idx, q, 0, logger, metrics)
		if err != nil {
			log.Fatalf("Failed to build reindex service: %v", err)
		}

		scheduler = cron.New()
		_, err = scheduler.AddFunc(cfg.Queue.ReindexCron, func() {
			for _, category := range envelope.Names() {
				count, err := svc.Reindex(context.Background(), category)
				if err != nil {
					logrus.WithError(err).WithField("category", category).Error("scheduled reindex failed")
					continue
				}
				logrus.WithFields(logrus.Fields{
					"category": category,
					"count":    count,
				}).Info("scheduled reindex queued")
			}
		})
		if err != nil {
			log.Fatalf("Invalid reindex schedule %q: %v", cfg.Queue.ReindexCron, err)
		}
		scheduler.Start()
		logrus.WithField("schedule", cfg.Queue.ReindexCron).Info("reindex scheduler started")
	}

	// Liveness and metrics for the worker process.
	healthMux := http.NewServeMux()
	health := observability.NewHealthChecker(idx.DB(), q.Client(), store)
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("health server failed")
		}
	}()

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Error("consumer loops stopped with error")
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx := context.Background()
	healthServer.Shutdown(shutdownCtx)
	if tp != nil {
		tp.Shutdown(shutdownCtx)
	}

	logrus.Info("worker drained, exiting")
}
