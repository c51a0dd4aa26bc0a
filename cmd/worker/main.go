package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bisq-network/support-agent/internal/bootstrap"
	"github.com/bisq-network/support-agent/internal/config"
	"github.com/bisq-network/support-agent/internal/observability/logging"
	"github.com/bisq-network/support-agent/internal/observability/metrics"
)

const serviceName = "support-worker"

func main() {
	rebuild := flag.Bool("rebuild-vocabulary", false, "rebuild the sparse vocabulary from all ready entries and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if *rebuild {
		count, err := app.ProcessUC.RebuildVocabulary(ctx)
		if err != nil {
			logger.Error("vocabulary_rebuild_failed", "error", err)
			os.Exit(1)
		}
		logger.Info("vocabulary_rebuilt",
			"documents", count,
			"terms", app.Index.Vocabulary().Size(),
		)
		return
	}

	if !app.VocabularyRestored {
		count, err := app.ProcessUC.RebuildVocabulary(ctx)
		if err != nil {
			logger.Error("vocabulary_cold_start_failed", "error", err)
			os.Exit(1)
		}
		logger.Info("vocabulary_cold_start",
			"documents", count,
			"terms", app.Index.Vocabulary().Size(),
		)
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	workerMetrics.SetVocabularySize(app.Index.Vocabulary().Size())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeEntryIngested(ctx, func(handlerCtx context.Context, entryID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if entry, err := app.Repo.GetByID(processCtx, entryID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(entry.CreatedAt))
		}

		workerMetrics.StartEntry()
		start := time.Now()
		termsBefore := app.Index.Vocabulary().Size()
		processErr := app.ProcessUC.ProcessByID(processCtx, entryID)
		workerMetrics.FinishEntry(serviceName, time.Since(start), processErr)

		termsAfter := app.Index.Vocabulary().Size()
		workerMetrics.SetVocabularySize(termsAfter)
		workerMetrics.AddNewTerms(serviceName, termsAfter-termsBefore)
		return processErr
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
