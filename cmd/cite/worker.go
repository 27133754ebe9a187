package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/job"
	"github.com/matsen/citegraph/internal/queue"
)

var (
	workerMetricsAddr string
	workerMaxAttempts int
)

func init() {
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "Serve Prometheus /metrics on this address (empty to disable)")
	workerCmd.Flags().IntVar(&workerMaxAttempts, "max-attempts", queue.DefaultMaxAttempts, "Requeues allowed while a collection is locked by another run")
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued graph builds",
	Long: `Take graph runs queued with 'cite graph build --async' off Redis and
execute them one at a time. Runs on the same collection never overlap; a
run that exceeds job_timeout is cancelled and rolled back.

Progress is written to the run's status hash and published on
citegraph:progress:<run-id>.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		exitWithError(ExitUnavailable, "%v", err)
	}
	defer rdb.Close()

	db := mustOpenDatabase()
	defer db.Close()

	embedder := mustNewEmbedder()
	warnIfEmbedderDown(ctx, embedder)

	runner := job.NewRunner(db, newRegistry(), embedder,
		job.WithMaxDepth(cfg.MaxGraphDepth),
		job.WithLogger(logger),
		job.WithSink(job.MultiSink{job.NewLogSink(logger), job.NewRedisSink(rdb)}))

	worker := queue.NewWorker(queue.New(rdb), runner,
		queue.WithJobTimeout(cfg.JobTimeout),
		queue.WithMaxAttempts(workerMaxAttempts),
		queue.WithWorkerLogger(logger))

	if workerMetricsAddr != "" {
		srv := serveMetrics(ctx, workerMetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	return worker.Run(ctx)
}

// serveMetrics exposes the default Prometheus registry in the background.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.InfoContext(ctx, "serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "metrics server", "error", err)
		}
	}()
	return srv
}
