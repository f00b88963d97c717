// codegraph walks a source tree, extracts points of interest and
// relationships via an LLM, reconciles the evidence, and writes the
// result to a graph database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/codegraph-dev/codegraph/pkg/config"
	"github.com/codegraph-dev/codegraph/pkg/database"
	"github.com/codegraph-dev/codegraph/pkg/graphstore"
	"github.com/codegraph-dev/codegraph/pkg/llm"
	"github.com/codegraph-dev/codegraph/pkg/metrics"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/pipeline"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/queue/amqpqueue"
	"github.com/codegraph-dev/codegraph/pkg/queue/pgqueue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", getEnv("CODEGRAPH_CONFIG", "./deploy/config/codegraph.yaml"), "Path to run options YAML")
	rootPath := flag.String("root", getEnv("CODEGRAPH_ROOT", "."), "Root path of the source tree to analyze")
	runID := flag.String("run-id", getEnv("CODEGRAPH_RUN_ID", ""), "Run identifier; generated if omitted")
	metricsAddr := flag.String("metrics-addr", getEnv("CODEGRAPH_METRICS_ADDR", ":9090"), "Address to serve Prometheus metrics on")
	envPath := flag.String("env-file", getEnv("CODEGRAPH_ENV_FILE", ".env"), "Optional .env file to load before reading configuration")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("could not load env file, continuing with existing environment", "path", *envPath, "error", err)
	}

	if *runID == "" {
		*runID = uuid.NewString()
	}

	opts, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load run options", "path", *configPath, "error", err)
		return int(models.ExitConfigError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)

	go func() {
		slog.Info("serving metrics", "addr", *metricsAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && ctx.Err() == nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("failed to load database config", "error", err)
		return int(models.ExitConfigError)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return int(models.ExitUnrecoverableStore)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()

	workerID := fmt.Sprintf("codegraph-%d", os.Getpid())
	if recovered, err := pgqueue.CleanupStartupOrphans(ctx, dbClient.Client, "codegraph-"); err != nil {
		slog.Error("startup orphan cleanup failed", "error", err)
	} else if recovered > 0 {
		slog.Warn("reclaimed orphaned jobs from a previous process", "count", recovered)
	}

	var q queue.Queue
	switch opts.Queue.Driver {
	case "amqp":
		aq, err := amqpqueue.New(opts.Queue.URL, dbClient.Client, workerID)
		if err != nil {
			slog.Error("failed to connect to amqp broker", "error", err)
			return int(models.ExitUnrecoverableStore)
		}
		q = aq
	default:
		q = pgqueue.New(dbClient.Client, workerID)
	}
	defer func() { _ = q.Close() }()

	graphStore, err := graphstore.New(ctx, opts.GraphStore)
	if err != nil {
		slog.Error("failed to connect to graph store", "error", err)
		return int(models.ExitUnrecoverableStore)
	}
	defer func() { _ = graphStore.Close(ctx) }()

	store := relstore.New(dbClient.Client)
	llmClient := llm.NewHTTPClient(opts.LLM, opts.MaxLLMConcurrency)

	absRoot, err := filepath.Abs(*rootPath)
	if err != nil {
		slog.Error("invalid root path", "path", *rootPath, "error", err)
		return int(models.ExitConfigError)
	}

	p := pipeline.New(pipeline.Deps{Store: store, Queue: q, LLM: llmClient, Graph: graphStore})

	startedAt := time.Now()
	result, err := p.Run(ctx, *runID, absRoot, *opts)
	slog.Info("run finished", "run_id", *runID, "duration", time.Since(startedAt))

	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("run canceled", "run_id", *runID)
			return int(models.ExitCanceled)
		}
		slog.Error("run failed", "run_id", *runID, "error", err)
		return int(models.ExitUnrecoverableStore)
	}

	slog.Info("run report",
		"status", result.Status,
		"node_count", result.NodeCount,
		"edge_count", result.EdgeCount,
		"failed_file_count", result.FailedFileCount,
		"dlq_entries", len(result.DLQEntries),
	)
	if result.FailedFileCount > 0 {
		return int(models.ExitPartialFailure)
	}
	return int(models.ExitSuccess)
}

func installSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received, canceling run")
		cancel()
	}()
}
