// Package pipeline is the Run orchestrator (spec.md §6 "Entry point:
// Pipeline.Run(runID, rootPath, opts) -> RunResult"). It wires together
// every component the rest of this module builds — RelStore, Queue,
// LLMClient, GraphStore, EntityScout, the five worker stages,
// OutboxPublisher and GraphBuilder — and drives one run end to end.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/directory"
	"github.com/codegraph-dev/codegraph/pkg/fileanalysis"
	"github.com/codegraph-dev/codegraph/pkg/graphbuilder"
	"github.com/codegraph-dev/codegraph/pkg/graphstore"
	"github.com/codegraph-dev/codegraph/pkg/llm"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/outbox"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/reconciler"
	"github.com/codegraph-dev/codegraph/pkg/relationship"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
	"github.com/codegraph-dev/codegraph/pkg/scout"
	"github.com/codegraph-dev/codegraph/pkg/validator"
)

// orphanStaleThreshold is how long a claimed job can go without a
// heartbeat before StartOrphanDetection reclaims it. Generously above the
// longest single-job timeout (the 60s LLM call) to avoid reclaiming live
// work.
const orphanStaleThreshold = 3 * time.Minute

const orphanScanInterval = 30 * time.Second

// workerConcurrency is how many goroutines each worker queue runs. The
// relationship-analysis-poi queue gets more since it is the fan-out
// bottleneck spec.md §4.4 calls "the central scalability mechanism".
const (
	fileWorkerConcurrency         = 8
	relationshipWorkerConcurrency = 16
	directoryWorkerConcurrency    = 4
	validationWorkerConcurrency   = 8
	reconcileWorkerConcurrency    = 4
	graphWorkerConcurrency        = 2
)

// settleGrace is added to RunOptions.QuietWindow before Pipeline performs
// its own synchronous graph build, giving in-flight validation and
// reconciliation jobs a margin past the quiescence window to land.
const settleGrace = 5 * time.Second

// pollInterval is how often Pipeline checks whether every enqueued file
// has finished analysis (completed or failed).
const pollInterval = 500 * time.Millisecond

// orphanRecoverer is implemented by both pgqueue.Queue and amqpqueue.Queue
// (the latter via method promotion), letting Pipeline start background
// orphan recovery without depending on either concrete type.
type orphanRecoverer interface {
	StartOrphanDetection(ctx context.Context, staleThreshold, interval time.Duration) (stop func())
}

// Deps bundles every external dependency Pipeline.Run needs, all of which
// are interfaces so tests can substitute fakes without a live Postgres or
// Neo4j instance.
type Deps struct {
	Store relstore.Store
	Queue queue.Queue
	LLM   llm.Client
	Graph graphstore.GraphStore
}

// Pipeline runs the full analysis pipeline for one call to Run.
type Pipeline struct {
	deps Deps
}

// New builds a Pipeline over the given dependencies.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run executes one full pass over rootPath and returns when the run
// reaches a terminal state (spec.md §6's entry point).
func (p *Pipeline) Run(ctx context.Context, runID, rootPath string, opts models.RunOptions) (models.RunResult, error) {
	log := slog.With("run_id", runID)
	startedAt := time.Now()

	result := models.RunResult{RunID: runID, Status: models.RunPhaseScouting, StartedAt: startedAt}

	if err := p.deps.Store.Ping(ctx); err != nil {
		return p.fail(result, fmt.Errorf("pipeline: relstore unreachable: %w", err))
	}
	if err := p.deps.Graph.Ping(ctx); err != nil {
		return p.fail(result, fmt.Errorf("pipeline: graphstore unreachable: %w", err))
	}

	if err := p.deps.Store.UpsertRun(ctx, models.Run{
		ID: runID, RootPath: rootPath, Phase: models.RunPhaseScouting, StartedAt: startedAt, UpdatedAt: startedAt,
	}); err != nil {
		return p.fail(result, fmt.Errorf("pipeline: record run: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if orphaner, ok := p.deps.Queue.(orphanRecoverer); ok {
		stop := orphaner.StartOrphanDetection(runCtx, orphanStaleThreshold, orphanScanInterval)
		defer stop()
	}

	pub := outbox.New(p.deps.Store, p.deps.Queue)
	go func() {
		if err := pub.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Error("outbox publisher stopped unexpectedly", "error", err)
		}
	}()

	fileWorker := fileanalysis.New(p.deps.Store, p.deps.LLM)
	relWorker := relationship.New(p.deps.Store, p.deps.LLM)
	dirWorker := directory.New(p.deps.Store, p.deps.LLM)
	val := validator.New(p.deps.Store, p.deps.Queue, opts.QuietWindow)
	rec := reconciler.New(p.deps.Store, opts.AcceptThreshold)
	builder := graphbuilder.New(p.deps.Store, p.deps.Graph)

	consumers := []struct {
		queue       string
		concurrency int
		handler     queue.Handler
	}{
		{queue.FileAnalysis, fileWorkerConcurrency, fileWorker.Handle},
		{queue.RelationshipAnalysis, relationshipWorkerConcurrency, relWorker.Handle},
		{queue.DirectoryResolution, directoryWorkerConcurrency, dirWorker.Handle},
		{queue.Validation, validationWorkerConcurrency, val.Handle},
		{queue.Reconciliation, reconcileWorkerConcurrency, rec.Handle},
		{queue.GraphBuild, graphWorkerConcurrency, builder.Handle},
	}
	for _, c := range consumers {
		if err := p.deps.Queue.Consume(runCtx, c.queue, c.concurrency, c.handler); err != nil {
			return p.fail(result, fmt.Errorf("pipeline: start consumer for %s: %w", c.queue, err))
		}
	}

	sc := scout.New(p.deps.Store, p.deps.Queue)
	walk, err := sc.Run(runCtx, runID, rootPath, opts)
	if err != nil {
		return p.fail(result, fmt.Errorf("pipeline: scout: %w", err))
	}
	log.Info("scout complete", "total_files", walk.TotalFiles, "finalization_job", walk.FinalizationJobID)

	if err := p.waitForFileAnalysis(runCtx, runID, walk.TotalFiles); err != nil {
		if ctx.Err() != nil {
			return p.canceled(result)
		}
		return p.fail(result, fmt.Errorf("pipeline: wait for file analysis: %w", err))
	}

	select {
	case <-time.After(opts.QuietWindow + settleGrace):
	case <-ctx.Done():
		return p.canceled(result)
	}

	nodeCount, edgeCount, err := builder.Build(ctx, runID)
	if err != nil {
		return p.fail(result, fmt.Errorf("pipeline: final graph build: %w", err))
	}

	failed, err := p.deps.Store.ListFilesWithStatus(ctx, runID, models.FileStatusFailed)
	if err != nil {
		return p.fail(result, fmt.Errorf("pipeline: list failed files: %w", err))
	}

	dlq := collectDLQ(ctx, p.deps.Queue, []string{
		queue.FileAnalysis, queue.RelationshipAnalysis, queue.DirectoryResolution,
		queue.Validation, queue.Reconciliation, queue.GraphBuild,
	})

	finishedAt := time.Now()
	result.Status = models.RunPhaseCompleted
	result.FailedFileCount = len(failed)
	result.DLQEntries = dlq
	result.NodeCount = nodeCount
	result.EdgeCount = edgeCount
	result.FinishedAt = finishedAt

	if err := p.deps.Store.UpsertRun(ctx, models.Run{
		ID: runID, RootPath: rootPath, Phase: models.RunPhaseCompleted,
		StartedAt: startedAt, UpdatedAt: finishedAt, CompletedAt: &finishedAt,
	}); err != nil {
		log.Error("pipeline: record completion failed", "error", err)
	}

	log.Info("run complete", "status", result.Status, "failed_files", result.FailedFileCount,
		"nodes", result.NodeCount, "edges", result.EdgeCount)
	return result, nil
}

// waitForFileAnalysis blocks until every file EntityScout enqueued has
// reached a terminal status (completed or failed), satisfying spec.md
// §8's "no-lost-work" property before the graph is built.
func (p *Pipeline) waitForFileAnalysis(ctx context.Context, runID string, totalFiles int) error {
	if totalFiles == 0 {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			completed, err := p.deps.Store.ListFilesWithStatus(ctx, runID, models.FileStatusCompleted)
			if err != nil {
				return err
			}
			failed, err := p.deps.Store.ListFilesWithStatus(ctx, runID, models.FileStatusFailed)
			if err != nil {
				return err
			}
			if len(completed)+len(failed) >= totalFiles {
				return nil
			}
		}
	}
}

func collectDLQ(ctx context.Context, q queue.Queue, queues []string) []models.DLQEntry {
	var entries []models.DLQEntry
	for _, name := range queues {
		jobs, err := q.DeadLetter(ctx, name, 500)
		if err != nil {
			slog.Error("pipeline: dead letter query failed", "queue", name, "error", err)
			continue
		}
		for _, j := range jobs {
			entries = append(entries, models.DLQEntry{
				Queue: name, JobID: j.ID, Attempts: j.Attempts, Reason: j.LastError,
			})
		}
	}
	return entries
}

func (p *Pipeline) fail(result models.RunResult, err error) (models.RunResult, error) {
	result.Status = models.RunPhaseFailed
	result.FinishedAt = time.Now()
	return result, err
}

func (p *Pipeline) canceled(result models.RunResult) (models.RunResult, error) {
	result.Status = models.RunPhaseFailed
	result.FinishedAt = time.Now()
	return result, context.Canceled
}
