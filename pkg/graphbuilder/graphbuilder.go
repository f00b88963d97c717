// Package graphbuilder is GraphBuilder (spec.md C11): the finalization
// stage that streams a run's accepted POIs and validated relationships
// into GraphStore. It runs once per run, triggered by the finalization
// job EntityScout enqueues with a dependency on every file-analysis job.
package graphbuilder

import (
	"context"
	"fmt"

	"github.com/codegraph-dev/codegraph/pkg/graphstore"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// Builder is the graph-build queue consumer.
type Builder struct {
	store relstore.Store
	graph graphstore.GraphStore
}

// New builds a Builder over the given RelStore and GraphStore.
func New(store relstore.Store, graph graphstore.GraphStore) *Builder {
	return &Builder{store: store, graph: graph}
}

// Handle is the queue.Handler for the graph-build queue. Both passes are
// idempotent MERGE-based batches (spec.md §4.10 step 3), so a retried or
// duplicated finalization job produces the same graph.
func (b *Builder) Handle(ctx context.Context, job queue.Job) queue.Result {
	runID, _ := job.Payload["run_id"].(string)
	if runID == "" {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("graphbuilder: missing run_id")}
	}
	if _, _, err := b.Build(ctx, runID); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: err}
	}
	return queue.Result{Outcome: queue.Ack}
}

// Build streams every POI and validated relationship for runID into
// GraphStore and reports how many nodes and edges were written. It is
// exported so the run orchestrator can build the graph synchronously
// (to report accurate counts in RunResult) in addition to the async
// finalization job triggered through the queue.
func (b *Builder) Build(ctx context.Context, runID string) (nodeCount, edgeCount int, err error) {
	pois, err := b.store.ListPOIs(ctx, runID)
	if err != nil {
		return 0, 0, fmt.Errorf("graphbuilder: list pois: %w", err)
	}
	nodeCount, err = b.graph.UpsertPOINodes(ctx, pois)
	if err != nil {
		return 0, 0, fmt.Errorf("graphbuilder: upsert nodes: %w", err)
	}

	rels, err := b.store.ListValidatedRelationships(ctx, runID)
	if err != nil {
		return nodeCount, 0, fmt.Errorf("graphbuilder: list relationships: %w", err)
	}
	edgeCount, err = b.graph.UpsertRelationshipEdges(ctx, rels)
	if err != nil {
		return nodeCount, 0, fmt.Errorf("graphbuilder: upsert edges: %w", err)
	}
	return nodeCount, edgeCount, nil
}
