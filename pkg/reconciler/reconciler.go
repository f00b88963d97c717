// Package reconciler is the Reconciler half of spec.md C10. It consumes
// reconciliation-queue jobs, each naming one relationship_hash whose
// quiescence window (spec.md §4.9) has elapsed, and turns that hash's
// accumulated evidence into a single validated or rejected Relationship
// row.
package reconciler

import (
	"context"
	"fmt"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// Reconciler is the reconciliation-queue consumer.
type Reconciler struct {
	store           relstore.Store
	acceptThreshold float64
}

// New builds a Reconciler over the given RelStore. acceptThreshold comes
// from RunOptions.AcceptThreshold (spec.md §4.9, default 0.5).
func New(store relstore.Store, acceptThreshold float64) *Reconciler {
	return &Reconciler{store: store, acceptThreshold: acceptThreshold}
}

// Handle is the queue.Handler for the reconciliation queue.
func (r *Reconciler) Handle(ctx context.Context, job queue.Job) queue.Result {
	runID, _ := job.Payload["run_id"].(string)
	hash, _ := job.Payload["relationship_hash"].(string)
	if runID == "" || hash == "" {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("reconciler: malformed payload")}
	}

	evidence, err := r.store.ListEvidence(ctx, runID, hash)
	if err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("reconciler: list evidence for %s: %w", hash, err)}
	}
	if len(evidence) == 0 {
		// The quiescence delay fired but nothing is there (e.g. a rapid
		// dedup race). Nothing to reconcile; ack rather than loop forever.
		return queue.Result{Outcome: queue.Ack}
	}

	first := evidence[0]
	contradicting, err := r.store.CountContradictingPasses(ctx, runID, first.SourcePOIID, first.TargetPOIID, first.Type)
	if err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("reconciler: count contradicting passes: %w", err)}
	}

	confidence := models.ComputeConfidence(evidence, contradicting)
	status := models.RelationshipStatusRejected
	if confidence >= r.acceptThreshold {
		status = models.RelationshipStatusValidated
	}

	rel := models.Relationship{
		ID:               hash,
		RunID:            runID,
		RelationshipHash: hash,
		SourcePOIID:      first.SourcePOIID,
		TargetPOIID:      first.TargetPOIID,
		Type:             first.Type,
		Confidence:       confidence,
		Status:           status,
		EvidenceCount:    len(evidence),
	}

	if err := r.store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.UpsertValidatedRelationship(ctx, rel)
	}); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("reconciler: upsert %s: %w", hash, err)}
	}

	return queue.Result{Outcome: queue.Ack}
}
