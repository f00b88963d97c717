package reconciler

import (
	"context"
	"testing"

	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

func handleJob(t *testing.T, store *relstoretest.Store, acceptThreshold float64, runID, hash string) queue.Result {
	t.Helper()
	r := New(store, acceptThreshold)
	return r.Handle(context.Background(), queue.Job{Payload: map[string]any{
		"run_id": runID, "relationship_hash": hash,
	}})
}

func TestHandle_ValidatesAboveThreshold(t *testing.T) {
	store := relstoretest.New()
	store.Evidence = append(store.Evidence,
		models.RelationshipEvidence{RunID: "run1", RelationshipHash: "h1", SourcePOIID: "a", TargetPOIID: "b", Type: "CALLS", RawConfidence: 0.6, Pass: models.PassIntraFile},
		models.RelationshipEvidence{RunID: "run1", RelationshipHash: "h1", SourcePOIID: "a", TargetPOIID: "b", Type: "CALLS", RawConfidence: 0.6, Pass: models.PassIntraFile},
	)

	result := handleJob(t, store, 0.5, "run1", "h1")
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, err = %v", result.Outcome, result.Err)
	}
	rel, ok := store.Relationships["h1"]
	if !ok {
		t.Fatal("expected relationship h1 to be upserted")
	}
	if rel.Status != models.RelationshipStatusValidated {
		t.Errorf("status = %v, want validated (confidence %v)", rel.Status, rel.Confidence)
	}
	wantConfidence := 0.6 + (1-0.6)*0.2
	if diff := rel.Confidence - wantConfidence; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", rel.Confidence, wantConfidence)
	}
}

func TestHandle_RejectsBelowThreshold(t *testing.T) {
	store := relstoretest.New()
	store.Evidence = append(store.Evidence,
		models.RelationshipEvidence{RunID: "run1", RelationshipHash: "h1", SourcePOIID: "a", TargetPOIID: "b", Type: "CALLS", RawConfidence: 0.1, Pass: models.PassIntraFile},
	)

	result := handleJob(t, store, 0.5, "run1", "h1")
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if store.Relationships["h1"].Status != models.RelationshipStatusRejected {
		t.Errorf("status = %v, want rejected", store.Relationships["h1"].Status)
	}
}

func TestHandle_DeterministicForcesFullConfidence(t *testing.T) {
	store := relstoretest.New()
	store.Evidence = append(store.Evidence,
		models.RelationshipEvidence{RunID: "run1", RelationshipHash: "h1", SourcePOIID: "a", TargetPOIID: "b", Type: "CALLS", RawConfidence: 0.1, Pass: models.PassDeterministic},
	)

	handleJob(t, store, 0.9, "run1", "h1")
	rel := store.Relationships["h1"]
	if rel.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for deterministic evidence", rel.Confidence)
	}
	if rel.Status != models.RelationshipStatusValidated {
		t.Errorf("status = %v, want validated", rel.Status)
	}
}

func TestHandle_NoEvidence_Acks(t *testing.T) {
	store := relstoretest.New()
	result := handleJob(t, store, 0.5, "run1", "missing-hash")
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, want Ack", result.Outcome)
	}
	if _, ok := store.Relationships["missing-hash"]; ok {
		t.Error("expected no relationship row for a hash with no evidence")
	}
}

func TestHandle_MalformedPayload_Dead(t *testing.T) {
	r := New(relstoretest.New(), 0.5)
	result := r.Handle(context.Background(), queue.Job{Payload: map[string]any{"run_id": "run1"}})
	if result.Outcome != queue.Dead {
		t.Fatalf("outcome = %v, want Dead", result.Outcome)
	}
}
