package validator

import (
	"context"
	"testing"
	"time"

	"github.com/codegraph-dev/codegraph/internal/queuetest"
	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

func TestHandle_RelationshipHash_BumpsBelowThreshold(t *testing.T) {
	store := relstoretest.New()
	q := queuetest.New()
	v := New(store, q, 30*time.Second)

	result := v.Handle(context.Background(), queue.Job{Payload: map[string]any{
		"run_id": "run1", "relationship_hash": "hash1",
	}})
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, want Ack", result.Outcome)
	}
	if jobs := q.JobsFor(queue.Reconciliation); len(jobs) != 0 {
		t.Fatalf("expected no reconciliation job below threshold, got %d", len(jobs))
	}
}

func TestHandle_RelationshipHash_SchedulesReconciliationAtThreshold(t *testing.T) {
	store := relstoretest.New()
	q := queuetest.New()
	v := New(store, q, 30*time.Second)
	ctx := context.Background()
	job := queue.Job{Payload: map[string]any{"run_id": "run1", "relationship_hash": "hash1"}}

	v.Handle(ctx, job)
	result := v.Handle(ctx, job)
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, want Ack", result.Outcome)
	}

	jobs := q.JobsFor(queue.Reconciliation)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 reconciliation job at threshold, got %d", len(jobs))
	}
	if jobs[0].Opts.Delay != 30*time.Second {
		t.Fatalf("delay = %v, want quiet window 30s", jobs[0].Opts.Delay)
	}
}

func TestHandle_DirectoryCandidates_ResolvesAndAppendsEvidence(t *testing.T) {
	store := relstoretest.New()
	q := queuetest.New()
	v := New(store, q, 30*time.Second)
	ctx := context.Background()

	store.SeedPOI(models.POI{ID: "poi-a", RunID: "run1", Name: "Alpha"})
	store.SeedPOI(models.POI{ID: "poi-b", RunID: "run1", Name: "Beta"})

	result := v.Handle(ctx, queue.Job{Payload: map[string]any{
		"run_id":         "run1",
		"directory_path": "src",
		"candidate_relationships": []map[string]any{
			{"from": "Alpha", "to": "Beta", "type": "CALLS", "reason": "alpha calls beta"},
			{"from": "Alpha", "to": "Unknown", "type": "CALLS", "reason": "unresolvable"},
			{"from": "Alpha", "to": "Beta", "type": "NOT_A_TYPE", "reason": "disallowed"},
		},
	}})
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, want Ack (err=%v)", result.Outcome, result.Err)
	}

	if len(store.Evidence) != 1 {
		t.Fatalf("expected exactly 1 resolved evidence row, got %d", len(store.Evidence))
	}
	ev := store.Evidence[0]
	if ev.Pass != models.PassIntraDirectory {
		t.Errorf("pass = %v, want PassIntraDirectory", ev.Pass)
	}
	if ev.SourcePOIID != "poi-a" || ev.TargetPOIID != "poi-b" {
		t.Errorf("evidence endpoints = %s -> %s, want poi-a -> poi-b", ev.SourcePOIID, ev.TargetPOIID)
	}
	wantHash := models.RelationshipHash("poi-a", "poi-b", "CALLS")
	if ev.RelationshipHash != wantHash {
		t.Errorf("hash = %s, want %s", ev.RelationshipHash, wantHash)
	}
}

func TestHandle_MissingRunID_Dead(t *testing.T) {
	v := New(relstoretest.New(), queuetest.New(), time.Second)
	result := v.Handle(context.Background(), queue.Job{Payload: map[string]any{}})
	if result.Outcome != queue.Dead {
		t.Fatalf("outcome = %v, want Dead", result.Outcome)
	}
}
