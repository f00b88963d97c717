package graphbuilder

import (
	"context"
	"testing"

	"github.com/codegraph-dev/codegraph/internal/graphstoretest"
	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

func TestBuild_StreamsPOIsAndValidatedRelationships(t *testing.T) {
	store := relstoretest.New()
	store.SeedPOI(models.POI{ID: "poi1", RunID: "run1", Name: "Foo"})
	store.SeedPOI(models.POI{ID: "poi2", RunID: "run1", Name: "Bar"})
	store.Relationships["h1"] = models.Relationship{
		ID: "h1", RunID: "run1", RelationshipHash: "h1",
		SourcePOIID: "poi1", TargetPOIID: "poi2", Type: "CALLS",
		Status: models.RelationshipStatusValidated,
	}
	store.Relationships["h2"] = models.Relationship{
		ID: "h2", RunID: "run1", RelationshipHash: "h2",
		Status: models.RelationshipStatusRejected,
	}

	graph := graphstoretest.New()
	b := New(store, graph)

	nodeCount, edgeCount, err := b.Build(context.Background(), "run1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if nodeCount != 2 {
		t.Errorf("nodeCount = %d, want 2", nodeCount)
	}
	if edgeCount != 1 {
		t.Errorf("edgeCount = %d, want 1 (only validated relationships)", edgeCount)
	}
	if _, ok := graph.Edges["h2"]; ok {
		t.Error("rejected relationship should not reach GraphStore")
	}
}

func TestHandle_MissingRunID_Dead(t *testing.T) {
	b := New(relstoretest.New(), graphstoretest.New())
	result := b.Handle(context.Background(), queue.Job{Payload: map[string]any{}})
	if result.Outcome != queue.Dead {
		t.Fatalf("outcome = %v, want Dead", result.Outcome)
	}
}

func TestHandle_Ack(t *testing.T) {
	store := relstoretest.New()
	store.SeedPOI(models.POI{ID: "poi1", RunID: "run1"})
	b := New(store, graphstoretest.New())
	result := b.Handle(context.Background(), queue.Job{Payload: map[string]any{"run_id": "run1"}})
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, err = %v", result.Outcome, result.Err)
	}
}
