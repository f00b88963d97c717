package directory

import (
	"context"
	"testing"

	"github.com/codegraph-dev/codegraph/internal/llmtest"
	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

func TestPriorityOf_UnrankedTypesRankBehindStructsAndInterfaces(t *testing.T) {
	if got := priorityOf("class"); got != 0 {
		t.Errorf("priorityOf(class) = %d, want 0", got)
	}
	if got := priorityOf("interface"); got != 1 {
		t.Errorf("priorityOf(interface) = %d, want 1", got)
	}
	if got := priorityOf("function"); got <= priorityOf("interface") {
		t.Errorf("priorityOf(function) = %d, want something greater than interface's %d", got, priorityOf("interface"))
	}
}

func TestTopK_RanksClassesAndModulesFirst(t *testing.T) {
	pois := []models.POI{
		{ID: "1", Type: "function", Name: "a"},
		{ID: "2", Type: "class", Name: "b"},
		{ID: "3", Type: "variable", Name: "c"},
		{ID: "4", Type: "interface", Name: "d"},
	}
	got := topK(pois, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != "class" {
		t.Errorf("first result type = %s, want class", got[0].Type)
	}
	if got[1].Type != "interface" {
		t.Errorf("second result type = %s, want interface (ranked above unranked types)", got[1].Type)
	}
}

func TestTopK_UnderLimitReturnsAllUnchanged(t *testing.T) {
	pois := []models.POI{{ID: "1", Type: "function"}}
	got := topK(pois, 5)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestHandle_SummarizesDirectFilesAndFiltersDisallowedTypes(t *testing.T) {
	store := relstoretest.New()
	store.SeedFile(models.File{ID: "f1", RunID: "run1", Path: "src/a.go"})
	store.SeedPOI(models.POI{ID: "poi1", RunID: "run1", FilePath: "src/a.go", Name: "Foo", Type: "function"})

	llm := llmtest.New(models.DirectorySummaryResponse{
		Summary: "handles widgets",
		CandidateRelationships: []models.CandidateRelationshipMention{
			{From: "Foo", To: "Bar", Type: "CALLS", Reason: "calls bar"},
			{From: "Foo", To: "Bar", Type: "NOT_REAL", Reason: "disallowed"},
		},
	})

	w := New(store, llm)
	result := w.Handle(context.Background(), queue.Job{Payload: map[string]any{
		"run_id": "run1", "directory_path": "src",
	}})
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, err = %v", result.Outcome, result.Err)
	}

	summary, ok := store.DirectorySummaries["run1:src"]
	if !ok {
		t.Fatal("expected a directory summary to be stored")
	}
	if summary.SummaryText != "handles widgets" {
		t.Errorf("summary text = %q", summary.SummaryText)
	}

	if len(store.Outbox) != 1 {
		t.Fatalf("outbox rows = %d, want 1", len(store.Outbox))
	}
	candidates, _ := store.Outbox[0].Payload["candidate_relationships"].([]map[string]any)
	if len(candidates) != 1 {
		t.Fatalf("candidate_relationships = %d, want 1 (disallowed type filtered out)", len(candidates))
	}
}

func TestHandle_NoFilesInDirectory_Acks(t *testing.T) {
	store := relstoretest.New()
	w := New(store, llmtest.New(models.DirectorySummaryResponse{}))
	result := w.Handle(context.Background(), queue.Job{Payload: map[string]any{
		"run_id": "run1", "directory_path": "src",
	}})
	if result.Outcome != queue.Ack {
		t.Fatalf("outcome = %v, want Ack", result.Outcome)
	}
	if len(store.Outbox) != 0 {
		t.Error("expected no outbox row for a directory with no files")
	}
}
