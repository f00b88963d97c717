package outbox

import (
	"context"
	"testing"

	"github.com/codegraph-dev/codegraph/internal/queuetest"
	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

func TestChildDirectories(t *testing.T) {
	leaves := []string{"src/a/sub", "src/b"}
	got := childDirectories(leaves, "src")
	want := []string{"src/a", "src/b"}
	if len(got) != len(want) {
		t.Fatalf("childDirectories = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("childDirectories = %v, want %v", got, want)
		}
	}
}

func TestFanOutFileAnalysis_OnePerPOI(t *testing.T) {
	q := queuetest.New()
	p := New(relstoretest.New(), q)

	ev := models.OutboxEvent{
		ID:        1,
		EventType: models.EventFileAnalysisFinding,
		Payload: map[string]any{
			"run_id":    "run1",
			"file_path": "pkg/foo.go",
			"pois": []map[string]any{
				{"id": "poi1", "name": "Foo", "type": "function", "start_line": 1, "end_line": 5},
				{"id": "poi2", "name": "Bar", "type": "function", "start_line": 7, "end_line": 9},
			},
		},
	}
	if err := p.dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	jobs := q.JobsFor(queue.RelationshipAnalysis)
	if len(jobs) != 2 {
		t.Fatalf("got %d relationship-analysis-poi jobs, want 2", len(jobs))
	}
	for _, j := range jobs {
		if j.Opts.DedupKey == "" {
			t.Errorf("job missing dedup key: %+v", j)
		}
		if _, ok := j.Payload["primary_poi"]; !ok {
			t.Errorf("job missing primary_poi: %+v", j.Payload)
		}
		contextual, _ := j.Payload["contextual_pois"].([]any)
		if len(contextual) != 1 {
			t.Errorf("expected 1 contextual POI (the other one), got %d", len(contextual))
		}
	}
}

func TestFanOutDirectorySummary_SchedulesValidation(t *testing.T) {
	q := queuetest.New()
	store := relstoretest.New()
	p := New(store, q)

	ev := models.OutboxEvent{
		ID:        2,
		EventType: models.EventDirectorySummaryFinding,
		Payload: map[string]any{
			"run_id":                  "run1",
			"directory_path":          "src",
			"candidate_relationships": []map[string]any{},
		},
	}
	if err := p.dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	jobs := q.JobsFor(queue.Validation)
	if len(jobs) != 1 {
		t.Fatalf("got %d validation jobs, want 1", len(jobs))
	}
}

func TestMaybeEnqueueParentSummary_WaitsForAllChildren(t *testing.T) {
	q := queuetest.New()
	store := relstoretest.New()
	p := New(store, q)
	ctx := context.Background()

	store.UpsertRunManifest(ctx, models.RunManifest{
		RunID:       "run1",
		Directories: []string{"src/a", "src/b"},
	})

	// Only src/a has summarized so far; src/b has not, so the parent
	// directory-resolution job must not be enqueued yet.
	store.SeedDirectorySummary(models.DirectorySummary{RunID: "run1", DirectoryPath: "src/a"})
	if err := p.maybeEnqueueParentSummary(ctx, "run1", "src/a"); err != nil {
		t.Fatalf("maybeEnqueueParentSummary: %v", err)
	}
	if jobs := q.JobsFor(queue.DirectoryResolution); len(jobs) != 0 {
		t.Fatalf("expected no directory-resolution job yet, got %d", len(jobs))
	}

	// Now src/b also summarizes; the parent should be scheduled.
	store.SeedDirectorySummary(models.DirectorySummary{RunID: "run1", DirectoryPath: "src/b"})
	if err := p.maybeEnqueueParentSummary(ctx, "run1", "src/b"); err != nil {
		t.Fatalf("maybeEnqueueParentSummary: %v", err)
	}
	jobs := q.JobsFor(queue.DirectoryResolution)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 directory-resolution job for parent, got %d", len(jobs))
	}
	if jobs[0].Payload["directory_path"] != "src" {
		t.Fatalf("expected parent directory_path 'src', got %v", jobs[0].Payload["directory_path"])
	}
}

func TestMaybeEnqueueParentSummary_SkipsWhenParentHasOwnFiles(t *testing.T) {
	q := queuetest.New()
	store := relstoretest.New()
	p := New(store, q)
	ctx := context.Background()

	// "src" is itself in Directories, meaning EntityScout already scheduled
	// it directly because it has files of its own.
	store.UpsertRunManifest(ctx, models.RunManifest{
		RunID:       "run1",
		Directories: []string{"src", "src/a"},
	})
	store.SeedDirectorySummary(models.DirectorySummary{RunID: "run1", DirectoryPath: "src/a"})

	if err := p.maybeEnqueueParentSummary(ctx, "run1", "src/a"); err != nil {
		t.Fatalf("maybeEnqueueParentSummary: %v", err)
	}
	if jobs := q.JobsFor(queue.DirectoryResolution); len(jobs) != 0 {
		t.Fatalf("expected no directory-resolution job for an already-scheduled parent, got %d", len(jobs))
	}
}
