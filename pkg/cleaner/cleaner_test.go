package cleaner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/codegraph-dev/codegraph/internal/graphstoretest"
	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReconcile_MarksMissingFilesPendingDeletion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go")

	store := relstoretest.New()
	store.SeedFile(models.File{ID: "f1", RunID: "run1", Path: "a.go", Status: models.FileStatusCompleted})
	store.SeedFile(models.File{ID: "f2", RunID: "run1", Path: "deleted.go", Status: models.FileStatusCompleted})

	c := New(store, graphstoretest.New())
	n, err := c.Reconcile(context.Background(), "run1", root)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n != 1 {
		t.Fatalf("marked %d files, want 1", n)
	}
	if store.Files["f2"].Status != models.FileStatusPendingDeletion {
		t.Errorf("deleted.go status = %v, want pending_deletion", store.Files["f2"].Status)
	}
	if store.Files["f1"].Status != models.FileStatusCompleted {
		t.Errorf("a.go status = %v, want unchanged completed", store.Files["f1"].Status)
	}
}

func TestSweep_DeletesGraphAndRelStoreRows(t *testing.T) {
	store := relstoretest.New()
	store.SeedFile(models.File{ID: "f2", RunID: "run1", Path: "deleted.go", Status: models.FileStatusPendingDeletion})
	graph := graphstoretest.New()
	graph.Nodes["poi1"] = models.POI{ID: "poi1", RunID: "run1", FilePath: "deleted.go"}

	c := New(store, graph)
	n, err := c.Sweep(context.Background(), "run1")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d files, want 1", n)
	}
	if graph.DeleteCalls != 1 {
		t.Errorf("graph delete calls = %d, want 1", graph.DeleteCalls)
	}
	if _, ok := store.Files["f2"]; ok {
		t.Error("expected the file row to be deleted from RelStore after sweep")
	}
}

func TestSweep_NoPendingDeletions_NoOp(t *testing.T) {
	store := relstoretest.New()
	graph := graphstoretest.New()
	c := New(store, graph)
	n, err := c.Sweep(context.Background(), "run1")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("swept %d files, want 0", n)
	}
	if graph.DeleteCalls != 0 {
		t.Error("expected no graph delete call when nothing is pending deletion")
	}
}
