package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/codegraph-dev/codegraph/internal/queuetest"
	"github.com/codegraph-dev/codegraph/internal/relstoretest"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
)

func TestWaitForFileAnalysis_ReturnsOnceAllFilesTerminal(t *testing.T) {
	store := relstoretest.New()
	store.SeedFile(models.File{ID: "f1", RunID: "run1", Status: models.FileStatusCompleted})
	store.SeedFile(models.File{ID: "f2", RunID: "run1", Status: models.FileStatusFailed})

	p := &Pipeline{deps: Deps{Store: store}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.waitForFileAnalysis(ctx, "run1", 2); err != nil {
		t.Fatalf("waitForFileAnalysis: %v", err)
	}
}

func TestWaitForFileAnalysis_ZeroFilesReturnsImmediately(t *testing.T) {
	p := &Pipeline{deps: Deps{Store: relstoretest.New()}}
	if err := p.waitForFileAnalysis(context.Background(), "run1", 0); err != nil {
		t.Fatalf("waitForFileAnalysis: %v", err)
	}
}

func TestWaitForFileAnalysis_CanceledContextReturnsErr(t *testing.T) {
	store := relstoretest.New()
	store.SeedFile(models.File{ID: "f1", RunID: "run1", Status: models.FileStatusPending})
	p := &Pipeline{deps: Deps{Store: store}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.waitForFileAnalysis(ctx, "run1", 1); err == nil {
		t.Fatal("expected context-canceled error")
	}
}

func TestCollectDLQ_NoDeadJobsYieldsNil(t *testing.T) {
	q := queuetest.New()
	q.Enqueue(context.Background(), queue.FileAnalysis, nil, queue.EnqueueOptions{})
	entries := collectDLQ(context.Background(), q, []string{queue.FileAnalysis, queue.Validation})
	if entries != nil {
		t.Fatalf("fake queue's DeadLetter always returns empty; expected nil entries, got %v", entries)
	}
}
