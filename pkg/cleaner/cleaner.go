// Package cleaner is SelfCleaner (spec.md C12): a two-phase, independently
// scheduled job that detects files deleted from the filesystem since a run
// started and removes their data from both GraphStore and RelStore.
package cleaner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codegraph-dev/codegraph/pkg/graphstore"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// Cleaner runs SelfCleaner's mark and sweep phases.
type Cleaner struct {
	store relstore.Store
	graph graphstore.GraphStore
}

// New builds a Cleaner over the given RelStore and GraphStore.
func New(store relstore.Store, graph graphstore.GraphStore) *Cleaner {
	return &Cleaner{store: store, graph: graph}
}

// Reconcile is the mark phase (spec.md §4.11): diff the filesystem against
// RelStore's known file paths and mark the difference pending_deletion.
func (c *Cleaner) Reconcile(ctx context.Context, runID, rootPath string) (int, error) {
	onDisk, err := walkPaths(rootPath)
	if err != nil {
		return 0, fmt.Errorf("cleaner: walk %s: %w", rootPath, err)
	}

	known, err := c.store.ListAllFilePaths(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("cleaner: list known paths: %w", err)
	}

	var missing []string
	for _, p := range known {
		if !onDisk[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if err := c.store.MarkFilesPendingDeletion(ctx, runID, missing); err != nil {
		return 0, fmt.Errorf("cleaner: mark pending deletion: %w", err)
	}
	slog.Info("cleaner: marked files pending deletion", "run_id", runID, "count", len(missing))
	return len(missing), nil
}

// Sweep is the sweep phase (spec.md §4.11): delete pending_deletion files
// from GraphStore first, then RelStore. If the GraphStore delete succeeds
// but the RelStore delete fails, the rows stay pending_deletion and a
// later Sweep retries them, so no partial state is ever visible.
func (c *Cleaner) Sweep(ctx context.Context, runID string) (int, error) {
	files, err := c.store.ListFilesWithStatus(ctx, runID, models.FileStatusPendingDeletion)
	if err != nil {
		return 0, fmt.Errorf("cleaner: list pending deletion: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	if err := c.graph.DeleteFileSubgraph(ctx, runID, paths); err != nil {
		return 0, fmt.Errorf("cleaner: delete graph subgraph: %w", err)
	}
	if err := c.store.DeleteFilesByPath(ctx, runID, paths); err != nil {
		return 0, fmt.Errorf("cleaner: delete rel rows: %w", err)
	}

	slog.Info("cleaner: swept deleted files", "run_id", runID, "count", len(paths))
	return len(paths), nil
}

// walkPaths returns the set of run-root-relative, forward-slashed paths
// for every regular file currently on disk under rootPath.
func walkPaths(rootPath string) (map[string]bool, error) {
	out := map[string]bool{}
	err := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			return relErr
		}
		out[filepath.ToSlash(rel)] = true
		return nil
	})
	return out, err
}
