// Package scout is EntityScout (spec.md C6): the first stage of a run. It
// walks the target tree once, seeds a File row and a file-analysis job per
// discovered file, seeds one directory-resolution job per non-empty
// directory, writes the run manifest, and only then resumes the queues it
// seeded paused — so nothing downstream can race ahead of a walk still in
// progress.
package scout

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// Scout walks a run's root path and seeds the analysis pipeline.
type Scout struct {
	store relstore.Store
	q     queue.Queue
}

// New builds a Scout over the given RelStore and Queue.
func New(store relstore.Store, q queue.Queue) *Scout {
	return &Scout{store: store, q: q}
}

// WalkResult summarizes one Run call for the orchestrator's logging and
// RunResult accounting.
type WalkResult struct {
	TotalFiles        int
	FinalizationJobID string
}

// Run performs the full EntityScout pass for runID over rootPath.
func (s *Scout) Run(ctx context.Context, runID, rootPath string, opts models.RunOptions) (WalkResult, error) {
	log := slog.With("run_id", runID, "component", "scout")

	if err := s.q.PauseQueue(ctx, queue.FileAnalysis); err != nil {
		return WalkResult{}, fmt.Errorf("scout: pause %s: %w", queue.FileAnalysis, err)
	}
	if err := s.q.PauseQueue(ctx, queue.DirectoryResolution); err != nil {
		return WalkResult{}, fmt.Errorf("scout: pause %s: %w", queue.DirectoryResolution, err)
	}
	defer func() {
		if err := s.q.ResumeQueue(context.WithoutCancel(ctx), queue.FileAnalysis); err != nil {
			log.Error("resume file-analysis failed", "error", err)
		}
		if err := s.q.ResumeQueue(context.WithoutCancel(ctx), queue.DirectoryResolution); err != nil {
			log.Error("resume directory-resolution failed", "error", err)
		}
	}()

	patterns := opts.SpecialFilePatterns
	if len(patterns) == 0 {
		patterns = models.DefaultSpecialFilePatterns()
	}
	classifier, err := compileClassifier(patterns)
	if err != nil {
		return WalkResult{}, fmt.Errorf("scout: compile special file patterns: %w", err)
	}

	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 1_048_576
	}

	type dirState struct {
		fileJobIDs []string
		path       string
	}
	dirs := map[string]*dirState{}
	var analysisJobIDs []string
	totalFiles := 0

	walkErr := filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if ignored(relPath, opts.Ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			log.Warn("stat failed, skipping", "path", relPath, "error", statErr)
			return nil
		}
		if info.Size() > maxBytes {
			log.Info("skipping oversize file", "path", relPath, "size", info.Size())
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Warn("read failed, skipping", "path", relPath, "error", readErr)
			return nil
		}
		if looksBinary(content) {
			log.Info("skipping binary file", "path", relPath)
			return nil
		}

		checksum := sha256.Sum256(content)
		fileID := uuid.NewString()
		specialType := classifier(relPath)

		if err := s.store.WithTx(ctx, func(tx relstore.Tx) error {
			return tx.UpsertFile(ctx, models.File{
				ID:          fileID,
				RunID:       runID,
				Path:        relPath,
				Checksum:    hex.EncodeToString(checksum[:]),
				Status:      models.FileStatusPending,
				SpecialType: specialType,
			})
		}); err != nil {
			return fmt.Errorf("scout: upsert file %s: %w", relPath, err)
		}

		jobID, err := s.q.Enqueue(ctx, queue.FileAnalysis, map[string]any{
			"run_id":   runID,
			"file_id":  fileID,
			"path":     relPath,
			"root":     rootPath,
		}, queue.EnqueueOptions{DedupKey: fmt.Sprintf("%s:%s", runID, fileID)})
		if err != nil {
			return fmt.Errorf("scout: enqueue file-analysis for %s: %w", relPath, err)
		}

		totalFiles++
		analysisJobIDs = append(analysisJobIDs, jobID)

		dirPath := filepath.ToSlash(filepath.Dir(relPath))
		st, ok := dirs[dirPath]
		if !ok {
			st = &dirState{path: dirPath}
			dirs[dirPath] = st
		}
		st.fileJobIDs = append(st.fileJobIDs, jobID)
		return nil
	})
	if walkErr != nil {
		return WalkResult{}, fmt.Errorf("scout: walk %s: %w", rootPath, walkErr)
	}

	dirPaths := make([]string, 0, len(dirs))
	childCounts := make(map[string]int, len(dirs))
	for p, st := range dirs {
		dirPaths = append(dirPaths, p)
		childCounts[p] = len(st.fileJobIDs)
	}
	sort.Strings(dirPaths)

	for _, p := range dirPaths {
		st := dirs[p]
		_, err := s.q.Enqueue(ctx, queue.DirectoryResolution, map[string]any{
			"run_id":         runID,
			"directory_path": p,
		}, queue.EnqueueOptions{
			DedupKey:  fmt.Sprintf("%s:%s", runID, p),
			DependsOn: st.fileJobIDs,
		})
		if err != nil {
			return WalkResult{}, fmt.Errorf("scout: enqueue directory-resolution for %s: %w", p, err)
		}
	}

	if err := s.store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.SealManifest(ctx, models.RunManifest{
			RunID:                runID,
			TotalFiles:           totalFiles,
			DirectoryChildCounts: childCounts,
			Directories:          dirPaths,
			Sealed:               true,
		})
	}); err != nil {
		return WalkResult{}, fmt.Errorf("scout: seal manifest: %w", err)
	}

	finalizationID, err := s.q.Enqueue(ctx, queue.GraphBuild, map[string]any{
		"run_id": runID,
		"kind":   "finalize",
	}, queue.EnqueueOptions{
		DedupKey:  runID + ":finalize",
		DependsOn: analysisJobIDs,
	})
	if err != nil {
		return WalkResult{}, fmt.Errorf("scout: enqueue finalization job: %w", err)
	}

	log.Info("scout walk complete", "total_files", totalFiles, "directories", len(dirPaths))
	return WalkResult{TotalFiles: totalFiles, FinalizationJobID: finalizationID}, nil
}

func ignored(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, relPath); err == nil && matched {
			return true
		}
	}
	return false
}

// looksBinary applies the same null-byte heuristic git and most text
// editors use: a NUL in the first chunk of a file means "not text".
func looksBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(content[:n], 0) != -1
}

type classifyFunc func(relPath string) string

func compileClassifier(patterns []models.SpecialFilePattern) (classifyFunc, error) {
	type compiled struct {
		re   *regexp.Regexp
		kind string
	}
	compiledPatterns := make([]compiled, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p.Regex, err)
		}
		compiledPatterns = append(compiledPatterns, compiled{re: re, kind: p.Type})
	}
	return func(relPath string) string {
		base := filepath.Base(relPath)
		for _, c := range compiledPatterns {
			if c.re.MatchString(base) || c.re.MatchString(relPath) {
				return c.kind
			}
		}
		return ""
	}, nil
}
