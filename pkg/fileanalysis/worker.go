// Package fileanalysis is FileAnalysisWorker (spec.md C7): reads one
// discovered file, extracts points of interest via the LLM (windowing
// large files), and commits them in the same transaction as the file's
// completed status and its outbox fan-out event.
package fileanalysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codegraph-dev/codegraph/pkg/llm"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// windowThresholdLines and overlapFraction implement spec.md §4.6's "window/chunk if
// over threshold (20% overlap, up to 200 lines)".
const (
	windowThresholdLines = 200
	overlapFraction      = 0.2
)

// Worker is FileAnalysisWorker.
type Worker struct {
	store relstore.Store
	llm   llm.Client
}

// New builds a Worker over the given RelStore and LLM client.
func New(store relstore.Store, llmClient llm.Client) *Worker {
	return &Worker{store: store, llm: llmClient}
}

// Handle is the queue.Handler for the file-analysis queue.
func (w *Worker) Handle(ctx context.Context, job queue.Job) queue.Result {
	runID, _ := job.Payload["run_id"].(string)
	fileID, _ := job.Payload["file_id"].(string)
	relPath, _ := job.Payload["path"].(string)
	root, _ := job.Payload["root"].(string)
	if runID == "" || fileID == "" || relPath == "" || root == "" {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("fileanalysis: malformed payload for job %s", job.ID)}
	}

	content, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("fileanalysis: read %s: %w", relPath, err)}
	}

	pois, err := w.extract(ctx, runID, fileID, relPath, string(content))
	if err != nil {
		if errors.Is(err, llm.ErrUnparseable) {
			if job.Attempts < 2 {
				return queue.Result{Outcome: queue.Retry, Err: err}
			}
			return w.failFile(ctx, runID, fileID, err)
		}
		return queue.Result{Outcome: queue.Retry, Err: err}
	}

	if err := w.store.WithTx(ctx, func(tx relstore.Tx) error {
		if err := tx.InsertPOIs(ctx, pois); err != nil {
			return err
		}
		if err := tx.UpdateFileStatus(ctx, fileID, models.FileStatusCompleted, ""); err != nil {
			return err
		}
		poiJSON := make([]map[string]any, 0, len(pois))
		for _, p := range pois {
			poiJSON = append(poiJSON, map[string]any{
				"id": p.ID, "name": p.Name, "type": p.Type,
				"start_line": p.StartLine, "end_line": p.EndLine,
			})
		}
		return tx.InsertOutbox(ctx, models.OutboxEvent{
			RunID:     runID,
			EventType: models.EventFileAnalysisFinding,
			Payload: map[string]any{
				"run_id":    runID,
				"file_id":   fileID,
				"file_path": relPath,
				"pois":      poiJSON,
			},
			Status: models.OutboxStatusPending,
		})
	}); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("fileanalysis: commit %s: %w", relPath, err)}
	}

	return queue.Result{Outcome: queue.Ack}
}

func (w *Worker) failFile(ctx context.Context, runID, fileID string, cause error) queue.Result {
	if err := w.store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.UpdateFileStatus(ctx, fileID, models.FileStatusFailed, cause.Error())
	}); err != nil {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("fileanalysis: mark failed: %w (original: %v)", err, cause)}
	}
	return queue.Result{Outcome: queue.Dead, Err: cause}
}

func (w *Worker) extract(ctx context.Context, runID, fileID, relPath, content string) ([]models.POI, error) {
	windows := windowContent(content)

	var pois []models.POI
	seen := map[string]bool{}
	for _, win := range windows {
		prompt := buildPrompt(relPath, win)
		var resp models.FileExtractionResponse
		if _, err := w.llm.CompleteJSON(ctx, prompt, &resp); err != nil {
			return nil, err
		}
		for _, cand := range resp.POIs {
			id := models.POIID(relPath, cand.Name, cand.Type, cand.StartLine)
			if seen[id] {
				continue
			}
			seen[id] = true
			pois = append(pois, models.POI{
				ID:        id,
				RunID:     runID,
				FileID:    fileID,
				FilePath:  relPath,
				Name:      cand.Name,
				Type:      cand.Type,
				StartLine: cand.StartLine,
				EndLine:   cand.EndLine,
				Snippet:   cand.Snippet,
			})
		}
	}
	return pois, nil
}

type window struct {
	text      string
	startLine int
}

// windowContent splits content into overlapping line windows when it
// exceeds windowThresholdLines, so a single oversized file does not blow
// past the LLM's context budget in one call.
func windowContent(content string) []window {
	lines := strings.Split(content, "\n")
	if len(lines) <= windowThresholdLines {
		return []window{{text: content, startLine: 1}}
	}

	overlap := int(float64(windowThresholdLines) * overlapFraction)
	stride := windowThresholdLines - overlap
	if stride < 1 {
		stride = 1
	}

	var windows []window
	for start := 0; start < len(lines); start += stride {
		end := start + windowThresholdLines
		if end > len(lines) {
			end = len(lines)
		}
		windows = append(windows, window{
			text:      strings.Join(lines[start:end], "\n"),
			startLine: start + 1,
		})
		if end == len(lines) {
			break
		}
	}
	return windows
}

func buildPrompt(relPath string, win window) string {
	return fmt.Sprintf(
		`Extract points of interest (functions, types, classes, constants, and other named declarations) from the following source file.
File: %s
Lines starting at: %d

%s

Respond with JSON: {"pois":[{"name":"...","type":"...","start_line":N,"end_line":N,"snippet":"..."}]}. start_line and end_line are absolute line numbers in the original file.`,
		relPath, win.startLine, win.text,
	)
}
