// Package directory is DirectoryWorker (spec.md C9): summarizes one
// directory's files once all of them have finished file analysis, and
// surfaces any cross-file relationships the summary implies as candidates
// for the Validator to resolve and hash.
package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codegraph-dev/codegraph/pkg/llm"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// topKPerFile caps how many POIs from one file feed the directory summary
// prompt (spec.md §4.8's "K ~= 20, by type-priority").
const topKPerFile = 20

// typePriority ranks POI types so classes/modules are sampled first when a
// file has more POIs than topKPerFile allows. Types absent from this map
// (functions, constants, variables, ...) fall back to unrankedPriority,
// behind every ranked type here rather than tied with "class"/"module" at
// the map's zero value.
var typePriority = map[string]int{
	"class":     0,
	"module":    0,
	"interface": 1,
	"struct":    1,
}

const unrankedPriority = 2

// Worker is DirectoryWorker.
type Worker struct {
	store relstore.Store
	llm   llm.Client
}

// New builds a Worker over the given RelStore and LLM client.
func New(store relstore.Store, llmClient llm.Client) *Worker {
	return &Worker{store: store, llm: llmClient}
}

// Handle is the queue.Handler for the directory-resolution queue. The
// queue's dependency gate already guarantees every file this directory
// owns has completed file analysis before this runs (spec.md §4.8 step 1).
func (w *Worker) Handle(ctx context.Context, job queue.Job) queue.Result {
	runID, _ := job.Payload["run_id"].(string)
	dirPath, _ := job.Payload["directory_path"].(string)
	if runID == "" || dirPath == "" {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("directory: malformed payload for job %s", job.ID)}
	}

	paths, err := w.store.ListAllFilePaths(ctx, runID)
	if err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("directory: list file paths: %w", err)}
	}
	var filePaths []string
	for _, p := range paths {
		if filepath.ToSlash(filepath.Dir(p)) == dirPath {
			filePaths = append(filePaths, p)
		}
	}
	if len(filePaths) == 0 {
		return queue.Result{Outcome: queue.Ack}
	}

	allPOIs, err := w.store.ListPOIs(ctx, runID)
	if err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("directory: list pois: %w", err)}
	}
	byFile := make(map[string][]models.POI, len(filePaths))
	for _, p := range allPOIs {
		byFile[p.FilePath] = append(byFile[p.FilePath], p)
	}

	var sampled []models.POI
	for _, fp := range filePaths {
		sampled = append(sampled, topK(byFile[fp], topKPerFile)...)
	}

	var resp models.DirectorySummaryResponse
	if _, err := w.llm.CompleteJSON(ctx, buildPrompt(dirPath, filePaths, sampled), &resp); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("directory: summarize %s: %w", dirPath, err)}
	}

	candidates := make([]map[string]any, 0, len(resp.CandidateRelationships))
	for _, c := range resp.CandidateRelationships {
		if !models.IsAllowedRelationshipType(c.Type) {
			continue
		}
		candidates = append(candidates, map[string]any{
			"from": c.From, "to": c.To, "type": c.Type, "reason": c.Reason,
		})
	}

	summary := models.DirectorySummary{
		ID:            runID + ":" + dirPath,
		RunID:         runID,
		DirectoryPath: dirPath,
		SummaryText:   resp.Summary,
		POISampleSize: len(sampled),
	}

	if err := w.store.WithTx(ctx, func(tx relstore.Tx) error {
		if err := tx.UpsertDirectorySummary(ctx, summary); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, models.OutboxEvent{
			RunID:     runID,
			EventType: models.EventDirectorySummaryFinding,
			Payload: map[string]any{
				"run_id":                  runID,
				"directory_path":          dirPath,
				"candidate_relationships": candidates,
			},
			Status: models.OutboxStatusPending,
		})
	}); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("directory: commit %s: %w", dirPath, err)}
	}

	return queue.Result{Outcome: queue.Ack}
}

// topK returns at most k POIs from pois, ranking classes/modules first and
// otherwise preserving discovery order.
func topK(pois []models.POI, k int) []models.POI {
	if len(pois) <= k {
		return pois
	}
	ranked := make([]models.POI, len(pois))
	copy(ranked, pois)
	sort.SliceStable(ranked, func(i, j int) bool {
		return priorityOf(ranked[i].Type) < priorityOf(ranked[j].Type)
	})
	return ranked[:k]
}

func priorityOf(poiType string) int {
	if p, ok := typePriority[strings.ToLower(poiType)]; ok {
		return p
	}
	return unrankedPriority
}

func buildPrompt(dirPath string, filePaths []string, pois []models.POI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the directory %q, which contains these files:\n", dirPath)
	for _, f := range filePaths {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nPoints of interest sampled from these files:\n")
	for _, p := range pois {
		fmt.Fprintf(&b, "- %s (%s) in %s\n", p.Name, p.Type, p.FilePath)
	}
	b.WriteString(`
Respond with JSON: {"summary":"...","candidate_relationships":[{"from":"<poi name>","to":"<poi name>","type":"CALLS","reason":"..."}]}. Only include candidate_relationships you can point to evidence for among the listed points of interest. Allowed types: CALLS, IMPORTS, USES, EXTENDS, IMPLEMENTS, CONTAINS, WRITES, READS.`)
	return b.String()
}
