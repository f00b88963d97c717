// Package outbox is OutboxPublisher (spec.md C5): the single bridge
// between RelStore's transactional outbox and the Queue. It polls pending
// rows and fans each one out to the next stage's queue according to its
// event type, marking the row published only once the enqueue succeeds.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// pollBatchSize matches spec.md §4.4's "FetchPendingOutbox(limit=200)".
const pollBatchSize = 200

// Publisher is OutboxPublisher. One instance runs per run.
type Publisher struct {
	store relstore.Store
	q     queue.Queue
}

// New builds a Publisher over the given RelStore and Queue.
func New(store relstore.Store, q queue.Queue) *Publisher {
	return &Publisher{store: store, q: q}
}

// Run polls on RelStore's recommended cadence until ctx is canceled. On
// cancellation it drains one final poll so rows already fetched are not
// stranded pending (spec.md §5's "the outbox publisher drains pending rows
// and exits").
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(relstore.OutboxPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := p.poll(drainCtx); err != nil {
				slog.Error("outbox: final drain failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				slog.Error("outbox: poll failed", "error", err)
			}
		}
	}
}

// poll fetches one batch of pending rows, dispatches each, and marks the
// successes published in one call. The fetch (FOR UPDATE SKIP LOCKED) and
// the status update run in separate transactions; a row whose dispatch
// fails stays pending and is retried on a later poll.
func (p *Publisher) poll(ctx context.Context) error {
	events, err := p.store.FetchPendingOutbox(ctx, pollBatchSize)
	if err != nil {
		return fmt.Errorf("outbox: fetch pending: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]int64, 0, len(events))
	for _, ev := range events {
		if err := p.dispatch(ctx, ev); err != nil {
			slog.Error("outbox: dispatch failed, leaving pending", "id", ev.ID, "event_type", ev.EventType, "error", err)
			if markErr := p.store.MarkOutboxFailed(ctx, ev.ID, err.Error()); markErr != nil {
				slog.Error("outbox: mark failed", "id", ev.ID, "error", markErr)
			}
			continue
		}
		published = append(published, ev.ID)
	}

	if len(published) == 0 {
		return nil
	}
	if err := p.store.MarkOutboxPublished(ctx, published); err != nil {
		return fmt.Errorf("outbox: mark published: %w", err)
	}
	return nil
}

// dispatch applies spec.md §4.4's fan-out rule for one event's type.
func (p *Publisher) dispatch(ctx context.Context, ev models.OutboxEvent) error {
	switch ev.EventType {
	case models.EventFileAnalysisFinding:
		return p.fanOutFileAnalysis(ctx, ev)
	case models.EventRelationshipFinding:
		return p.fanOutRelationshipFinding(ctx, ev)
	case models.EventDirectorySummaryFinding:
		return p.fanOutDirectorySummary(ctx, ev)
	default:
		return fmt.Errorf("outbox: unknown event type %q", ev.EventType)
	}
}

// poiRef is the shape FileAnalysisWorker writes into a
// file-analysis-finding payload's "pois" field.
type poiRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// fanOutFileAnalysis implements "1 file -> N parallel POI jobs": one
// relationship-analysis-poi job per POI, each carrying the file's other
// POIs as context (spec.md §4.4).
func (p *Publisher) fanOutFileAnalysis(ctx context.Context, ev models.OutboxEvent) error {
	runID, _ := ev.Payload["run_id"].(string)
	filePath, _ := ev.Payload["file_path"].(string)

	var refs []poiRef
	if err := roundTrip(ev.Payload["pois"], &refs); err != nil {
		return fmt.Errorf("decode pois: %w", err)
	}

	toPOI := func(r poiRef) models.POI {
		return models.POI{
			ID: r.ID, RunID: runID, FilePath: filePath,
			Name: r.Name, Type: r.Type, StartLine: r.StartLine, EndLine: r.EndLine,
		}
	}

	for i, primary := range refs {
		contextual := make([]models.POI, 0, len(refs)-1)
		for j, other := range refs {
			if j == i {
				continue
			}
			contextual = append(contextual, toPOI(other))
		}

		job := models.RelationshipAnalysisPOIJob{
			RunID:          runID,
			PrimaryPOI:     toPOI(primary),
			ContextualPOIs: contextual,
			FilePath:       filePath,
		}
		payload, err := toMap(job)
		if err != nil {
			return fmt.Errorf("encode relationship-analysis-poi job: %w", err)
		}

		if _, err := p.q.Enqueue(ctx, queue.RelationshipAnalysis, payload, queue.EnqueueOptions{
			DedupKey: fmt.Sprintf("%s:%s:relate", runID, primary.ID),
		}); err != nil {
			return fmt.Errorf("enqueue relationship-analysis-poi for %s: %w", primary.ID, err)
		}
	}
	return nil
}

// fanOutRelationshipFinding enqueues one validation job per relationship
// evidence arrival. RelationshipWorker already appended the evidence row
// in its own transaction, so this job only needs the hash: the Validator
// increments the hash's evidence counter and reschedules the quiescence
// timer (spec.md §4.9 steps 2-4).
func (p *Publisher) fanOutRelationshipFinding(ctx context.Context, ev models.OutboxEvent) error {
	runID, _ := ev.Payload["run_id"].(string)
	hash, _ := ev.Payload["relationship_hash"].(string)
	if runID == "" || hash == "" {
		return fmt.Errorf("malformed relationship-finding payload")
	}

	_, err := p.q.Enqueue(ctx, queue.Validation, map[string]any{
		"run_id":            runID,
		"relationship_hash": hash,
	}, queue.EnqueueOptions{DedupKey: fmt.Sprintf("%s:%s:validate", runID, hash)})
	if err != nil {
		return fmt.Errorf("enqueue validation for %s: %w", hash, err)
	}
	return nil
}

// fanOutDirectorySummary enqueues one validation job carrying the
// directory summary's candidate cross-file relationships (the Validator
// resolves and hashes these, since DirectoryWorker cannot compute a
// relationship_hash without the target's POI id), and then checks whether
// this directory's completion unblocks a parent directory that has no
// files of its own and was therefore never scheduled by EntityScout
// (spec.md §4.4's "if all files+POIs for this directory are complete,
// enqueue the directory summarization job").
func (p *Publisher) fanOutDirectorySummary(ctx context.Context, ev models.OutboxEvent) error {
	runID, _ := ev.Payload["run_id"].(string)
	dirPath, _ := ev.Payload["directory_path"].(string)
	if runID == "" || dirPath == "" {
		return fmt.Errorf("malformed directory-summary-finding payload")
	}

	_, err := p.q.Enqueue(ctx, queue.Validation, map[string]any{
		"run_id":                  runID,
		"directory_path":          dirPath,
		"candidate_relationships": ev.Payload["candidate_relationships"],
	}, queue.EnqueueOptions{DedupKey: fmt.Sprintf("%s:%s:validate", runID, dirPath)})
	if err != nil {
		return fmt.Errorf("enqueue validation for directory %s: %w", dirPath, err)
	}

	return p.maybeEnqueueParentSummary(ctx, runID, dirPath)
}

// maybeEnqueueParentSummary enqueues a directory-resolution job for dirPath's
// parent once every child of that parent has produced a directory summary,
// but only when the parent has no files of its own (a parent with its own
// files was already scheduled by EntityScout, gated on its own file
// completion, independent of its children).
func (p *Publisher) maybeEnqueueParentSummary(ctx context.Context, runID, dirPath string) error {
	parent := filepath.ToSlash(filepath.Dir(dirPath))
	if parent == "." || parent == dirPath {
		return nil
	}

	manifest, err := p.store.GetRunManifest(ctx, runID)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if manifest == nil {
		return nil
	}
	if contains(manifest.Directories, parent) {
		return nil
	}

	children := childDirectories(manifest.Directories, parent)
	if len(children) == 0 {
		return nil
	}
	for _, c := range children {
		summary, err := p.store.GetDirectorySummary(ctx, runID, c)
		if err != nil {
			return fmt.Errorf("check summary for %s: %w", c, err)
		}
		if summary == nil {
			return nil // a sibling hasn't summarized yet; wait for its event
		}
	}

	_, err = p.q.Enqueue(ctx, queue.DirectoryResolution, map[string]any{
		"run_id":         runID,
		"directory_path": parent,
	}, queue.EnqueueOptions{DedupKey: fmt.Sprintf("%s:%s", runID, parent)})
	if err != nil {
		return fmt.Errorf("enqueue directory-resolution for parent %s: %w", parent, err)
	}
	return nil
}

// childDirectories returns the direct children of parent within the full
// directory tree implied by leafDirs (the directories EntityScout actually
// saw files in) and their ancestors.
func childDirectories(leafDirs []string, parent string) []string {
	all := map[string]bool{}
	for _, d := range leafDirs {
		cur := d
		all[cur] = true
		for {
			up := filepath.ToSlash(filepath.Dir(cur))
			if up == "." || up == cur {
				break
			}
			all[up] = true
			cur = up
		}
	}

	var out []string
	for d := range all {
		if filepath.ToSlash(filepath.Dir(d)) == parent {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

// roundTrip re-encodes an any (typically a map[string]any or []any decoded
// from jsonb) into a concrete type via JSON, the same pattern every queue
// payload consumer in this module uses.
func roundTrip(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
