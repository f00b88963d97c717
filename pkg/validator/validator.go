// Package validator is the Validator half of spec.md C10
// ("Validator + Reconciler"). It consumes validation-queue jobs, makes
// sure the relationship evidence they describe exists in RelStore, bumps
// that evidence's hash counter, and schedules reconciliation once the
// quiescence rule is satisfied.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// evidenceThreshold and its quiescence window are spec.md §4.9 step 3's
// "no manifest entry" rule: eligible once evidence_count >= 2 and no new
// evidence has arrived for quietWindow.
const evidenceThreshold = 2

// Validator is the validation-queue consumer.
type Validator struct {
	store          relstore.Store
	q              queue.Queue
	quietWindowDur time.Duration
}

// candidateMention mirrors models.CandidateRelationshipMention, decoded
// off a directory-summary-derived validation job's payload.
type candidateMention struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// New builds a Validator over the given RelStore and Queue. quietWindow
// comes from RunOptions.QuietWindow (spec.md §4.9, default 30s).
func New(store relstore.Store, q queue.Queue, quietWindow time.Duration) *Validator {
	return &Validator{store: store, q: q, quietWindowDur: quietWindow}
}

// Handle is the queue.Handler for the validation queue. Two payload
// shapes arrive here (spec.md §4.4's fan-out):
//   - {run_id, relationship_hash}: evidence was already appended by
//     RelationshipWorker; this job only bumps the counter.
//   - {run_id, directory_path, candidate_relationships}: DirectoryWorker's
//     cross-file candidates, not yet hashed or appended; this job resolves
//     each candidate against all of the run's POIs, appends evidence, and
//     bumps each resulting hash's counter.
func (v *Validator) Handle(ctx context.Context, job queue.Job) queue.Result {
	runID, _ := job.Payload["run_id"].(string)
	if runID == "" {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("validator: missing run_id")}
	}

	var hashes []string
	if hash, ok := job.Payload["relationship_hash"].(string); ok && hash != "" {
		hashes = []string{hash}
	} else if dirPath, ok := job.Payload["directory_path"].(string); ok && dirPath != "" {
		resolved, err := v.appendDirectoryCandidates(ctx, runID, dirPath, job.Payload["candidate_relationships"])
		if err != nil {
			return queue.Result{Outcome: queue.Retry, Err: err}
		}
		hashes = resolved
	} else {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("validator: payload has neither relationship_hash nor directory_path")}
	}

	for _, hash := range hashes {
		if err := v.bumpAndSchedule(ctx, runID, hash); err != nil {
			return queue.Result{Outcome: queue.Retry, Err: err}
		}
	}
	return queue.Result{Outcome: queue.Ack}
}

// bumpAndSchedule implements spec.md §4.9 steps 2-4: atomically increment
// the hash's evidence counter, and once it has reached the threshold,
// (re)schedule a delayed reconciliation job keyed so that only the latest
// delay survives.
func (v *Validator) bumpAndSchedule(ctx context.Context, runID, hash string) error {
	count, err := v.store.IncrementEvidenceCount(ctx, runID, hash)
	if err != nil {
		return fmt.Errorf("validator: increment evidence count for %s: %w", hash, err)
	}
	if count < evidenceThreshold {
		return nil
	}

	_, err = v.q.Enqueue(ctx, queue.Reconciliation, map[string]any{
		"run_id":            runID,
		"relationship_hash": hash,
	}, queue.EnqueueOptions{
		DedupKey: fmt.Sprintf("%s:%s:reconcile", runID, hash),
		Delay:    v.quietWindowDur,
	})
	if err != nil {
		return fmt.Errorf("validator: schedule reconciliation for %s: %w", hash, err)
	}
	return nil
}

// appendDirectoryCandidates resolves each candidate mention's From/To
// names against all of the run's POIs (by id or name), computes relationship_hash, and
// appends one RelationshipEvidence row per resolved candidate (pass
// intra_directory). Candidates that cannot be resolved to a known POI are
// skipped: the LLM occasionally names something outside the sampled POI
// set, and there is nothing to hash against.
func (v *Validator) appendDirectoryCandidates(ctx context.Context, runID, dirPath string, raw any) ([]string, error) {
	var mentions []candidateMention
	if err := roundTrip(raw, &mentions); err != nil {
		return nil, fmt.Errorf("decode candidate_relationships: %w", err)
	}
	if len(mentions) == 0 {
		return nil, nil
	}

	pois, err := v.store.ListPOIs(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list pois: %w", err)
	}
	byRef := make(map[string]models.POI, len(pois)*2)
	for _, p := range pois {
		byRef[p.ID] = p
		byRef[p.Name] = p
	}

	evidence := make([]models.RelationshipEvidence, 0, len(mentions))
	hashes := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if !models.IsAllowedRelationshipType(m.Type) {
			continue
		}
		from, ok := byRef[m.From]
		if !ok {
			continue
		}
		to, ok := byRef[m.To]
		if !ok {
			continue
		}
		hash := models.RelationshipHash(from.ID, to.ID, m.Type)
		evidence = append(evidence, models.RelationshipEvidence{
			RunID:            runID,
			RelationshipHash: hash,
			SourcePOIID:      from.ID,
			TargetPOIID:      to.ID,
			Type:             m.Type,
			RawConfidence:    0.6, // directory-level inference, weaker than direct intra-file evidence
			Pass:             models.PassIntraDirectory,
			Payload:          map[string]any{"evidence": m.Reason, "directory_path": dirPath},
		})
		hashes = append(hashes, hash)
	}
	if len(evidence) == 0 {
		return nil, nil
	}

	if err := v.store.WithTx(ctx, func(tx relstore.Tx) error {
		return tx.AppendEvidence(ctx, evidence)
	}); err != nil {
		return nil, fmt.Errorf("append directory evidence: %w", err)
	}
	return hashes, nil
}

func roundTrip(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
