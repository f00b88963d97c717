// Package relationship is RelationshipWorker (spec.md C8): given one
// primary POI and its contextual POIs from the same file, asks the LLM
// which relationships the primary POI participates in, discards anything
// outside the closed type set or not actually rooted at the primary POI,
// and appends evidence for the rest.
package relationship

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codegraph-dev/codegraph/pkg/llm"
	"github.com/codegraph-dev/codegraph/pkg/models"
	"github.com/codegraph-dev/codegraph/pkg/queue"
	"github.com/codegraph-dev/codegraph/pkg/relstore"
)

// Worker is RelationshipWorker.
type Worker struct {
	store relstore.Store
	llm   llm.Client
}

// New builds a Worker over the given RelStore and LLM client.
func New(store relstore.Store, llmClient llm.Client) *Worker {
	return &Worker{store: store, llm: llmClient}
}

// Handle is the queue.Handler for the relationship-analysis-poi queue.
func (w *Worker) Handle(ctx context.Context, job queue.Job) queue.Result {
	var payload models.RelationshipAnalysisPOIJob
	if err := decodePayload(job.Payload, &payload); err != nil {
		return queue.Result{Outcome: queue.Dead, Err: fmt.Errorf("relationship: decode payload: %w", err)}
	}

	var resp models.RelationshipExtractionResponse
	if _, err := w.llm.CompleteJSON(ctx, buildPrompt(payload), &resp); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: err}
	}

	evidence, outboxEvents := w.filterAndHash(payload, resp.Relationships)
	if len(evidence) == 0 {
		return queue.Result{Outcome: queue.Ack}
	}

	if err := w.store.WithTx(ctx, func(tx relstore.Tx) error {
		if err := tx.AppendEvidence(ctx, evidence); err != nil {
			return err
		}
		for _, e := range outboxEvents {
			if err := tx.InsertOutbox(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return queue.Result{Outcome: queue.Retry, Err: fmt.Errorf("relationship: commit evidence: %w", err)}
	}

	return queue.Result{Outcome: queue.Ack}
}

// filterAndHash enforces spec.md §4.7's two hard rules (from must equal
// the primary POI, type must be in the closed set), assigns each surviving
// candidate its relationship_hash, and tie-breaks duplicate (hash) pairs
// within this single response by keeping the highest confidence.
func (w *Worker) filterAndHash(payload models.RelationshipAnalysisPOIJob, candidates []models.RelationshipCandidate) ([]models.RelationshipEvidence, []models.OutboxEvent) {
	targetIDFor := func(name string) string {
		if name == payload.PrimaryPOI.ID || name == payload.PrimaryPOI.Name {
			return payload.PrimaryPOI.ID
		}
		for _, p := range payload.ContextualPOIs {
			if name == p.ID || name == p.Name {
				return p.ID
			}
		}
		return name
	}

	best := make(map[string]models.RelationshipCandidate)
	for _, c := range candidates {
		if c.From != payload.PrimaryPOI.ID && c.From != payload.PrimaryPOI.Name {
			continue // discard: not rooted at the primary POI
		}
		if !models.IsAllowedRelationshipType(c.Type) {
			continue // discard: outside the closed type set
		}
		targetID := targetIDFor(c.To)
		hash := models.RelationshipHash(payload.PrimaryPOI.ID, targetID, c.Type)
		if existing, ok := best[hash]; !ok || c.Confidence > existing.Confidence {
			best[hash] = c
		}
	}

	evidence := make([]models.RelationshipEvidence, 0, len(best))
	events := make([]models.OutboxEvent, 0, len(best))
	for hash, c := range best {
		targetID := targetIDFor(c.To)
		ev := models.RelationshipEvidence{
			RunID:            payload.RunID,
			RelationshipHash: hash,
			SourcePOIID:      payload.PrimaryPOI.ID,
			TargetPOIID:      targetID,
			Type:             c.Type,
			RawConfidence:    c.Confidence,
			Pass:             models.PassIntraFile,
			Payload:          map[string]any{"evidence": c.Evidence},
		}
		evidence = append(evidence, ev)
		events = append(events, models.OutboxEvent{
			RunID:     payload.RunID,
			EventType: models.EventRelationshipFinding,
			Payload: map[string]any{
				"run_id":            payload.RunID,
				"relationship_hash": hash,
			},
			Status: models.OutboxStatusPending,
		})
	}
	return evidence, events
}

func buildPrompt(payload models.RelationshipAnalysisPOIJob) string {
	ctxJSON, _ := json.Marshal(payload.ContextualPOIs)
	return fmt.Sprintf(
		`Identify relationships that %q (type %s, file %s) has with the other points of interest below. Allowed relationship types: CALLS, IMPORTS, USES, EXTENDS, IMPLEMENTS, CONTAINS, WRITES, READS.
Primary POI id: %s
Other POIs in this file: %s

Respond with JSON: {"relationships":[{"from":"%s","to":"<other poi id or name>","type":"CALLS","evidence":"...","confidence":0.0}]}. "from" must always be %q.`,
		payload.PrimaryPOI.Name, payload.PrimaryPOI.Type, payload.FilePath,
		payload.PrimaryPOI.ID, string(ctxJSON), payload.PrimaryPOI.ID, payload.PrimaryPOI.ID,
	)
}

// decodePayload round-trips a queue.Job's map[string]any payload through
// JSON into a typed struct; the job queue stores payloads as jsonb, so
// this is the same shape encoding/json would have produced on the way in.
func decodePayload(payload map[string]any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
