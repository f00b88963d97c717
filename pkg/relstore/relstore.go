// Package relstore is the embedded ACID store (spec.md C1 RelStore):
// files, pois, relationships, relationship_evidence, directory_summaries,
// and the transactional outbox, all behind one interface so the rest of
// the pipeline never touches ent or SQL directly.
package relstore

import (
	"context"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// Tx is a single RelStore transaction. Every multi-statement write path in
// the pipeline (e.g. FileAnalysisWorker's InsertPOIs + UpdateFileStatus +
// InsertOutbox) must go through one Tx so the writes commit atomically.
type Tx interface {
	UpsertFile(ctx context.Context, file models.File) error
	UpdateFileStatus(ctx context.Context, fileID string, status models.FileStatus, errMsg string) error
	InsertPOIs(ctx context.Context, pois []models.POI) error
	AppendEvidence(ctx context.Context, evidence []models.RelationshipEvidence) error
	UpsertValidatedRelationship(ctx context.Context, rel models.Relationship) error
	UpsertDirectorySummary(ctx context.Context, summary models.DirectorySummary) error
	InsertOutbox(ctx context.Context, event models.OutboxEvent) error
	SealManifest(ctx context.Context, manifest models.RunManifest) error

	Commit() error
	Rollback() error
}

// Store is the full RelStore surface. Writes made through WithTx or BeginTx
// go straight to the database in their own transaction; they are not
// serialized through a single writer. Batcher can coalesce POI, evidence
// and outbox inserts, but the workers call Store directly.
type Store interface {
	// BeginTx starts a transaction; callers must Commit or Rollback it.
	BeginTx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing on success and
	// rolling back (and propagating fn's error) otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// FetchPendingOutbox returns up to limit pending outbox rows, read with
	// SELECT ... FOR UPDATE SKIP LOCKED inside its own transaction. That
	// transaction commits before the rows are returned and the rows stay
	// pending, so the lock does not outlive the call: two publishers
	// polling concurrently can both receive the same row. The caller marks
	// each returned row with MarkOutboxPublished or MarkOutboxFailed in a
	// separate call.
	FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, ids []int64) error
	MarkOutboxFailed(ctx context.Context, id int64, reason string) error

	ListFilesWithStatus(ctx context.Context, runID string, status models.FileStatus) ([]models.File, error)
	MarkFilesPendingDeletion(ctx context.Context, runID string, paths []string) error
	DeleteFilesByPath(ctx context.Context, runID string, paths []string) error
	ListAllFilePaths(ctx context.Context, runID string) ([]string, error)

	GetRunManifest(ctx context.Context, runID string) (*models.RunManifest, error)
	UpsertRunManifest(ctx context.Context, manifest models.RunManifest) error

	// IncrementEvidenceCount atomically bumps the per-hash evidence
	// counter and returns the new count (spec.md §4.9 step 2).
	IncrementEvidenceCount(ctx context.Context, runID, relationshipHash string) (int, error)
	ListEvidence(ctx context.Context, runID, relationshipHash string) ([]models.RelationshipEvidence, error)
	// CountContradictingPasses counts distinct other relationship types
	// observed between the same source/target POI pair, used by the
	// confidence formula's disagreement penalty.
	CountContradictingPasses(ctx context.Context, runID, sourcePOIID, targetPOIID, excludeType string) (int, error)

	ListValidatedRelationships(ctx context.Context, runID string) ([]models.Relationship, error)
	ListPOIs(ctx context.Context, runID string) ([]models.POI, error)
	GetDirectorySummary(ctx context.Context, runID, directoryPath string) (*models.DirectorySummary, error)
	ListDirectorySummaries(ctx context.Context, runID string) ([]models.DirectorySummary, error)

	GetRun(ctx context.Context, runID string) (*models.Run, error)
	UpsertRun(ctx context.Context, run models.Run) error

	Ping(ctx context.Context) error
	Close() error
}

// outboxPollInterval is how often a caller should invoke
// FetchPendingOutbox when driving the OutboxPublisher loop (spec.md §4.4).
const outboxPollInterval = 200 * time.Millisecond

// OutboxPollInterval returns the recommended polling cadence.
func OutboxPollInterval() time.Duration { return outboxPollInterval }
