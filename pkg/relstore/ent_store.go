package relstore

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/codegraph-dev/codegraph/ent"
	"github.com/codegraph-dev/codegraph/ent/directorysummary"
	"github.com/codegraph-dev/codegraph/ent/file"
	"github.com/codegraph-dev/codegraph/ent/outboxevent"
	"github.com/codegraph-dev/codegraph/ent/poi"
	"github.com/codegraph-dev/codegraph/ent/relationship"
	"github.com/codegraph-dev/codegraph/ent/relationshipevidence"
	"github.com/codegraph-dev/codegraph/ent/runmanifest"
	"github.com/codegraph-dev/codegraph/pkg/models"
)

// entStore is the ent/Postgres-backed Store implementation.
type entStore struct {
	client *ent.Client
}

// New wraps an *ent.Client (as produced by pkg/database.Client) as a Store.
func New(client *ent.Client) Store {
	return &entStore{client: client}
}

func (s *entStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &entTx{tx: tx}, nil
}

func (s *entStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *entStore) FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := s.WithTx(ctx, func(txIface Tx) error {
		tx := txIface.(*entTx)
		rows, err := tx.tx.OutboxEvent.Query().
			Where(outboxevent.StatusEQ(outboxevent.StatusPending)).
			Order(ent.Asc(outboxevent.FieldID)).
			Limit(limit).
			ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
			All(ctx)
		if err != nil {
			return fmt.Errorf("fetch pending outbox: %w", err)
		}
		for _, r := range rows {
			out = append(out, toModelOutboxEvent(r))
		}
		return nil
	})
	return out, err
}

func (s *entStore) MarkOutboxPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	_, err := s.client.OutboxEvent.Update().
		Where(outboxevent.IDIn(ids...)).
		SetStatus(outboxevent.StatusPublished).
		SetPublishedAt(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (s *entStore) MarkOutboxFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.client.OutboxEvent.UpdateOneID(id).
		SetLastError(reason).
		AddAttempts(1).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (s *entStore) ListFilesWithStatus(ctx context.Context, runID string, status models.FileStatus) ([]models.File, error) {
	rows, err := s.client.File.Query().
		Where(file.RunIDEQ(runID), file.StatusEQ(file.Status(status))).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files with status: %w", err)
	}
	out := make([]models.File, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModelFile(r))
	}
	return out, nil
}

func (s *entStore) MarkFilesPendingDeletion(ctx context.Context, runID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := s.client.File.Update().
		Where(file.RunIDEQ(runID), file.PathIn(paths...)).
		SetStatus(file.StatusPendingDeletion).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("mark files pending deletion: %w", err)
	}
	return nil
}

func (s *entStore) DeleteFilesByPath(ctx context.Context, runID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := s.client.File.Delete().
		Where(file.RunIDEQ(runID), file.PathIn(paths...)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete files by path: %w", err)
	}
	return nil
}

func (s *entStore) ListAllFilePaths(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.client.File.Query().
		Where(file.RunIDEQ(runID)).
		Select(file.FieldPath).
		Strings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all file paths: %w", err)
	}
	return rows, nil
}

func (s *entStore) GetRunManifest(ctx context.Context, runID string) (*models.RunManifest, error) {
	row, err := s.client.RunManifest.Query().
		Where(runmanifest.RunIDEQ(runID)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run manifest: %w", err)
	}
	m := toModelManifest(row)
	return &m, nil
}

func (s *entStore) UpsertRunManifest(ctx context.Context, manifest models.RunManifest) error {
	err := s.client.RunManifest.Create().
		SetRunID(manifest.RunID).
		SetTotalFiles(manifest.TotalFiles).
		SetDirectoryChildCounts(manifest.DirectoryChildCounts).
		SetDirectories(manifest.Directories).
		SetSealed(manifest.Sealed).
		OnConflictColumns(runmanifest.FieldRunID).
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert run manifest: %w", err)
	}
	return nil
}

func (s *entStore) IncrementEvidenceCount(ctx context.Context, runID, relationshipHash string) (int, error) {
	var count int
	err := s.WithTx(ctx, func(txIface Tx) error {
		tx := txIface.(*entTx)
		n, err := tx.tx.RelationshipEvidence.Query().
			Where(
				relationshipevidence.RunIDEQ(runID),
				relationshipevidence.RelationshipHashEQ(relationshipHash),
			).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count evidence: %w", err)
		}
		count = n

		_, err = tx.tx.Relationship.Update().
			Where(relationship.RunIDEQ(runID), relationship.RelationshipHashEQ(relationshipHash)).
			SetEvidenceCount(n).
			Save(ctx)
		if err != nil && !ent.IsNotFound(err) {
			return fmt.Errorf("sync evidence count: %w", err)
		}
		return nil
	})
	return count, err
}

func (s *entStore) ListEvidence(ctx context.Context, runID, relationshipHash string) ([]models.RelationshipEvidence, error) {
	rows, err := s.client.RelationshipEvidence.Query().
		Where(
			relationshipevidence.RunIDEQ(runID),
			relationshipevidence.RelationshipHashEQ(relationshipHash),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	out := make([]models.RelationshipEvidence, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModelEvidence(r))
	}
	return out, nil
}

func (s *entStore) CountContradictingPasses(ctx context.Context, runID, sourcePOIID, targetPOIID, excludeType string) (int, error) {
	rows, err := s.client.RelationshipEvidence.Query().
		Where(
			relationshipevidence.RunIDEQ(runID),
			relationshipevidence.SourcePoiIDEQ(sourcePOIID),
			relationshipevidence.TargetPoiIDEQ(targetPOIID),
			relationshipevidence.TypeNEQ(excludeType),
		).
		GroupBy(relationshipevidence.FieldType).
		Strings(ctx)
	if err != nil {
		return 0, fmt.Errorf("count contradicting passes: %w", err)
	}
	return len(rows), nil
}

func (s *entStore) ListValidatedRelationships(ctx context.Context, runID string) ([]models.Relationship, error) {
	rows, err := s.client.Relationship.Query().
		Where(relationship.RunIDEQ(runID), relationship.StatusEQ(relationship.StatusValidated)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list validated relationships: %w", err)
	}
	out := make([]models.Relationship, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModelRelationship(r))
	}
	return out, nil
}

func (s *entStore) ListPOIs(ctx context.Context, runID string) ([]models.POI, error) {
	rows, err := s.client.POI.Query().
		Where(poi.RunIDEQ(runID)).
		WithFile().
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pois: %w", err)
	}
	out := make([]models.POI, 0, len(rows))
	for _, r := range rows {
		m := toModelPOI(r)
		if r.Edges.File != nil {
			m.FilePath = r.Edges.File.Path
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *entStore) GetDirectorySummary(ctx context.Context, runID, directoryPath string) (*models.DirectorySummary, error) {
	row, err := s.client.DirectorySummary.Query().
		Where(
			directorysummary.RunIDEQ(runID),
			directorysummary.DirectoryPathEQ(directoryPath),
		).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get directory summary: %w", err)
	}
	m := toModelDirectorySummary(row)
	return &m, nil
}

func (s *entStore) ListDirectorySummaries(ctx context.Context, runID string) ([]models.DirectorySummary, error) {
	rows, err := s.client.DirectorySummary.Query().
		Where(directorysummary.RunIDEQ(runID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list directory summaries: %w", err)
	}
	out := make([]models.DirectorySummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModelDirectorySummary(r))
	}
	return out, nil
}

func (s *entStore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	row, err := s.client.Run.Get(ctx, runID)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	m := toModelRun(row)
	return &m, nil
}

func (s *entStore) UpsertRun(ctx context.Context, r models.Run) error {
	err := s.client.Run.Create().
		SetID(r.ID).
		SetRootPath(r.RootPath).
		SetPhase(runPhaseFromModel(r.Phase)).
		SetNillableErrorMessage(nilIfEmpty(r.ErrorMessage)).
		OnConflictColumns("run_id").
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *entStore) Ping(ctx context.Context) error {
	_, err := s.client.Run.Query().Limit(1).Count(ctx)
	return err
}

func (s *entStore) Close() error {
	return s.client.Close()
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
