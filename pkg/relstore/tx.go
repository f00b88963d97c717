package relstore

import (
	"context"
	"fmt"

	"github.com/codegraph-dev/codegraph/ent"
	"github.com/codegraph-dev/codegraph/ent/directorysummary"
	"github.com/codegraph-dev/codegraph/ent/file"
	"github.com/codegraph-dev/codegraph/ent/relationship"
	"github.com/codegraph-dev/codegraph/pkg/models"
)

// entTx wraps an *ent.Tx so every write in one RelStore.WithTx call commits
// (or rolls back) together, per spec.md C1's ACID requirement.
type entTx struct {
	tx *ent.Tx
}

func (t *entTx) UpsertFile(ctx context.Context, f models.File) error {
	err := t.tx.File.Create().
		SetID(f.ID).
		SetRunID(f.RunID).
		SetPath(f.Path).
		SetChecksum(f.Checksum).
		SetStatus(file.Status(f.Status)).
		SetNillableSpecialType(nilIfEmpty(f.SpecialType)).
		OnConflictColumns("file_id").
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	return nil
}

func (t *entTx) UpdateFileStatus(ctx context.Context, fileID string, status models.FileStatus, errMsg string) error {
	upd := t.tx.File.UpdateOneID(fileID).SetStatus(file.Status(status))
	if errMsg != "" {
		upd = upd.SetErrorMessage(errMsg)
	} else {
		upd = upd.ClearErrorMessage()
	}
	if _, err := upd.Save(ctx); err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}

func (t *entTx) InsertPOIs(ctx context.Context, pois []models.POI) error {
	if len(pois) == 0 {
		return nil
	}
	builders := make([]*ent.POICreate, 0, len(pois))
	for _, p := range pois {
		builders = append(builders, t.tx.POI.Create().
			SetID(p.ID).
			SetRunID(p.RunID).
			SetFileID(p.FileID).
			SetName(p.Name).
			SetType(p.Type).
			SetStartLine(p.StartLine).
			SetEndLine(p.EndLine).
			SetSnippet(p.Snippet))
	}
	if err := t.tx.POI.CreateBulk(builders...).
		OnConflictColumns("poi_id").
		DoNothing().
		Exec(ctx); err != nil {
		return fmt.Errorf("insert pois: %w", err)
	}
	return nil
}

func (t *entTx) AppendEvidence(ctx context.Context, evidence []models.RelationshipEvidence) error {
	if len(evidence) == 0 {
		return nil
	}
	builders := make([]*ent.RelationshipEvidenceCreate, 0, len(evidence))
	for _, e := range evidence {
		builders = append(builders, t.tx.RelationshipEvidence.Create().
			SetRelationshipHash(e.RelationshipHash).
			SetRunID(e.RunID).
			SetSourcePoiID(e.SourcePOIID).
			SetTargetPoiID(e.TargetPOIID).
			SetType(e.Type).
			SetRawConfidence(e.RawConfidence).
			SetPass(relationshipEvidencePassFromModel(e.Pass)).
			SetPayload(e.Payload))
	}
	if _, err := t.tx.RelationshipEvidence.CreateBulk(builders...).Save(ctx); err != nil {
		return fmt.Errorf("append evidence: %w", err)
	}
	return nil
}

func (t *entTx) UpsertValidatedRelationship(ctx context.Context, rel models.Relationship) error {
	err := t.tx.Relationship.Create().
		SetID(rel.ID).
		SetRelationshipHash(rel.RelationshipHash).
		SetRunID(rel.RunID).
		SetSourcePoiID(rel.SourcePOIID).
		SetTargetPoiID(rel.TargetPOIID).
		SetType(rel.Type).
		SetConfidence(rel.Confidence).
		SetStatus(relationship.Status(rel.Status)).
		SetEvidenceCount(rel.EvidenceCount).
		OnConflictColumns("relationship_id").
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert validated relationship: %w", err)
	}
	return nil
}

func (t *entTx) UpsertDirectorySummary(ctx context.Context, summary models.DirectorySummary) error {
	err := t.tx.DirectorySummary.Create().
		SetID(summary.ID).
		SetRunID(summary.RunID).
		SetDirectoryPath(summary.DirectoryPath).
		SetSummaryText(summary.SummaryText).
		SetPoiSampleSize(summary.POISampleSize).
		OnConflictColumns("directory_summary_id").
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert directory summary: %w", err)
	}
	return nil
}

func (t *entTx) InsertOutbox(ctx context.Context, event models.OutboxEvent) error {
	_, err := t.tx.OutboxEvent.Create().
		SetRunID(event.RunID).
		SetEventType(string(event.EventType)).
		SetPayload(event.Payload).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (t *entTx) SealManifest(ctx context.Context, manifest models.RunManifest) error {
	err := t.tx.RunManifest.Create().
		SetRunID(manifest.RunID).
		SetTotalFiles(manifest.TotalFiles).
		SetDirectoryChildCounts(manifest.DirectoryChildCounts).
		SetDirectories(manifest.Directories).
		SetSealed(true).
		OnConflictColumns("run_id").
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seal manifest: %w", err)
	}
	return nil
}

func (t *entTx) Commit() error   { return t.tx.Commit() }
func (t *entTx) Rollback() error { return t.tx.Rollback() }
