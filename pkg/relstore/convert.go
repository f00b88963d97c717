package relstore

import (
	"github.com/codegraph-dev/codegraph/ent"
	"github.com/codegraph-dev/codegraph/ent/relationshipevidence"
	"github.com/codegraph-dev/codegraph/ent/run"
	"github.com/codegraph-dev/codegraph/pkg/models"
)

func toModelFile(r *ent.File) models.File {
	f := models.File{
		ID:        r.ID,
		RunID:     r.RunID,
		Path:      r.Path,
		Checksum:  r.Checksum,
		Status:    models.FileStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.SpecialType != nil {
		f.SpecialType = *r.SpecialType
	}
	if r.ErrorMessage != nil {
		f.ErrorMessage = *r.ErrorMessage
	}
	return f
}

func toModelPOI(r *ent.POI) models.POI {
	return models.POI{
		ID:        r.ID,
		RunID:     r.RunID,
		FileID:    r.FileID,
		Name:      r.Name,
		Type:      r.Type,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		Snippet:   r.Snippet,
	}
}

func toModelEvidence(r *ent.RelationshipEvidence) models.RelationshipEvidence {
	return models.RelationshipEvidence{
		ID:               r.ID,
		RunID:            r.RunID,
		RelationshipHash: r.RelationshipHash,
		SourcePOIID:      r.SourcePoiID,
		TargetPOIID:      r.TargetPoiID,
		Type:             r.Type,
		RawConfidence:    r.RawConfidence,
		Pass:             models.EvidencePass(r.Pass),
		Payload:          r.Payload,
		CreatedAt:        r.CreatedAt,
	}
}

func toModelRelationship(r *ent.Relationship) models.Relationship {
	return models.Relationship{
		ID:               r.ID,
		RunID:            r.RunID,
		RelationshipHash: r.RelationshipHash,
		SourcePOIID:      r.SourcePoiID,
		TargetPOIID:      r.TargetPoiID,
		Type:             r.Type,
		Confidence:       r.Confidence,
		Status:           models.RelationshipStatus(r.Status),
		EvidenceCount:    r.EvidenceCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toModelOutboxEvent(r *ent.OutboxEvent) models.OutboxEvent {
	e := models.OutboxEvent{
		ID:          r.ID,
		RunID:       r.RunID,
		EventType:   models.OutboxEventType(r.EventType),
		Payload:     r.Payload,
		Status:      models.OutboxStatus(r.Status),
		Attempts:    r.Attempts,
		CreatedAt:   r.CreatedAt,
		PublishedAt: r.PublishedAt,
	}
	if r.LastError != nil {
		e.LastError = *r.LastError
	}
	return e
}

func toModelManifest(r *ent.RunManifest) models.RunManifest {
	return models.RunManifest{
		RunID:                r.RunID,
		TotalFiles:           r.TotalFiles,
		DirectoryChildCounts: r.DirectoryChildCounts,
		Directories:          r.Directories,
		Sealed:               r.Sealed,
	}
}

func toModelRun(r *ent.Run) models.Run {
	m := models.Run{
		ID:          r.ID,
		RootPath:    r.RootPath,
		Phase:       models.RunPhase(r.Phase),
		StartedAt:   r.StartedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.ErrorMessage != nil {
		m.ErrorMessage = *r.ErrorMessage
	}
	return m
}

func toModelDirectorySummary(r *ent.DirectorySummary) models.DirectorySummary {
	return models.DirectorySummary{
		ID:            r.ID,
		RunID:         r.RunID,
		DirectoryPath: r.DirectoryPath,
		SummaryText:   r.SummaryText,
		POISampleSize: r.PoiSampleSize,
		CreatedAt:     r.CreatedAt,
	}
}

func relationshipEvidencePassFromModel(p models.EvidencePass) relationshipevidence.Pass {
	return relationshipevidence.Pass(p)
}

func runPhaseFromModel(p models.RunPhase) run.Phase {
	return run.Phase(p)
}
