package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RelationshipEvidence holds the schema definition for one raw observation
// of a (possibly later validated) relationship. Append-only within a run.
type RelationshipEvidence struct {
	ent.Schema
}

// Fields of the RelationshipEvidence.
func (RelationshipEvidence) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Immutable(),
		field.String("relationship_hash").
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("source_poi_id").
			Immutable(),
		field.String("target_poi_id").
			Immutable(),
		field.String("type").
			Immutable().
			Comment("CALLS, IMPORTS, USES, EXTENDS, IMPLEMENTS, CONTAINS, WRITES, READS"),
		field.Float("raw_confidence").
			Immutable(),
		field.Enum("pass").
			Values("intra_file", "intra_directory", "global", "deterministic").
			Immutable(),
		field.JSON("payload", map[string]any{}).
			Optional().
			Immutable().
			Comment("evidence_text / reason / source pass-specific detail"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the RelationshipEvidence.
func (RelationshipEvidence) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "relationship_hash"),
		index.Fields("run_id", "source_poi_id", "target_poi_id"),
	}
}
