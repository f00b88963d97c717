package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Relationship holds the schema definition for a validated (or rejected)
// edge between two POIs. One row per relationship_hash per run; evidence
// accumulates separately in RelationshipEvidence and is folded into this
// row by the reconciler.
type Relationship struct {
	ent.Schema
}

// Fields of the Relationship.
func (Relationship) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("relationship_id").
			Unique().
			Immutable(),
		field.String("relationship_hash").
			Immutable().
			Comment("H(source_poi_id, target_poi_id, uppercase(type))"),
		field.String("run_id").
			Immutable(),
		field.String("source_poi_id").
			Immutable(),
		field.String("target_poi_id").
			Immutable(),
		field.String("type").
			Immutable(),
		field.Float("confidence").
			Default(0),
		field.Enum("status").
			Values("pending", "validated", "rejected").
			Default("pending"),
		field.Int("evidence_count").
			Default(0),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the Relationship.
func (Relationship) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "relationship_hash").
			Unique(),
		index.Fields("run_id", "status"),
	}
}
