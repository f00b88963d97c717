package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// File holds the schema definition for the File entity.
// Created by EntityScout, mutated by FileAnalysisWorker, destroyed by SelfCleaner.
type File struct {
	ent.Schema
}

// Fields of the File.
func (File) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("file_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("path").
			Comment("Absolute or root-relative source path"),
		field.String("checksum").
			Comment("Content hash, used to detect changed files across runs"),
		field.Enum("status").
			Values("pending", "processing", "completed", "failed", "pending_deletion").
			Default("pending"),
		field.String("special_type").
			Optional().
			Nillable().
			Comment("manifest, entrypoint, config, schema, ... or unset"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the File.
func (File) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("pois", POI.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the File.
func (File) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "path").
			Unique(),
		index.Fields("run_id", "status"),
		index.Fields("run_id"),
	}
}
