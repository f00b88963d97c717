package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// POI holds the schema definition for the Point-of-Interest entity
// (function, class, variable, import, table, ...).
//
// id is deterministic: hash(file_path + name + type + start_line), so
// re-analyzing an unchanged file reproduces identical POI ids across runs.
type POI struct {
	ent.Schema
}

// Fields of the POI.
func (POI) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("poi_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("file_id").
			Immutable(),
		field.String("name"),
		field.String("type").
			Comment("function, class, variable, import, table, ..."),
		field.Int("start_line"),
		field.Int("end_line"),
		field.Text("snippet").
			Optional(),
	}
}

// Edges of the POI.
func (POI) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("file", File.Type).
			Ref("pois").
			Field("file_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the POI.
func (POI) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "file_id"),
		index.Fields("run_id"),
	}
}
