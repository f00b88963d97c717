package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DirectorySummary holds the schema definition for a DirectoryWorker's
// natural-language summary of one directory, produced once every file in
// it has finished analysis. A directory with files of its own does not wait
// for its child directories' summaries; a directory with no files of its
// own is summarized once all of its child directories have summaries.
type DirectorySummary struct {
	ent.Schema
}

// Fields of the DirectorySummary.
func (DirectorySummary) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("directory_summary_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("directory_path").
			Immutable(),
		field.Text("summary_text"),
		field.Int("poi_sample_size").
			Comment("number of top-K POIs fed to the prompt"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the DirectorySummary.
func (DirectorySummary) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "directory_path").
			Unique(),
	}
}
