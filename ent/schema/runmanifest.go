package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RunManifest holds the schema definition for the scalar and map-valued
// expectations EntityScout publishes once the directory walk completes:
// total file count, per-directory file counts, and the set of directories
// that directly contain a discovered file. DirectoryWorker's gating does
// not read these counts; it comes from the queue's depends_on on each
// directory's file-analysis jobs.
// Relationship-level expected-evidence counts live on Relationship itself
// (evidence_count vs. a derived expectation), so this table only carries
// the scout-time, run-wide structural facts.
type RunManifest struct {
	ent.Schema
}

// Fields of the RunManifest.
func (RunManifest) Fields() []ent.Field {
	return []ent.Field{
		field.String("run_id").
			StorageKey("run_id").
			Unique().
			Immutable(),
		field.Int("total_files").
			Comment("files discovered by EntityScout, excluding ignored paths"),
		field.JSON("directory_child_counts", map[string]int{}).
			Comment("directory_path -> number of discovered files directly in it; subdirectories are not counted"),
		field.JSON("directories", []string{}).
			Comment("every directory that directly contains a discovered file, sorted lexically; directories holding only subdirectories are not listed"),
		field.Bool("sealed").
			Default(false).
			Comment("true once the walk is complete and counts are final"),
	}
}

// Indexes of the RunManifest.
func (RunManifest) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("sealed"),
	}
}
