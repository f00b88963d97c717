package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Job holds the schema definition for one queued unit of work. The Queue
// package (pkg/queue) claims, retries and dead-letters rows here using
// SELECT ... FOR UPDATE SKIP LOCKED, the same claim pattern RelStore uses
// for the outbox.
type Job struct {
	ent.Schema
}

// Fields of the Job.
func (Job) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("job_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("queue").
			Immutable().
			Comment("file-analysis, relationship-analysis-poi, directory-resolution, validation, reconciliation, graph-build"),
		field.JSON("payload", map[string]any{}).
			Immutable(),
		field.Enum("status").
			Values("pending", "claimed", "completed", "failed", "dead").
			Default("pending"),
		field.String("dedup_key").
			Optional().
			Nillable(),
		field.String("parent_job_id").
			Optional().
			Nillable(),
		field.JSON("depends_on", []string{}).
			Optional().
			Comment("job ids that must reach completed before this job is claimable"),
		field.Int("pending_deps").
			Default(0).
			Comment("number of depends_on entries at enqueue time; not updated afterwards, claim checks each depends_on job's status instead"),
		field.Int("attempts").
			Default(0),
		field.Int("max_attempts").
			Default(3),
		field.String("last_error").
			Optional().
			Nillable(),
		field.String("claimed_by").
			Optional().
			Nillable(),
		field.Time("available_at").
			Default(time.Now),
		field.Time("claimed_at").
			Optional().
			Nillable(),
		field.Time("last_heartbeat_at").
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

// Indexes of the Job.
func (Job) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("queue", "status", "available_at"),
		index.Fields("run_id"),
		index.Fields("dedup_key"),
		index.Fields("status", "claimed_at"),
	}
}

// QueueState holds the schema definition for a named queue's pause flag.
// EntityScout seeds file-analysis and directory-resolution jobs into a
// paused queue so the Reconciler cannot race ahead of a still-in-progress
// scout walk, then resumes both once seeding is complete.
type QueueState struct {
	ent.Schema
}

// Fields of the QueueState.
func (QueueState) Fields() []ent.Field {
	return []ent.Field{
		field.String("name").
			StorageKey("queue_name").
			Unique().
			Immutable(),
		field.Bool("paused").
			Default(false),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}
