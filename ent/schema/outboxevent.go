package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OutboxEvent holds the schema definition for the transactional outbox:
// every write that must eventually become a Queue job is persisted here
// in the same transaction as the domain write, and OutboxPublisher polls
// and fans it out. id is monotonic so publish order matches write order.
type OutboxEvent struct {
	ent.Schema
}

// Fields of the OutboxEvent.
func (OutboxEvent) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("event_type").
			Immutable().
			Comment("file-analysis-finding, relationship-finding, directory-summary-finding"),
		field.JSON("payload", map[string]any{}).
			Immutable(),
		field.Enum("status").
			Values("pending", "published", "failed").
			Default("pending"),
		field.Int("attempts").
			Default(0),
		field.String("last_error").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("published_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the OutboxEvent.
func (OutboxEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "id"),
		index.Fields("run_id"),
	}
}
