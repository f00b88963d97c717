package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates jsonb GIN indexes on payload columns the ent
// schema DSL has no way to express. outbox_events.payload is queried by
// key during fan-out; relationship_evidences.payload is queried by the
// reconciler when explaining confidence to operators.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_outbox_events_payload_gin
		ON outbox_events USING gin(payload)`)
	if err != nil {
		return fmt.Errorf("create outbox_events payload GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_relationship_evidences_payload_gin
		ON relationship_evidences USING gin(payload)`)
	if err != nil {
		return fmt.Errorf("create relationship_evidences payload GIN index: %w", err)
	}

	return nil
}
