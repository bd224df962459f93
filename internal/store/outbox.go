package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertOutbox records an event to be relayed once the surrounding transaction commits
func (s *Store) InsertOutbox(ctx context.Context, event *models.OutboxEvent) error {
	var created struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := sqlx.GetContext(ctx, s.q, &created, `
		INSERT INTO outbox (event_id, topic, key, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		event.EventID, event.Topic, event.Key, string(event.Payload))
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	event.ID = created.ID
	event.CreatedAt = created.CreatedAt
	return nil
}
