package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_till/internal/domain"
)

// OutboxEvent is a sale event waiting to be published to the reporting and
// recommendation collaborators.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

func (r *Repository) UnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		ev := &OutboxEvent{}
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w: %w", domain.ErrStorageFailure, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w: %w", domain.ErrStorageFailure, err)
	}
	return events, nil
}

func (r *Repository) MarkEventProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = ? WHERE id = ?`, r.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w: %w", id, domain.ErrStorageFailure, err)
	}
	return nil
}
