// Package outbox stores lifecycle events in the same transaction as the
// booking change and relays them to Kafka.
package outbox

import (
	"context"
	"fmt"
	"time"

	"taxi-service/internal/events"
	"taxi-service/pkg/db"
)

// Repository is the Postgres side of the outbox.
type Repository struct {
	tx *db.TxManager
}

// NewRepository returns a repository that joins the transaction in ctx, if any.
func NewRepository(tx *db.TxManager) *Repository { return &Repository{tx: tx} }

// Add queues msg for publication.
func (r *Repository) Add(ctx context.Context, msg events.Message) error {
	_, err := r.tx.Conn(ctx).Exec(ctx, `
		INSERT INTO outbox (id, event_type, aggregate_id, payload, producer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		msg.ID, msg.Type, msg.AggregateID, []byte(msg.Payload), msg.Producer, msg.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchBatch claims up to limit new events, oldest first. Claimed rows move
// to 'processing' so concurrent pollers skip them.
func (r *Repository) FetchBatch(ctx context.Context, limit int) ([]events.Message, error) {
	rows, err := r.tx.Conn(ctx).Query(ctx, `
		WITH claimed AS (
			SELECT id FROM outbox
			WHERE status = 'new'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox o
		SET status = 'processing', attempts = o.attempts + 1, updated_at = NOW()
		FROM claimed
		WHERE o.id = claimed.id
		RETURNING o.id, o.event_type, o.aggregate_id, o.payload, o.producer, o.created_at`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var out []events.Message
	for rows.Next() {
		var m events.Message
		var payload []byte
		if err := rows.Scan(&m.ID, &m.Type, &m.AggregateID, &payload, &m.Producer, &m.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		m.Payload = payload
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox batch: %w", err)
	}
	sortByOccurred(out)
	return out, nil
}

// MarkProcessed records successful publication.
func (r *Repository) MarkProcessed(ctx context.Context, ids []string) error {
	if _, err := r.tx.Conn(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'processed', updated_at = NOW() WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed hands events back to the next poll.
func (r *Repository) MarkFailed(ctx context.Context, ids []string) error {
	if _, err := r.tx.Conn(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'new', updated_at = NOW() WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RequeueStale releases events left in 'processing' by a poller that died.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.tx.Conn(ctx).Exec(ctx, `
		UPDATE outbox SET status = 'new', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < NOW() - make_interval(secs => $1)`,
		olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale: %w", err)
	}
	return tag.RowsAffected(), nil
}
