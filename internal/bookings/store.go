package bookings

import (
	"context"

	"taxi-service/internal/events"
)

// Store persists bookings. Every write carries the lifecycle event to queue
// with it; the two commit or fail together.
type Store interface {
	Insert(ctx context.Context, b *Booking, evt events.Message) error
	Get(ctx context.Context, id string) (*Booking, error)
	GetByReference(ctx context.Context, ref string) (*Booking, error)
	List(ctx context.Context, f ListFilter) ([]*Booking, error)
	// Update writes b if the stored row still matches expected. It returns
	// domain.ErrConflict when it does not and domain.ErrNotFound when the
	// row is gone. evt may be nil for edits nobody needs to hear about.
	Update(ctx context.Context, b *Booking, expected Version, evt *events.Message) error
	Delete(ctx context.Context, id string, expected Version, evt events.Message) error
}

// Outbox queues events inside the caller's transaction.
type Outbox interface {
	Add(ctx context.Context, msg events.Message) error
}
