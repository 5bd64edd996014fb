package outbox

import (
	"context"
	"log"
	"sort"
	"time"

	"taxi-service/internal/events"
	"taxi-service/pkg/metrics"
)

// Store is what the poller needs from the outbox table.
type Store interface {
	FetchBatch(ctx context.Context, limit int) ([]events.Message, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Poller relays outbox rows to Kafka.
type Poller struct {
	store     Store
	pub       Publisher
	topic     string
	interval  time.Duration
	batchSize int
	staleAge  time.Duration
}

// NewPoller builds a poller publishing to topic every interval.
func NewPoller(store Store, pub Publisher, topic string, interval time.Duration, batchSize int) *Poller {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		store:     store,
		pub:       pub,
		topic:     topic,
		interval:  interval,
		batchSize: batchSize,
		staleAge:  time.Minute,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if n, err := p.store.RequeueStale(ctx, p.staleAge); err != nil {
		log.Printf("[outbox] requeue stale events: %v", err)
	} else if n > 0 {
		log.Printf("[outbox] requeued %d stale events", n)
	}

	log.Printf("[outbox] poller started (topic %s, every %s)", p.topic, p.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for ctx.Err() == nil {
				n, err := p.ProcessBatch(ctx)
				if err != nil {
					log.Printf("[outbox] batch failed: %v", err)
					break
				}
				// Drain quickly while full batches go out. A short or
				// partly failed batch waits for the next tick.
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many events went out.
// Events of the same booking keep their order: once one fails, the rest of
// that booking's events in the batch are handed back too.
func (p *Poller) ProcessBatch(ctx context.Context) (int, error) {
	batch, err := p.store.FetchBatch(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	var done, failed []string
	blocked := make(map[string]bool)
	for _, msg := range batch {
		if blocked[msg.AggregateID] {
			failed = append(failed, msg.ID)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.pub.Publish(sendCtx, p.topic, msg.AggregateID, msg)
		cancel()
		if err != nil {
			log.Printf("[outbox] publish %s (%s): %v", msg.ID, msg.Type, err)
			metrics.OutboxPublishErrors.Inc()
			blocked[msg.AggregateID] = true
			failed = append(failed, msg.ID)
			continue
		}
		metrics.OutboxPublished.Inc()
		done = append(done, msg.ID)
	}

	if len(done) > 0 {
		if err := p.store.MarkProcessed(ctx, done); err != nil {
			return len(done), err
		}
	}
	if len(failed) > 0 {
		if err := p.store.MarkFailed(ctx, failed); err != nil {
			log.Printf("[outbox] hand back %d events: %v", len(failed), err)
		}
	}
	return len(done), nil
}

func sortByOccurred(msgs []events.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].OccurredAt.Before(msgs[j].OccurredAt) })
}
