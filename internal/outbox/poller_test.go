package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taxi-service/internal/events"
)

type memStore struct {
	mu        sync.Mutex
	pending   []events.Message
	processed []string
	failed    []string
	// requeue hands failed events back to pending, as the SQL store does.
	requeue bool
	claimed map[string]events.Message
	fetches int
}

func (s *memStore) FetchBatch(_ context.Context, limit int) ([]events.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	s.fetches++
	out := append([]events.Message(nil), s.pending[:limit]...)
	s.pending = s.pending[limit:]
	if s.claimed == nil {
		s.claimed = make(map[string]events.Message)
	}
	for _, m := range out {
		s.claimed[m.ID] = m
	}
	return out, nil
}

func (s *memStore) MarkProcessed(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, ids...)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, ids...)
	if s.requeue {
		for _, id := range ids {
			s.pending = append(s.pending, s.claimed[id])
		}
	}
	return nil
}

func (s *memStore) RequeueStale(context.Context, time.Duration) (int64, error) { return 0, nil }

type recordingPublisher struct {
	failFor map[string]bool
	sent    []events.Message
}

func (p *recordingPublisher) Publish(_ context.Context, _, _ string, value any) error {
	msg := value.(events.Message)
	if p.failFor[msg.ID] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func msg(id, aggregate string, at time.Time) events.Message {
	return events.Message{ID: id, Type: events.TypeBookingStatusChanged, AggregateID: aggregate, OccurredAt: at}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	t0 := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	store := &memStore{pending: []events.Message{
		msg("e1", "b1", t0),
		msg("e2", "b2", t0.Add(time.Second)),
	}}
	pub := &recordingPublisher{}
	p := NewPoller(store, pub, "booking.events", time.Second, 10)

	n, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 2 || len(pub.sent) != 2 {
		t.Fatalf("claimed %d, sent %d; want 2 and 2", n, len(pub.sent))
	}
	if len(store.processed) != 2 || len(store.failed) != 0 {
		t.Fatalf("processed %v failed %v", store.processed, store.failed)
	}
}

func TestProcessBatchKeepsPerBookingOrder(t *testing.T) {
	t0 := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	store := &memStore{pending: []events.Message{
		msg("e1", "b1", t0),
		msg("e2", "b2", t0.Add(time.Second)),
		msg("e3", "b1", t0.Add(2*time.Second)),
	}}
	pub := &recordingPublisher{failFor: map[string]bool{"e1": true}}
	p := NewPoller(store, pub, "booking.events", time.Second, 10)

	if _, err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].ID != "e2" {
		t.Fatalf("sent %+v, want only e2", pub.sent)
	}
	if len(store.failed) != 2 || store.failed[0] != "e1" || store.failed[1] != "e3" {
		t.Fatalf("failed = %v, want [e1 e3]", store.failed)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	p := NewPoller(&memStore{}, &recordingPublisher{}, "booking.events", 0, 0)
	n, err := p.ProcessBatch(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v, want 0 and nil", n, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(&memStore{}, &recordingPublisher{}, "booking.events", 10*time.Millisecond, 10)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestProcessBatchCountsOnlyPublished(t *testing.T) {
	t0 := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	store := &memStore{pending: []events.Message{msg("e1", "b1", t0), msg("e2", "b2", t0)}}
	pub := &recordingPublisher{failFor: map[string]bool{"e1": true}}
	p := NewPoller(store, pub, "booking.events", time.Second, 2)

	n, err := p.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("published = %d, want 1", n)
	}
}

func TestRunWaitsForTickWhileBrokerIsDown(t *testing.T) {
	t0 := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	store := &memStore{requeue: true, pending: []events.Message{
		msg("e1", "b1", t0),
		msg("e2", "b2", t0),
		msg("e3", "b3", t0),
		msg("e4", "b4", t0),
	}}
	pub := &recordingPublisher{failFor: map[string]bool{"e1": true, "e2": true, "e3": true, "e4": true}}
	p := NewPoller(store, pub, "booking.events", 50*time.Millisecond, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	// About one fetch per tick; a tight retry loop would run thousands.
	if store.fetches == 0 || store.fetches > 12 {
		t.Fatalf("fetches = %d, want one per tick", store.fetches)
	}
	if len(store.pending) != 4 || len(store.processed) != 0 {
		t.Fatalf("pending %d processed %v", len(store.pending), store.processed)
	}
}

func TestSortByOccurred(t *testing.T) {
	t0 := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	msgs := []events.Message{msg("late", "b", t0.Add(time.Minute)), msg("early", "b", t0)}
	sortByOccurred(msgs)
	if msgs[0].ID != "early" {
		t.Fatalf("order = %s, %s", msgs[0].ID, msgs[1].ID)
	}
}
