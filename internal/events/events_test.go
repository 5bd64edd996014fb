package events

import (
	"testing"
	"time"
)

func TestNewAndDecode(t *testing.T) {
	at := time.Date(2026, time.October, 20, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	msg, err := New(TypeBookingStatusChanged, "b-1", at, BookingStatusChanged{
		Booking: BookingSnapshot{ID: "b-1", Reference: "TX-261020-ABC123", Status: "in_progress"},
		From:    "confirmed",
		To:      "in_progress",
		ActorID: "staff-1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if msg.ID == "" || msg.Producer != Producer || msg.AggregateID != "b-1" {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	if msg.OccurredAt.Location() != time.UTC || !msg.OccurredAt.Equal(at) {
		t.Fatalf("occurred_at = %v, want %v in UTC", msg.OccurredAt, at)
	}

	var got BookingStatusChanged
	if err := msg.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.From != "confirmed" || got.To != "in_progress" || got.Booking.Reference != "TX-261020-ABC123" {
		t.Fatalf("decoded %+v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	msg := Message{Type: TypeBookingCreated, Payload: []byte(`{"booking":`)}
	var v BookingCreated
	if err := msg.Decode(&v); err == nil {
		t.Fatalf("expected decode error")
	}
}
