// Package events defines the booking lifecycle messages exchanged over Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried in Message.Type.
const (
	TypeBookingCreated       = "booking.created"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeBookingFinalPriceSet = "booking.final_price_set"
	TypeBookingDeleted       = "booking.deleted"
)

// Producer identifies this service in the envelope.
const Producer = "taxi-service"

// Message is the envelope published to Kafka. Payload holds one of the
// payload structs below, encoded as JSON.
type Message struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Producer    string          `json:"producer"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds an envelope around payload.
func New(eventType, aggregateID string, occurredAt time.Time, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Message{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Producer:    Producer,
		OccurredAt:  occurredAt.UTC(),
		Payload:     raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// BookingSnapshot is the booking as consumers need it, without internal notes.
type BookingSnapshot struct {
	ID             string     `json:"id"`
	Reference      string     `json:"reference"`
	Status         string     `json:"status"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email"`
	CustomerPhone  string     `json:"customer_phone"`
	PickupAddress  string     `json:"pickup_address"`
	DropoffAddress string     `json:"dropoff_address"`
	PickupAt       time.Time  `json:"pickup_at"`
	RoundTrip      bool       `json:"round_trip"`
	ReturnAt       *time.Time `json:"return_at,omitempty"`
	Passengers     int        `json:"passengers"`
	Luggage        int        `json:"luggage"`
	VehicleClass   string     `json:"vehicle_class"`
	FlightNumber   string     `json:"flight_number,omitempty"`
	TrainNumber    string     `json:"train_number,omitempty"`
	TariffCode     string     `json:"tariff_code,omitempty"`
	Amount         float64    `json:"amount"`
	PriceMin       *float64   `json:"price_min,omitempty"`
	PriceMax       *float64   `json:"price_max,omitempty"`
	FinalPrice     *float64   `json:"final_price,omitempty"`
	Currency       string     `json:"currency"`
}

// BookingCreated is published once a booking is persisted.
type BookingCreated struct {
	Booking BookingSnapshot `json:"booking"`
	Source  string          `json:"source"`
}

// BookingStatusChanged is published for every applied transition.
type BookingStatusChanged struct {
	Booking   BookingSnapshot `json:"booking"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	ActorID   string          `json:"actor_id"`
	ChangedAt time.Time       `json:"changed_at"`
}

// BookingFinalPriceSet is published when staff fix the charged amount.
type BookingFinalPriceSet struct {
	Booking BookingSnapshot `json:"booking"`
	ActorID string          `json:"actor_id"`
}

// BookingDeleted is published after a hard delete.
type BookingDeleted struct {
	BookingID string `json:"booking_id"`
	Reference string `json:"reference"`
	ActorID   string `json:"actor_id"`
}
