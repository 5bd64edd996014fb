package bookings

import (
	"math"
	"strings"
	"time"

	"taxi-service/internal/domain"
)

// transitions lists the legal next states. pending only exists on rows
// imported from the previous back-office; new bookings start confirmed.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// InitialStatus is the state every new booking starts in.
const InitialStatus = StatusConfirmed

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool { return s.Valid() && len(transitions[s]) == 0 }

// ParseStatus accepts a status literal, ignoring case and surrounding space.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", domain.Invalid("status", "is unknown: "+raw)
	}
	return s, nil
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the states reachable from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// Transition moves b to status to and stamps the lifecycle timestamps.
// On error b is left untouched.
func Transition(b *Booking, to Status, now time.Time) error {
	if !to.Valid() {
		return domain.Invalid("status", "is unknown: "+string(to))
	}
	if !CanTransition(b.Status, to) {
		return domain.TransitionError{From: string(b.Status), To: string(to)}
	}

	b.Status = to
	switch to {
	case StatusInProgress:
		if b.StartedAt == nil {
			b.StartedAt = timePtr(now)
		}
	case StatusCompleted:
		if b.CompletedAt == nil {
			b.CompletedAt = timePtr(now)
		}
	}
	b.UpdatedAt = now
	return nil
}

// ApplyFinalPrice records the charged amount, which must lie in the quoted
// band. A final price already set may only be changed by an admin.
func ApplyFinalPrice(b *Booking, amount float64, actor domain.Actor, now time.Time) error {
	if b.Price.PriceRange == nil {
		return domain.ErrNoRangeDefined
	}
	if b.Price.FinalPrice != nil && !actor.IsAdmin() {
		return domain.ErrForbidden
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return domain.Invalid("amount", "must be a number")
	}
	amount = math.Round(amount*100) / 100
	rng := *b.Price.PriceRange
	if !rng.Contains(amount) {
		return domain.PriceRangeError{Amount: amount, Min: rng.Min, Max: rng.Max}
	}
	b.Price.FinalPrice = &amount
	b.UpdatedAt = now
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
