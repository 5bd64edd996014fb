package bookings

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"taxi-service/internal/domain"
	"taxi-service/internal/fare"
)

var t0 = time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

func booked(status Status) *Booking {
	return &Booking{
		ID:        "b-1",
		Reference: "TX-261020-ABCDEF",
		Status:    status,
		Price: Price{
			Amount:     54.72,
			Currency:   "EUR",
			PriceRange: &fare.PriceRange{Min: 45.60, Max: 54.72},
		},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled}
	legal := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:    true,
		{StatusPending, StatusCancelled}:    true,
		{StatusConfirmed, StatusInProgress}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusInProgress, StatusCompleted}: true,
	}
	for _, from := range all {
		for _, to := range all {
			b := booked(from)
			before := *b
			err := Transition(b, to, t0.Add(time.Hour))
			if legal[[2]Status{from, to}] {
				if err != nil || b.Status != to {
					t.Fatalf("%s -> %s: err=%v status=%s", from, to, err, b.Status)
				}
				continue
			}
			var te domain.TransitionError
			if !errors.As(err, &te) || te.From != string(from) || te.To != string(to) {
				t.Fatalf("%s -> %s: err = %v, want TransitionError", from, to, err)
			}
			if !errors.Is(err, domain.ErrIllegalTransition) {
				t.Fatalf("%s -> %s: not an IllegalTransition", from, to)
			}
			if !reflect.DeepEqual(*b, before) {
				t.Fatalf("%s -> %s: failed transition mutated the booking", from, to)
			}
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.IsTerminal() || len(NextStatuses(s)) != 0 {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if StatusConfirmed.IsTerminal() || Status("archived").IsTerminal() {
		t.Fatalf("non-terminal state reported terminal")
	}
}

func TestFullLifecycleStampsOnce(t *testing.T) {
	b := booked(InitialStatus)
	start := t0.Add(time.Hour)
	end := start.Add(40 * time.Minute)

	if err := Transition(b, StatusInProgress, start); err != nil {
		t.Fatal(err)
	}
	if b.StartedAt == nil || !b.StartedAt.Equal(start) {
		t.Fatalf("startedAt = %v", b.StartedAt)
	}
	if err := Transition(b, StatusCompleted, end); err != nil {
		t.Fatal(err)
	}
	if b.CompletedAt == nil || !b.CompletedAt.After(*b.StartedAt) || b.Status != StatusCompleted {
		t.Fatalf("completedAt = %v startedAt = %v", b.CompletedAt, b.StartedAt)
	}
	if !b.UpdatedAt.Equal(end) {
		t.Fatalf("updatedAt = %v", b.UpdatedAt)
	}
	for _, to := range []Status{StatusInProgress, StatusConfirmed, StatusCancelled, StatusCompleted} {
		if err := Transition(b, to, end.Add(time.Hour)); !errors.Is(err, domain.ErrIllegalTransition) {
			t.Fatalf("completed -> %s: err = %v", to, err)
		}
	}
}

func TestTransitionKeepsExistingStartedAt(t *testing.T) {
	earlier := t0.Add(-time.Hour)
	b := booked(StatusConfirmed)
	b.StartedAt = &earlier
	if err := Transition(b, StatusInProgress, t0); err != nil {
		t.Fatal(err)
	}
	if !b.StartedAt.Equal(earlier) {
		t.Fatalf("startedAt overwritten: %v", b.StartedAt)
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" In_Progress "); err != nil || s != StatusInProgress {
		t.Fatalf("ParseStatus = %q, %v", s, err)
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, domain.ErrInvalidTripParameters) {
		t.Fatalf("err = %v", err)
	}
	b := booked(StatusConfirmed)
	if err := Transition(b, Status("archived"), t0); !errors.Is(err, domain.ErrInvalidTripParameters) {
		t.Fatalf("unknown target: err = %v", err)
	}
}

func TestApplyFinalPrice(t *testing.T) {
	staff := domain.Actor{ID: "s", Role: domain.RoleStaff}
	admin := domain.Actor{ID: "a", Role: domain.RoleAdmin}

	b := booked(StatusCompleted)
	if err := ApplyFinalPrice(b, 50, staff, t0); err != nil {
		t.Fatalf("in range: %v", err)
	}
	if *b.Price.FinalPrice != 50 || b.Status != StatusCompleted {
		t.Fatalf("price = %v status = %s", *b.Price.FinalPrice, b.Status)
	}

	if err := ApplyFinalPrice(b, 52, staff, t0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("staff override: err = %v", err)
	}
	if err := ApplyFinalPrice(b, 54.72, admin, t0); err != nil || *b.Price.FinalPrice != 54.72 {
		t.Fatalf("admin override: err = %v", err)
	}

	for _, amount := range []float64{45.59, 54.73, -1} {
		before := *b.Price.FinalPrice
		err := ApplyFinalPrice(b, amount, admin, t0)
		var pe domain.PriceRangeError
		if !errors.As(err, &pe) || !errors.Is(err, domain.ErrPriceOutOfRange) {
			t.Fatalf("amount %v: err = %v", amount, err)
		}
		if *b.Price.FinalPrice != before {
			t.Fatalf("amount %v mutated the final price", amount)
		}
	}
}

func TestApplyFinalPriceWithoutRange(t *testing.T) {
	b := booked(StatusConfirmed)
	b.Price.PriceRange = nil
	err := ApplyFinalPrice(b, 30, domain.Actor{Role: domain.RoleAdmin}, t0)
	if !errors.Is(err, domain.ErrNoRangeDefined) || b.Price.FinalPrice != nil {
		t.Fatalf("err = %v final = %v", err, b.Price.FinalPrice)
	}
}
