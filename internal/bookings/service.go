// Package bookings implements the booking record, its status lifecycle and
// the HTTP endpoints customers and staff use to drive it.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"taxi-service/internal/domain"
	"taxi-service/internal/events"
	"taxi-service/internal/fare"
	"taxi-service/pkg/metrics"
	"taxi-service/pkg/validation"
)

// Quoter prices trips. *pricing.Service satisfies it.
type Quoter interface {
	Estimate(ctx context.Context, req fare.TripRequest) (fare.Quote, error)
	EstimateWithFallback(ctx context.Context, req fare.TripRequest) (fare.Quote, bool, error)
}

const (
	maxWriteAttempts = 3
	defaultPageSize  = 50
	maxPageSize      = 200
	// A quoted band the client sends back may differ from ours by rounding.
	rangeTolerance = 0.01
)

// Service contains booking business logic.
type Service struct {
	store    Store
	quoter   Quoter
	currency string
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a booking service. Prices are expressed in currency and
// references are dated in loc.
func NewService(store Store, quoter Quoter, currency string, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, quoter: quoter, currency: currency, loc: loc, now: time.Now}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// timestamps are stored with microsecond precision; keep the in-memory
// copy comparable with what Postgres returns.
func (s *Service) stamp() time.Time { return s.now().UTC().Truncate(time.Microsecond) }

// Create prices the trip again and stores a confirmed booking.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	req.Trip.Historical = false
	if req.Trip.VehicleClass == "" {
		return nil, domain.Invalid("trip.vehicleClass", "is required")
	}
	if err := validateContact(req.Customer, req.FlightNumber, req.TrainNumber); err != nil {
		return nil, err
	}

	q, err := s.quoter.Estimate(ctx, req.Trip)
	if err != nil {
		return nil, err
	}
	opt, ok := q.Option(req.Trip.VehicleClass.Category())
	if !ok {
		return nil, domain.Invalid("trip.vehicleClass", "cannot seat the party")
	}
	if chosen := req.PriceRange; chosen != nil &&
		(math.Abs(chosen.Min-opt.Range.Min) > rangeTolerance || math.Abs(chosen.Max-opt.Range.Max) > rangeTolerance) {
		return nil, domain.Invalid("priceRange", "no longer matches the current estimate, please estimate again")
	}

	b := s.newBooking(req.Trip, req.Customer, SourceWeb)
	b.FlightNumber = validation.NormalizeReference(req.FlightNumber)
	b.TrainNumber = validation.NormalizeReference(req.TrainNumber)
	b.SpecialRequests = strings.TrimSpace(req.SpecialRequests)
	applyQuote(b, q, opt, false)

	if err := s.insert(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// QuickCreate stores a booking typed in by staff. Past pickups are allowed
// when Historical is set. Routing failures fall back to a flat estimate and
// a trip without coordinates is stored with the typed amount and no band.
func (s *Service) QuickCreate(ctx context.Context, actor domain.Actor, req QuickCreateRequest) (*Booking, error) {
	req.Trip.Historical = req.Historical
	if req.Trip.VehicleClass == "" {
		req.Trip.VehicleClass = fare.VehicleSedan
	}
	if err := validateContact(req.Customer, req.FlightNumber, req.TrainNumber); err != nil {
		return nil, err
	}

	b := s.newBooking(req.Trip, req.Customer, SourceAdminQuick)
	b.FlightNumber = validation.NormalizeReference(req.FlightNumber)
	b.TrainNumber = validation.NormalizeReference(req.TrainNumber)
	b.SpecialRequests = strings.TrimSpace(req.SpecialRequests)
	b.InternalNotes = strings.TrimSpace(req.InternalNotes)

	if req.Trip.Pickup.HasCoordinates() && req.Trip.Dropoff.HasCoordinates() {
		q, flat, err := s.quoter.EstimateWithFallback(ctx, req.Trip)
		if err != nil {
			return nil, err
		}
		opt, ok := q.Option(req.Trip.VehicleClass.Category())
		if !ok {
			return nil, domain.Invalid("trip.vehicleClass", "cannot seat the party")
		}
		applyQuote(b, q, opt, flat)
		if req.Amount != nil {
			// The typed amount is the nominal charge; the band stays for the final price.
			amount := *req.Amount
			if !validAmount(amount) {
				return nil, domain.Invalid("amount", "must be a positive number")
			}
			amount = round2(amount)
			if amount < opt.Range.Min || amount > opt.Range.Max {
				return nil, domain.PriceRangeError{Amount: amount, Min: opt.Range.Min, Max: opt.Range.Max}
			}
			b.Price.Amount = amount
		}
	} else {
		if err := s.validateManualTrip(req); err != nil {
			return nil, err
		}
		b.Price.Amount = round2(*req.Amount)
	}

	if err := s.insert(ctx, b); err != nil {
		return nil, err
	}
	log.Printf("[bookings] %s entered %s (%s)", actor.ID, b.Reference, b.Source)
	return b, nil
}

func (s *Service) validateManualTrip(req QuickCreateRequest) error {
	t := req.Trip
	switch {
	case strings.TrimSpace(t.Pickup.Address) == "":
		return domain.Invalid("trip.pickup.address", "is required")
	case strings.TrimSpace(t.Dropoff.Address) == "":
		return domain.Invalid("trip.dropoff.address", "is required")
	case t.PickupAt.IsZero():
		return domain.Invalid("trip.pickupAt", "is required")
	case t.Passengers < fare.MinPassengers || t.Passengers > fare.MaxPassengers:
		return domain.Invalid("trip.passengers", fmt.Sprintf("must be between %d and %d", fare.MinPassengers, fare.MaxPassengers))
	case t.Luggage < fare.MinLuggage || t.Luggage > fare.MaxLuggage:
		return domain.Invalid("trip.luggage", fmt.Sprintf("must be between %d and %d", fare.MinLuggage, fare.MaxLuggage))
	case !t.VehicleClass.Valid():
		return domain.Invalid("trip.vehicleClass", "is unknown")
	case t.Passengers > t.VehicleClass.Capacity():
		return domain.Invalid("trip.passengers", "exceed the vehicle capacity")
	case t.RoundTrip && (t.ReturnAt == nil || t.ReturnAt.Before(t.PickupAt)):
		return domain.Invalid("trip.returnAt", "is required and must follow the pickup")
	case req.Amount == nil || !validAmount(*req.Amount):
		return domain.Invalid("amount", "is required when the trip has no coordinates")
	}
	if !t.Historical && t.PickupAt.Before(s.now()) {
		return domain.Invalid("trip.pickupAt", "is in the past")
	}
	return nil
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *Service) newBooking(trip fare.TripRequest, c Customer, src Source) *Booking {
	now := s.stamp()
	b := &Booking{
		ID:           uuid.NewString(),
		Reference:    NewReference(now, s.loc),
		Status:       InitialStatus,
		Source:       src,
		Pickup:       trip.Pickup,
		Dropoff:      trip.Dropoff,
		PickupAt:     trip.PickupAt.UTC().Truncate(time.Microsecond),
		RoundTrip:    trip.RoundTrip,
		Passengers:   trip.Passengers,
		Luggage:      trip.Luggage,
		VehicleClass: trip.VehicleClass,
		Customer: Customer{
			Name:  strings.TrimSpace(c.Name),
			Email: strings.ToLower(strings.TrimSpace(c.Email)),
			Phone: validation.NormalizePhone(c.Phone),
		},
		Price:     Price{Currency: s.currency},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if trip.RoundTrip && trip.ReturnAt != nil {
		r := trip.ReturnAt.UTC().Truncate(time.Microsecond)
		b.ReturnAt = &r
	}
	return b
}

func applyQuote(b *Booking, q fare.Quote, opt fare.Option, flat bool) {
	bd := opt.Breakdown
	rng := opt.Range
	route := q.Route
	b.Price.Amount = rng.Max
	b.Price.Currency = q.Currency
	b.Price.TariffApplied = q.TariffCode
	b.Price.TariffName = q.TariffName
	b.Price.Breakdown = &bd
	b.Price.PriceRange = &rng
	b.Price.FlatEstimate = flat
	b.Route = &route
}

func (s *Service) insert(ctx context.Context, b *Booking) error {
	for attempt := 1; ; attempt++ {
		evt, err := events.New(events.TypeBookingCreated, b.ID, b.CreatedAt, events.BookingCreated{
			Booking: Snapshot(b),
			Source:  string(b.Source),
		})
		if err != nil {
			return err
		}
		err = s.store.Insert(ctx, b, evt)
		if errors.Is(err, domain.ErrConflict) && attempt < maxWriteAttempts {
			// Reference collision; draw another one.
			b.Reference = NewReference(b.CreatedAt, s.loc)
			continue
		}
		if err != nil {
			return err
		}
		metrics.BookingsCreated.WithLabelValues(string(b.Source)).Inc()
		log.Printf("[bookings] created %s (%s, tariff %s)", b.Reference, b.ID, b.Price.TariffApplied)
		return nil
	}
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Track returns the booking with reference if email matches its customer.
// A mismatch is reported as not found.
func (s *Service) Track(ctx context.Context, reference, email string) (*Booking, error) {
	ref := NormalizeReference(reference)
	if ref == "" || strings.TrimSpace(email) == "" {
		return nil, domain.ErrNotFound
	}
	b, err := s.store.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(b.Customer.Email, strings.TrimSpace(email)) {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

// List returns bookings matching f, most recent pickup first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Booking, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, domain.Invalid("status", "is unknown: "+string(st))
		}
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, domain.Invalid("to", "must follow from")
	}
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Booking{}
	}
	return out, nil
}

// TransitionStatus moves the booking to target. The change and its event are
// written together; a concurrent writer makes the call re-read and re-check.
func (s *Service) TransitionStatus(ctx context.Context, id string, target Status, actor domain.Actor) (*Booking, error) {
	var from Status
	b, err := s.mutate(ctx, id, func(b *Booking) (*events.Message, error) {
		from = b.Status
		now := s.stamp()
		if err := Transition(b, target, now); err != nil {
			return nil, err
		}
		evt, err := events.New(events.TypeBookingStatusChanged, b.ID, now, events.BookingStatusChanged{
			Booking:   Snapshot(b),
			From:      string(from),
			To:        string(target),
			ActorID:   actor.ID,
			ChangedAt: now,
		})
		return &evt, err
	})
	if err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(from), string(target)).Inc()
	log.Printf("[bookings] %s: %s -> %s by %s", b.Reference, from, target, actor.ID)
	return b, nil
}

// SetFinalPrice records the charged amount within the quoted band.
func (s *Service) SetFinalPrice(ctx context.Context, id string, amount float64, actor domain.Actor) (*Booking, error) {
	return s.mutate(ctx, id, func(b *Booking) (*events.Message, error) {
		now := s.stamp()
		if err := ApplyFinalPrice(b, amount, actor, now); err != nil {
			return nil, err
		}
		evt, err := events.New(events.TypeBookingFinalPriceSet, b.ID, now, events.BookingFinalPriceSet{
			Booking: Snapshot(b),
			ActorID: actor.ID,
		})
		return &evt, err
	})
}

// Update applies direct field edits. They bypass the state machine and the
// price, and emit no event.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, actor domain.Actor) (*Booking, error) {
	return s.mutate(ctx, id, func(b *Booking) (*events.Message, error) {
		if req.UpdatedAt != nil && !req.UpdatedAt.Equal(b.UpdatedAt) {
			return nil, fmt.Errorf("%w: booking changed since it was loaded", domain.ErrConflict)
		}
		if err := applyEdits(b, req); err != nil {
			return nil, err
		}
		b.UpdatedAt = s.stamp()
		log.Printf("[bookings] %s edited by %s", b.Reference, actor.ID)
		return nil, nil
	})
}

func applyEdits(b *Booking, req UpdateRequest) error {
	next := *b
	if c := req.Customer; c != nil {
		next.Customer = Customer{
			Name:  strings.TrimSpace(c.Name),
			Email: strings.ToLower(strings.TrimSpace(c.Email)),
			Phone: validation.NormalizePhone(c.Phone),
		}
		if err := validateContact(next.Customer, "", ""); err != nil {
			return err
		}
	}
	if v := req.PickupAddress; v != nil {
		if strings.TrimSpace(*v) == "" {
			return domain.Invalid("pickupAddress", "must not be empty")
		}
		next.Pickup.Address = strings.TrimSpace(*v)
	}
	if v := req.DropoffAddress; v != nil {
		if strings.TrimSpace(*v) == "" {
			return domain.Invalid("dropoffAddress", "must not be empty")
		}
		next.Dropoff.Address = strings.TrimSpace(*v)
	}
	if v := req.PickupAt; v != nil {
		next.PickupAt = v.UTC().Truncate(time.Microsecond)
	}
	if v := req.ReturnAt; v != nil {
		if !next.RoundTrip {
			return domain.Invalid("returnAt", "only applies to round trips")
		}
		r := v.UTC().Truncate(time.Microsecond)
		next.ReturnAt = &r
	}
	if next.RoundTrip && next.ReturnAt != nil && next.ReturnAt.Before(next.PickupAt) {
		return domain.Invalid("returnAt", "precedes the pickup")
	}
	if v := req.Passengers; v != nil {
		if *v < fare.MinPassengers || *v > next.VehicleClass.Capacity() {
			return domain.Invalid("passengers", fmt.Sprintf("must be between %d and %d", fare.MinPassengers, next.VehicleClass.Capacity()))
		}
		next.Passengers = *v
	}
	if v := req.Luggage; v != nil {
		if *v < fare.MinLuggage || *v > fare.MaxLuggage {
			return domain.Invalid("luggage", fmt.Sprintf("must be between %d and %d", fare.MinLuggage, fare.MaxLuggage))
		}
		next.Luggage = *v
	}
	if v := req.FlightNumber; v != nil {
		if !validation.ValidateFlightNumber(*v) {
			return domain.Invalid("flightNumber", "is not a flight number")
		}
		next.FlightNumber = validation.NormalizeReference(*v)
	}
	if v := req.TrainNumber; v != nil {
		if !validation.ValidateTrainNumber(*v) {
			return domain.Invalid("trainNumber", "is not a train number")
		}
		next.TrainNumber = validation.NormalizeReference(*v)
	}
	if v := req.SpecialRequests; v != nil {
		next.SpecialRequests = strings.TrimSpace(*v)
	}
	if v := req.InternalNotes; v != nil {
		next.InternalNotes = strings.TrimSpace(*v)
	}
	if v := req.AdminNotes; v != nil {
		next.AdminNotes = strings.TrimSpace(*v)
	}
	*b = next
	return nil
}

// Delete removes a booking for good. Only admins may do it.
func (s *Service) Delete(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	for attempt := 1; ; attempt++ {
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		evt, err := events.New(events.TypeBookingDeleted, b.ID, s.stamp(), events.BookingDeleted{
			BookingID: b.ID,
			Reference: b.Reference,
			ActorID:   actor.ID,
		})
		if err != nil {
			return err
		}
		err = s.store.Delete(ctx, id, b.Version(), evt)
		if errors.Is(err, domain.ErrConflict) && attempt < maxWriteAttempts {
			metrics.TransitionConflicts.Inc()
			continue
		}
		if err == nil {
			log.Printf("[bookings] %s deleted by %s", b.Reference, actor.ID)
		}
		return err
	}
}

// mutate loads the booking, applies fn and writes it back conditionally.
// When another writer got there first the whole read-check-write is redone,
// so fn sees the fresh state.
func (s *Service) mutate(ctx context.Context, id string, fn func(*Booking) (*events.Message, error)) (*Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	for attempt := 1; ; attempt++ {
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := b.Version()
		evt, err := fn(b)
		if err != nil {
			return nil, err
		}
		err = s.store.Update(ctx, b, expected, evt)
		if errors.Is(err, domain.ErrConflict) && attempt < maxWriteAttempts {
			metrics.TransitionConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func validateContact(c Customer, flight, train string) error {
	switch {
	case !validation.ValidateName(c.Name):
		return domain.Invalid("customer.name", "is required")
	case !validation.ValidateEmail(c.Email):
		return domain.Invalid("customer.email", "is not a valid e-mail address")
	case !validation.ValidatePhone(c.Phone):
		return domain.Invalid("customer.phone", "is not a valid phone number")
	case !validation.ValidateFlightNumber(flight):
		return domain.Invalid("flightNumber", "is not a flight number")
	case !validation.ValidateTrainNumber(train):
		return domain.Invalid("trainNumber", "is not a train number")
	}
	return nil
}

// Snapshot is the event view of a booking.
func Snapshot(b *Booking) events.BookingSnapshot {
	snap := events.BookingSnapshot{
		ID:             b.ID,
		Reference:      b.Reference,
		Status:         string(b.Status),
		CustomerName:   b.Customer.Name,
		CustomerEmail:  b.Customer.Email,
		CustomerPhone:  b.Customer.Phone,
		PickupAddress:  b.Pickup.Address,
		DropoffAddress: b.Dropoff.Address,
		PickupAt:       b.PickupAt,
		RoundTrip:      b.RoundTrip,
		ReturnAt:       b.ReturnAt,
		Passengers:     b.Passengers,
		Luggage:        b.Luggage,
		VehicleClass:   string(b.VehicleClass),
		FlightNumber:   b.FlightNumber,
		TrainNumber:    b.TrainNumber,
		TariffCode:     string(b.Price.TariffApplied),
		Amount:         b.Price.Amount,
		FinalPrice:     b.Price.FinalPrice,
		Currency:       b.Price.Currency,
	}
	if rng := b.Price.PriceRange; rng != nil {
		lo, hi := rng.Min, rng.Max
		snap.PriceMin, snap.PriceMax = &lo, &hi
	}
	return snap
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
