package fare

import (
	"fmt"
	"math"
	"strings"
	"time"

	"taxi-service/internal/domain"
)

// Trip limits accepted by the booking widget.
const (
	MinPassengers = 1
	MaxPassengers = 7
	MinLuggage    = 0
	MaxLuggage    = 7
)

// Estimator selects a tariff and prices a trip. It performs no I/O.
type Estimator struct {
	cfg      Config
	holidays map[string]struct{}
	now      func() time.Time
}

// NewEstimator validates cfg and returns an estimator bound to a copy of it.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	holidays := make(map[string]struct{}, len(cfg.ExtraHolidays))
	for _, d := range cfg.ExtraHolidays {
		holidays[dateKey(d)] = struct{}{}
	}
	cfg.ExtraHolidays = nil
	return &Estimator{cfg: cfg, holidays: holidays, now: time.Now}, nil
}

// WithClock replaces the clock used to reject past pickups.
func (e *Estimator) WithClock(now func() time.Time) *Estimator {
	cp := *e
	cp.now = now
	return &cp
}

// Currency returns the currency prices are expressed in.
func (e *Estimator) Currency() string { return e.cfg.Currency }

// Location returns the time zone the tariff windows are evaluated in.
func (e *Estimator) Location() *time.Location { return e.cfg.Location }

// Validate checks the trip parameters without pricing them.
func (e *Estimator) Validate(req TripRequest) error {
	if req.Passengers < MinPassengers || req.Passengers > MaxPassengers {
		return domain.Invalid("passengers", fmt.Sprintf("must be between %d and %d", MinPassengers, MaxPassengers))
	}
	if req.Luggage < MinLuggage || req.Luggage > MaxLuggage {
		return domain.Invalid("luggage", fmt.Sprintf("must be between %d and %d", MinLuggage, MaxLuggage))
	}
	if req.VehicleClass != "" {
		if !req.VehicleClass.Valid() {
			return domain.Invalid("vehicleClass", "is unknown")
		}
		if req.Passengers > req.VehicleClass.Capacity() {
			return domain.Invalid("passengers", fmt.Sprintf("exceed the %d seats of a %s", req.VehicleClass.Capacity(), req.VehicleClass))
		}
	}
	if req.PickupAt.IsZero() {
		return domain.Invalid("pickupAt", "is required")
	}
	if !req.Historical && req.PickupAt.Before(e.now()) {
		return domain.Invalid("pickupAt", "is in the past")
	}
	if req.RoundTrip {
		if req.ReturnAt == nil {
			return domain.Invalid("returnAt", "is required for a round trip")
		}
		if req.ReturnAt.Before(req.PickupAt) {
			return domain.Invalid("returnAt", "precedes the pickup")
		}
	}
	return nil
}

// Classify picks the tariff for a pickup instant and trip direction.
func (e *Estimator) Classify(pickupAt time.Time, roundTrip bool) (Code, Conditions) {
	local := pickupAt.In(e.cfg.Location)

	dayType := "weekday"
	switch {
	case e.isHoliday(local):
		dayType = "holiday"
	case local.Weekday() == time.Sunday:
		dayType = "sunday"
	case local.Weekday() == time.Saturday:
		dayType = "saturday"
	}

	hour := local.Hour()
	night := hour < e.cfg.DayStartHour || hour >= e.cfg.DayEndHour ||
		dayType == "sunday" || dayType == "holiday"

	cond := Conditions{TimeOfDay: "day", DayType: dayType, ReturnType: "empty"}
	if night {
		cond.TimeOfDay = "night"
	}
	if roundTrip {
		cond.ReturnType = "in_charge"
	}

	var code Code
	switch {
	case !night && roundTrip:
		code = TariffA
	case night && roundTrip:
		code = TariffB
	case !night:
		code = TariffC
	default:
		code = TariffD
	}

	ret := "empty return"
	if roundTrip {
		ret = "return in charge"
	}
	cond.Summary = strings.Join([]string{cond.TimeOfDay, cond.DayType, ret}, ", ")
	return code, cond
}

// Estimate prices a trip for every vehicle category able to seat the party.
func (e *Estimator) Estimate(req TripRequest, route *RouteMetrics) (Quote, error) {
	if err := e.Validate(req); err != nil {
		return Quote{}, err
	}
	if route == nil {
		return Quote{}, domain.Invalid("route", "metrics are missing")
	}
	if !finiteNonNegative(route.DistanceMeters) {
		return Quote{}, domain.Invalid("route.distanceMeters", "must be a non-negative number")
	}
	if !finiteNonNegative(route.DurationSeconds) {
		return Quote{}, domain.Invalid("route.durationSeconds", "must be a non-negative number")
	}

	code, cond := e.Classify(req.PickupAt, req.RoundTrip)

	total := *route
	if req.RoundTrip {
		total.DistanceMeters *= 2
		total.DurationSeconds *= 2
	}

	q := Quote{
		TariffCode: code,
		TariffName: code.Name(),
		Conditions: cond,
		Currency:   e.cfg.Currency,
		Route:      total,
	}
	for _, cat := range []Category{CategoryStandard, CategoryVan} {
		if req.Passengers > cat.Capacity() {
			continue
		}
		rng, bd := e.price(cat, code, cond, total.DistanceMeters/1000, req.Luggage, req.RoundTrip)
		q.Options = append(q.Options, Option{
			Category:  cat,
			Classes:   cat.Classes(),
			Capacity:  cat.Capacity(),
			Range:     rng,
			Breakdown: bd,
		})
	}
	return q, nil
}

// price applies the tariff formula for one category. The van surcharge is
// added after the van floor and before the margin, so a van is always at
// least the standard price plus the surcharge.
func (e *Estimator) price(cat Category, code Code, cond Conditions, distanceKm float64, luggage int, roundTrip bool) (PriceRange, Breakdown) {
	c := e.cfg
	night := cond.TimeOfDay == "night"

	rate := c.Rates.For(code)
	gross := round2(rate * distanceKm)
	discount := 0.0
	if roundTrip {
		discount = round2(gross * c.RoundTripDiscount)
	}
	distanceCharge := round2(gross - discount)

	approach := c.DayApproachFee
	if night {
		approach = c.NightApproachFee
	}

	luggageFee := 0.0
	if extra := luggage - c.FreeLuggage; extra > 0 {
		luggageFee = round2(float64(extra) * c.ExtraLuggageFee)
	}

	raw := round2(c.BaseFare + distanceCharge + approach + luggageFee)

	floor, surcharge := c.MinimumCourse, 0.0
	if cat == CategoryVan {
		floor, surcharge = c.VanMinimumCourse, c.VanSurcharge
	}
	nominal := math.Max(raw, floor)

	min := round2(nominal + surcharge)
	max := round2(min * c.Margin)
	if min > 0 && max <= min {
		max = min + 0.01
	}

	return PriceRange{Min: min, Max: max}, Breakdown{
		TariffCode:         code,
		BaseFare:           c.BaseFare,
		PricePerKm:         rate,
		DistanceKm:         round2(distanceKm),
		DistanceCharge:     distanceCharge,
		RoundTripDiscount:  discount,
		LuggageFee:         luggageFee,
		ApproachFee:        approach,
		RawTotal:           raw,
		MinimumCourse:      floor,
		MinimumApplied:     raw < floor,
		VehicleSurcharge:   surcharge,
		Margin:             c.Margin,
		IsNight:            night,
		IsWeekendOrHoliday: cond.DayType == "sunday" || cond.DayType == "holiday",
		Conditions:         cond,
	}
}

func (e *Estimator) isHoliday(local time.Time) bool {
	if IsPublicHoliday(local) {
		return true
	}
	_, ok := e.holidays[dateKey(local)]
	return ok
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
