package fare

import (
	"errors"
	"fmt"
	"time"
)

// Tariff defaults, in euros.
const (
	DefaultBaseFare          = 2.60
	DefaultRateA             = 1.00
	DefaultRateB             = 1.50
	DefaultRateC             = 2.00
	DefaultRateD             = 3.00
	DefaultDayApproachFee    = 13.0
	DefaultNightApproachFee  = 10.0
	DefaultMinimumCourse     = 20.0
	DefaultVanMinimumCourse  = 25.0
	DefaultVanSurcharge      = 15.0
	DefaultMargin            = 1.20
	DefaultRoundTripDiscount = 0.10
	DefaultFreeLuggage       = 2
	DefaultExtraLuggageFee   = 2.0
	DefaultDayStartHour      = 8
	DefaultDayEndHour        = 19
	DefaultCurrency          = "EUR"
	DefaultTimezone          = "Europe/Paris"
)

// Rates holds the per-kilometre price of each tariff.
type Rates struct {
	A, B, C, D float64
}

// For returns the per-kilometre rate of a tariff code.
func (r Rates) For(c Code) float64 {
	switch c {
	case TariffA:
		return r.A
	case TariffB:
		return r.B
	case TariffC:
		return r.C
	case TariffD:
		return r.D
	}
	return 0
}

// Config is the tariff regime the estimator applies. Treat it as a value:
// the estimator keeps its own copy.
type Config struct {
	Currency          string
	Location          *time.Location
	BaseFare          float64
	Rates             Rates
	DayApproachFee    float64
	NightApproachFee  float64
	MinimumCourse     float64
	VanMinimumCourse  float64
	VanSurcharge      float64
	Margin            float64
	RoundTripDiscount float64
	FreeLuggage       int
	ExtraLuggageFee   float64
	DayStartHour      int
	DayEndHour        int
	// ExtraHolidays are local dates billed like Sundays on top of the
	// national calendar.
	ExtraHolidays []time.Time
}

// DefaultConfig returns the regime in force when nothing is configured.
func DefaultConfig() Config {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.Local
	}
	return Config{
		Currency:          DefaultCurrency,
		Location:          loc,
		BaseFare:          DefaultBaseFare,
		Rates:             Rates{A: DefaultRateA, B: DefaultRateB, C: DefaultRateC, D: DefaultRateD},
		DayApproachFee:    DefaultDayApproachFee,
		NightApproachFee:  DefaultNightApproachFee,
		MinimumCourse:     DefaultMinimumCourse,
		VanMinimumCourse:  DefaultVanMinimumCourse,
		VanSurcharge:      DefaultVanSurcharge,
		Margin:            DefaultMargin,
		RoundTripDiscount: DefaultRoundTripDiscount,
		FreeLuggage:       DefaultFreeLuggage,
		ExtraLuggageFee:   DefaultExtraLuggageFee,
		DayStartHour:      DefaultDayStartHour,
		DayEndHour:        DefaultDayEndHour,
	}
}

// Validate rejects regimes that would break the price band guarantees.
func (c Config) Validate() error {
	switch {
	case c.Location == nil:
		return errors.New("fare: location is required")
	case c.Currency == "":
		return errors.New("fare: currency is required")
	case c.BaseFare < 0, c.DayApproachFee < 0, c.NightApproachFee < 0:
		return errors.New("fare: fees must be non-negative")
	case c.Rates.A < 0, c.Rates.B < 0, c.Rates.C < 0, c.Rates.D < 0:
		return errors.New("fare: per-km rates must be non-negative")
	case c.MinimumCourse < 0, c.VanMinimumCourse < c.MinimumCourse:
		return errors.New("fare: van minimum course must be at least the standard one")
	case c.VanSurcharge < 0:
		return errors.New("fare: van surcharge must be non-negative")
	case c.Margin <= 1:
		return fmt.Errorf("fare: margin must be greater than 1, got %v", c.Margin)
	case c.RoundTripDiscount < 0 || c.RoundTripDiscount >= 1:
		return errors.New("fare: round trip discount must be in [0, 1)")
	case c.FreeLuggage < 0 || c.ExtraLuggageFee < 0:
		return errors.New("fare: luggage allowance and fee must be non-negative")
	case c.DayStartHour < 0 || c.DayEndHour > 24 || c.DayStartHour >= c.DayEndHour:
		return fmt.Errorf("fare: invalid day window %d-%d", c.DayStartHour, c.DayEndHour)
	}
	return nil
}
