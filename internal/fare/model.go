package fare

import "time"

// Code is one of the four regulated taxi tariffs.
type Code string

const (
	TariffA Code = "A" // day, return in charge
	TariffB Code = "B" // night or Sunday/holiday, return in charge
	TariffC Code = "C" // day, empty return
	TariffD Code = "D" // night or Sunday/holiday, empty return
)

// Name returns the label shown to customers and stored on the booking.
func (c Code) Name() string {
	switch c {
	case TariffA:
		return "Tarif A (day, return in charge)"
	case TariffB:
		return "Tarif B (night or holiday, return in charge)"
	case TariffC:
		return "Tarif C (day, empty return)"
	case TariffD:
		return "Tarif D (night or holiday, empty return)"
	}
	return ""
}

// Valid reports whether c is one of A, B, C or D.
func (c Code) Valid() bool {
	return c == TariffA || c == TariffB || c == TariffC || c == TariffD
}

// VehicleClass is what the customer selects in the booking widget.
type VehicleClass string

const (
	VehicleSedan    VehicleClass = "sedan"
	VehicleElectric VehicleClass = "electric"
	VehicleVan      VehicleClass = "van"
)

// Category groups vehicle classes that share a price.
type Category string

const (
	CategoryStandard Category = "standard"
	CategoryVan      Category = "van"
)

// Valid reports whether v is a known vehicle class.
func (v VehicleClass) Valid() bool {
	return v == VehicleSedan || v == VehicleElectric || v == VehicleVan
}

// Category returns the pricing category of the class.
func (v VehicleClass) Category() Category {
	if v == VehicleVan {
		return CategoryVan
	}
	return CategoryStandard
}

// Capacity is the maximum number of passengers the class seats.
func (v VehicleClass) Capacity() int { return v.Category().Capacity() }

// Capacity is the maximum number of passengers of the category.
func (c Category) Capacity() int {
	if c == CategoryVan {
		return 7
	}
	return 4
}

// Classes lists the vehicle classes priced under the category.
func (c Category) Classes() []VehicleClass {
	if c == CategoryVan {
		return []VehicleClass{VehicleVan}
	}
	return []VehicleClass{VehicleSedan, VehicleElectric}
}

// Location is a pickup or drop-off point as resolved by the address widget.
type Location struct {
	Address string  `json:"address"`
	PlaceID string  `json:"placeId,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// HasCoordinates reports whether the location was resolved to a point.
func (l Location) HasCoordinates() bool { return l.Lat != 0 || l.Lng != 0 }

// TripRequest is the input of an estimate.
type TripRequest struct {
	Pickup       Location     `json:"pickup"`
	Dropoff      Location     `json:"dropoff"`
	PickupAt     time.Time    `json:"pickupAt"`
	Passengers   int          `json:"passengers"`
	Luggage      int          `json:"luggage"`
	RoundTrip    bool         `json:"roundTrip"`
	ReturnAt     *time.Time   `json:"returnAt,omitempty"`
	VehicleClass VehicleClass `json:"vehicleClass,omitempty"`
	// Historical allows a pickup in the past. Only staff may set it.
	Historical bool `json:"-"`
}

// RouteMetrics is what the routing provider returns for the outbound leg.
type RouteMetrics struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	Path            string  `json:"path,omitempty"`
}

// PriceRange is the band quoted before the final fare is known.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether amount lies within [Min, Max].
func (r PriceRange) Contains(amount float64) bool {
	return amount >= r.Min && amount <= r.Max
}

// Conditions explains why a tariff was selected.
type Conditions struct {
	TimeOfDay  string `json:"timeOfDay"`  // day | night
	DayType    string `json:"dayType"`    // weekday | saturday | sunday | holiday
	ReturnType string `json:"returnType"` // in_charge | empty
	Summary    string `json:"summary"`
}

// Breakdown records how a price band was computed.
type Breakdown struct {
	TariffCode         Code       `json:"tariffCode"`
	BaseFare           float64    `json:"baseFare"`
	PricePerKm         float64    `json:"pricePerKm"`
	DistanceKm         float64    `json:"distanceKm"`
	DistanceCharge     float64    `json:"distanceCharge"`
	RoundTripDiscount  float64    `json:"roundTripDiscount"`
	LuggageFee         float64    `json:"luggageFee"`
	ApproachFee        float64    `json:"approachFee"`
	RawTotal           float64    `json:"rawTotal"`
	MinimumCourse      float64    `json:"minimumCourse"`
	MinimumApplied     bool       `json:"minimumApplied"`
	VehicleSurcharge   float64    `json:"vehicleSurcharge"`
	Margin             float64    `json:"margin"`
	IsNight            bool       `json:"isNight"`
	IsWeekendOrHoliday bool       `json:"isWeekendOrHoliday"`
	Conditions         Conditions `json:"conditions"`
}

// Option is the price of one vehicle category for a trip.
type Option struct {
	Category  Category       `json:"category"`
	Classes   []VehicleClass `json:"classes"`
	Capacity  int            `json:"capacity"`
	Range     PriceRange     `json:"priceRange"`
	Breakdown Breakdown      `json:"breakdown"`
}

// Quote is the result of an estimate.
type Quote struct {
	TariffCode Code         `json:"tariffCode"`
	TariffName string       `json:"tariffName"`
	Conditions Conditions   `json:"conditions"`
	Currency   string       `json:"currency"`
	Route      RouteMetrics `json:"route"`
	Options    []Option     `json:"options"`
}

// Option returns the priced option of a category, if it was offered.
func (q Quote) Option(c Category) (Option, bool) {
	for _, o := range q.Options {
		if o.Category == c {
			return o, true
		}
	}
	return Option{}, false
}
