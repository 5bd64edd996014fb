package bookings

import (
	"time"

	"taxi-service/internal/fare"
)

// Status values are stored verbatim in the bookings table.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Source tells how a booking entered the system.
type Source string

const (
	SourceWeb        Source = "web"
	SourceAdminQuick Source = "admin_quick"
)

// Customer is the contact the notifications go to.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Price is what was quoted and, eventually, charged.
type Price struct {
	// Amount is the nominal charge: the top of the quoted band, or the
	// amount staff typed for a booking without a band.
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	TariffApplied fare.Code        `json:"tariffApplied,omitempty"`
	TariffName    string           `json:"tariffName,omitempty"`
	Breakdown     *fare.Breakdown  `json:"breakdown,omitempty"`
	PriceRange    *fare.PriceRange `json:"priceRange,omitempty"`
	FinalPrice    *float64         `json:"finalPrice,omitempty"`
	// FlatEstimate is set when the band came from the straight-line fallback.
	FlatEstimate bool `json:"flatEstimate,omitempty"`
}

// Booking is a ride request and its lifecycle.
type Booking struct {
	ID              string             `json:"id"`
	Reference       string             `json:"reference"`
	Status          Status             `json:"status"`
	Source          Source             `json:"source"`
	Pickup          fare.Location      `json:"pickup"`
	Dropoff         fare.Location      `json:"dropoff"`
	PickupAt        time.Time          `json:"pickupAt"`
	RoundTrip       bool               `json:"roundTrip"`
	ReturnAt        *time.Time         `json:"returnAt,omitempty"`
	Passengers      int                `json:"passengers"`
	Luggage         int                `json:"luggage"`
	VehicleClass    fare.VehicleClass  `json:"vehicleClass"`
	FlightNumber    string             `json:"flightNumber,omitempty"`
	TrainNumber     string             `json:"trainNumber,omitempty"`
	SpecialRequests string             `json:"specialRequests,omitempty"`
	Price           Price              `json:"price"`
	Customer        Customer           `json:"customer"`
	Route           *fare.RouteMetrics `json:"route,omitempty"`
	InternalNotes   string             `json:"internalNotes,omitempty"`
	AdminNotes      string             `json:"adminNotes,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	StartedAt       *time.Time         `json:"startedAt,omitempty"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
}

// Version is what a conditional write compares against.
type Version struct {
	Status    Status
	UpdatedAt time.Time
}

// Version returns the concurrency token of the booking as read.
func (b *Booking) Version() Version { return Version{Status: b.Status, UpdatedAt: b.UpdatedAt} }

// HasRange reports whether a price band was quoted.
func (b *Booking) HasRange() bool { return b.Price.PriceRange != nil }

// CreateRequest is the body for POST /bookings.
type CreateRequest struct {
	Trip            fare.TripRequest `json:"trip"`
	PriceRange      *fare.PriceRange `json:"priceRange,omitempty"`
	Customer        Customer         `json:"customer"`
	FlightNumber    string           `json:"flightNumber,omitempty"`
	TrainNumber     string           `json:"trainNumber,omitempty"`
	SpecialRequests string           `json:"specialRequests,omitempty"`
}

// QuickCreateRequest is the body for POST /admin/bookings/quick. Staff may
// enter past rides and bookings without coordinates; the latter need Amount.
type QuickCreateRequest struct {
	Trip            fare.TripRequest `json:"trip"`
	Historical      bool             `json:"historical"`
	Amount          *float64         `json:"amount,omitempty"`
	Customer        Customer         `json:"customer"`
	FlightNumber    string           `json:"flightNumber,omitempty"`
	TrainNumber     string           `json:"trainNumber,omitempty"`
	SpecialRequests string           `json:"specialRequests,omitempty"`
	InternalNotes   string           `json:"internalNotes,omitempty"`
}

// UpdateRequest is the body for PATCH /admin/bookings/{id}. Nil fields are
// left alone. Status and price are not editable here.
type UpdateRequest struct {
	Customer        *Customer  `json:"customer,omitempty"`
	PickupAddress   *string    `json:"pickupAddress,omitempty"`
	DropoffAddress  *string    `json:"dropoffAddress,omitempty"`
	PickupAt        *time.Time `json:"pickupAt,omitempty"`
	ReturnAt        *time.Time `json:"returnAt,omitempty"`
	Passengers      *int       `json:"passengers,omitempty"`
	Luggage         *int       `json:"luggage,omitempty"`
	FlightNumber    *string    `json:"flightNumber,omitempty"`
	TrainNumber     *string    `json:"trainNumber,omitempty"`
	SpecialRequests *string    `json:"specialRequests,omitempty"`
	InternalNotes   *string    `json:"internalNotes,omitempty"`
	AdminNotes      *string    `json:"adminNotes,omitempty"`
	// UpdatedAt, when given, must match the stored value.
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// TransitionRequest is the body for POST /admin/bookings/{id}/status.
type TransitionRequest struct {
	Status string `json:"status"`
}

// FinalPriceRequest is the body for POST /admin/bookings/{id}/final-price.
type FinalPriceRequest struct {
	Amount float64 `json:"amount"`
}

// ListFilter narrows GET /admin/bookings.
type ListFilter struct {
	Statuses []Status
	From     *time.Time // pickupAt >= From
	To       *time.Time // pickupAt < To
	Query    string     // reference, customer name or e-mail
	Limit    int
	Offset   int
}

// PublicView is what the tracking endpoint reveals to a customer.
type PublicView struct {
	Reference    string            `json:"reference"`
	Status       Status            `json:"status"`
	Pickup       string            `json:"pickup"`
	Dropoff      string            `json:"dropoff"`
	PickupAt     time.Time         `json:"pickupAt"`
	RoundTrip    bool              `json:"roundTrip"`
	ReturnAt     *time.Time        `json:"returnAt,omitempty"`
	VehicleClass fare.VehicleClass `json:"vehicleClass"`
	Amount       float64           `json:"amount"`
	Currency     string            `json:"currency"`
	PriceRange   *fare.PriceRange  `json:"priceRange,omitempty"`
	FinalPrice   *float64          `json:"finalPrice,omitempty"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// Public returns the customer-facing view of b.
func (b *Booking) Public() PublicView {
	return PublicView{
		Reference:    b.Reference,
		Status:       b.Status,
		Pickup:       b.Pickup.Address,
		Dropoff:      b.Dropoff.Address,
		PickupAt:     b.PickupAt,
		RoundTrip:    b.RoundTrip,
		ReturnAt:     b.ReturnAt,
		VehicleClass: b.VehicleClass,
		Amount:       b.Price.Amount,
		Currency:     b.Price.Currency,
		PriceRange:   b.Price.PriceRange,
		FinalPrice:   b.Price.FinalPrice,
		StartedAt:    b.StartedAt,
		CompletedAt:  b.CompletedAt,
	}
}
