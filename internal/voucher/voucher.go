// Package voucher renders the printable ride confirmation handed to
// customers and drivers.
package voucher

import (
	"fmt"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"

	"taxi-service/internal/bookings"
)

// Renderer lays out vouchers for one company.
type Renderer struct {
	Company string
	Phone   string
	Loc     *time.Location
}

// Render writes the voucher of b as a PDF document to w.
func (r Renderer) Render(w io.Writer, b *bookings.Booking) error {
	loc := r.Loc
	if loc == nil {
		loc = time.UTC
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Voucher "+b.Reference, true)
	pdf.SetCreator(r.Company, true)
	// Core fonts are cp1252; addresses carry accents.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(r.Company))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr("Ride voucher "+b.Reference))
	pdf.Ln(12)

	line := func(label, value string) {
		if value == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 7, tr(label), "", 0, "", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, tr(value), "", "", false)
	}

	line("Customer", b.Customer.Name)
	line("Phone", b.Customer.Phone)
	line("Pickup", b.Pickup.Address)
	line("Drop-off", b.Dropoff.Address)
	line("Date", b.PickupAt.In(loc).Format("Mon 02 Jan 2006 15:04"))
	if b.RoundTrip && b.ReturnAt != nil {
		line("Return", b.ReturnAt.In(loc).Format("Mon 02 Jan 2006 15:04"))
	}
	line("Vehicle", string(b.VehicleClass))
	line("Passengers", fmt.Sprintf("%d passenger(s), %d bag(s)", b.Passengers, b.Luggage))
	line("Flight", b.FlightNumber)
	line("Train", b.TrainNumber)
	line("Requests", b.SpecialRequests)
	line("Status", string(b.Status))
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, tr(priceLine(b)))
	pdf.Ln(8)
	if b.Price.TariffName != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 6, tr(b.Price.TariffName))
		pdf.Ln(10)
	}

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, tr("Please show this voucher to your driver. For any change call "+r.Phone+"."), "", "", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render voucher %s: %w", b.Reference, err)
	}
	return nil
}

func priceLine(b *bookings.Booking) string {
	p := b.Price
	switch {
	case p.FinalPrice != nil:
		return fmt.Sprintf("Price: %.2f %s", *p.FinalPrice, p.Currency)
	case p.PriceRange != nil:
		return fmt.Sprintf("Estimated price: %.2f to %.2f %s", p.PriceRange.Min, p.PriceRange.Max, p.Currency)
	}
	return fmt.Sprintf("Price: %.2f %s", p.Amount, p.Currency)
}
