package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"taxi-service/internal/events"
	"taxi-service/internal/places"
)

// Template names, also used as metric labels.
const (
	TemplateConfirmation = "confirmation"
	TemplateConfirmed    = "confirmed"
	TemplateStarted      = "started"
	TemplateCompleted    = "completed"
	TemplateCancelled    = "cancelled"
)

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
<h2 style="color: #1d3557;">{{.Company}}</h2>
<p>Hello {{.B.CustomerName}},</p>
{{template "body" .}}
<table style="margin: 20px 0; border-collapse: collapse;">
<tr><td><strong>Reference</strong></td><td>{{.B.Reference}}</td></tr>
<tr><td><strong>Pickup</strong></td><td>{{.B.PickupAddress}}</td></tr>
<tr><td><strong>Drop-off</strong></td><td>{{.B.DropoffAddress}}</td></tr>
<tr><td><strong>Date</strong></td><td>{{.PickupAt}}</td></tr>
{{if .ReturnAt}}<tr><td><strong>Return</strong></td><td>{{.ReturnAt}}</td></tr>{{end}}
<tr><td><strong>Passengers</strong></td><td>{{.B.Passengers}}</td></tr>
{{if .Price}}<tr><td><strong>Price</strong></td><td>{{.Price}}</td></tr>{{end}}
</table>
{{if .Hint}}<p style="background: #f1faee; padding: 10px;">{{.Hint}}</p>{{end}}
{{if .TrackURL}}<p><a href="{{.TrackURL}}">Follow your booking</a></p>{{end}}
<p>Questions? Call us on {{.Phone}}.</p>
<p style="font-size: 12px; color: #666;">This is an automated message, please do not reply.</p>
</div>
</body>
</html>`

var bodies = map[string]struct {
	subject string
	body    string
}{
	TemplateConfirmation: {"Your booking %s is confirmed", `<p>Thank you for booking with us. Your ride is confirmed.</p>`},
	TemplateConfirmed:    {"Your booking %s is confirmed", `<p>Good news: we have confirmed your ride.</p>`},
	TemplateStarted:      {"Your ride %s has started", `<p>Your driver has picked you up. Have a pleasant trip.</p>`},
	TemplateCompleted:    {"Thank you for riding with us (%s)", `<p>Your ride is complete. We hope to see you again soon.</p>`},
	TemplateCancelled:    {"Your booking %s has been cancelled", `<p>Your ride has been cancelled. If you did not ask for this, please call us.</p>`},
}

var templates = func() map[string]*template.Template {
	base := template.Must(template.New("layout").Parse(layout))
	out := make(map[string]*template.Template, len(bodies))
	for name, b := range bodies {
		t := template.Must(base.Clone())
		template.Must(t.New("body").Parse(b.body))
		out[name] = t
	}
	return out
}()

type view struct {
	Company  string
	Phone    string
	B        events.BookingSnapshot
	PickupAt string
	ReturnAt string
	Price    string
	Hint     string
	TrackURL string
}

// render builds the e-mail for template name.
func (n *Notifier) render(name string, b events.BookingSnapshot) (Email, error) {
	t, ok := templates[name]
	if !ok {
		return Email{}, fmt.Errorf("unknown template %q", name)
	}
	v := view{
		Company:  n.company,
		Phone:    n.phone,
		B:        b,
		PickupAt: n.formatTime(b.PickupAt),
		Price:    formatPrice(b),
		Hint:     meetingHint(b),
	}
	if b.ReturnAt != nil {
		v.ReturnAt = n.formatTime(*b.ReturnAt)
	}
	if n.publicURL != "" && name != TemplateCompleted {
		v.TrackURL = fmt.Sprintf("%s/track/%s", n.publicURL, b.Reference)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return Email{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Email{
		To:      b.CustomerEmail,
		Subject: fmt.Sprintf(bodies[name].subject, b.Reference),
		HTML:    buf.String(),
	}, nil
}

func (n *Notifier) formatTime(t time.Time) string {
	return t.In(n.loc).Format("Mon 02 Jan 2006 at 15:04")
}

func formatPrice(b events.BookingSnapshot) string {
	switch {
	case b.FinalPrice != nil:
		return fmt.Sprintf("%.2f %s", *b.FinalPrice, b.Currency)
	case b.PriceMin != nil && b.PriceMax != nil:
		return fmt.Sprintf("%.2f to %.2f %s", *b.PriceMin, *b.PriceMax, b.Currency)
	case b.Amount > 0:
		return fmt.Sprintf("%.2f %s", b.Amount, b.Currency)
	}
	return ""
}

// meetingHint tells the customer where the driver waits at airports and
// railway stations.
func meetingHint(b events.BookingSnapshot) string {
	switch places.Classify(b.PickupAddress) {
	case places.Airport:
		if b.FlightNumber != "" {
			return fmt.Sprintf("Your driver will wait in the arrivals hall with a sign bearing your name and follows flight %s for delays.", b.FlightNumber)
		}
		return "Your driver will wait in the arrivals hall with a sign bearing your name. Send us your flight number so we can follow delays."
	case places.TrainStation:
		if b.TrainNumber != "" {
			return fmt.Sprintf("Your driver will meet you at the head of the platform of train %s.", b.TrainNumber)
		}
		return "Your driver will meet you at the main station entrance."
	}
	return ""
}
