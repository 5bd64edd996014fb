package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"taxi-service/internal/events"
	"taxi-service/pkg/metrics"
)

// Notifier turns booking events into customer e-mails.
type Notifier struct {
	mailer    Mailer
	company   string
	phone     string
	publicURL string
	loc       *time.Location
}

// NewNotifier returns a notifier sending through mailer. Times are shown
// in loc.
func NewNotifier(mailer Mailer, company, phone, publicURL string, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{mailer: mailer, company: company, phone: phone, publicURL: publicURL, loc: loc}
}

// Handle processes one Kafka message. It always returns nil: delivery
// failures and undecodable messages are logged and skipped so the
// partition keeps moving.
func (n *Notifier) Handle(ctx context.Context, raw []byte) error {
	var msg events.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[notify] skipping undecodable message: %v", err)
		return nil
	}

	name, snap, ok := n.pick(msg)
	if !ok {
		return nil
	}
	if snap.CustomerEmail == "" {
		log.Printf("[notify] %s has no e-mail, skipping %s", snap.Reference, name)
		return nil
	}

	email, err := n.render(name, snap)
	if err != nil {
		log.Printf("[notify] %s: %v", snap.Reference, err)
		metrics.Notifications.WithLabelValues(name, "error").Inc()
		return nil
	}
	if err := n.mailer.Send(ctx, email); err != nil {
		log.Printf("[notify] %s e-mail for %s failed: %v", name, snap.Reference, err)
		metrics.Notifications.WithLabelValues(name, "error").Inc()
		return nil
	}
	metrics.Notifications.WithLabelValues(name, "sent").Inc()
	log.Printf("[notify] sent %s for %s", name, snap.Reference)
	return nil
}

// pick chooses the template for an event. Events customers need not hear
// about report ok=false.
func (n *Notifier) pick(msg events.Message) (string, events.BookingSnapshot, bool) {
	switch msg.Type {
	case events.TypeBookingCreated:
		var p events.BookingCreated
		if err := msg.Decode(&p); err != nil {
			log.Printf("[notify] %v", err)
			return "", p.Booking, false
		}
		return TemplateConfirmation, p.Booking, true

	case events.TypeBookingStatusChanged:
		var p events.BookingStatusChanged
		if err := msg.Decode(&p); err != nil {
			log.Printf("[notify] %v", err)
			return "", p.Booking, false
		}
		switch p.To {
		case "confirmed":
			return TemplateConfirmed, p.Booking, true
		case "in_progress":
			return TemplateStarted, p.Booking, true
		case "completed":
			return TemplateCompleted, p.Booking, true
		case "cancelled":
			return TemplateCancelled, p.Booking, true
		}
	}
	return "", events.BookingSnapshot{}, false
}
