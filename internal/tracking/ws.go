// Package tracking pushes booking lifecycle updates to back-office
// dashboards over websockets.
package tracking

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"taxi-service/internal/events"
	"taxi-service/pkg/jwt"
	"taxi-service/pkg/metrics"
)

// allBookings is the subscription key of the feed carrying every booking.
const allBookings = "*"

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *safeConn) readMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *safeConn) close() { c.ws.Close() }

// Update is what subscribers receive.
type Update struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	Reference  string    `json:"reference"`
	Status     string    `json:"status,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	PickupAt   time.Time `json:"pickup_at,omitempty"`
	FinalPrice *float64  `json:"final_price,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Hub manages WebSocket connections per booking, plus the all-bookings feed.
type Hub struct {
	mu    sync.RWMutex
	conns map[string][]*safeConn
}

// NewHub creates a tracking hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string][]*safeConn)}
}

// Routes returns a chi.Router for the /ws mount point. Browsers cannot set
// headers on a websocket handshake, so the staff token may also come as
// the token query parameter.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(tokenFromQuery)
	r.Use(jwt.RequireRole("admin", "staff"))
	r.Get("/bookings", h.HandleWS)
	r.Get("/bookings/{id}", h.HandleWS)
	return r
}

func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetClaims(r.Context()) == nil {
			if raw := r.URL.Query().Get("token"); raw != "" {
				if claims, err := jwt.Validate(raw); err == nil {
					r = r.WithContext(jwt.WithClaims(r.Context(), claims))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleWS upgrades the connection and subscribes it to one booking, or to
// all of them when no id is given.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")
	if key == "" {
		key = allBookings
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	conn := &safeConn{ws: ws}

	h.mu.Lock()
	h.conns[key] = append(h.conns[key], conn)
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()

	log.Printf("[ws] client subscribed to %s", key)

	// Block until the client disconnects
	for {
		if _, _, err := conn.readMessage(); err != nil {
			break
		}
	}

	h.removeConn(key, conn)
	metrics.LiveSubscribers.Dec()
	conn.close()
	log.Printf("[ws] client left %s", key)
}

// Handle consumes one booking event from Kafka and fans it out. Messages it
// cannot read are skipped.
func (h *Hub) Handle(_ context.Context, raw []byte) error {
	var msg events.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[ws] skipping undecodable message: %v", err)
		return nil
	}
	u, ok := toUpdate(msg)
	if !ok {
		return nil
	}
	h.Broadcast(u)
	return nil
}

// Broadcast pushes u to the subscribers of its booking and of the full feed.
func (h *Hub) Broadcast(u Update) {
	h.mu.RLock()
	targets := make([]*safeConn, 0, len(h.conns[u.BookingID])+len(h.conns[allBookings]))
	targets = append(targets, h.conns[u.BookingID]...)
	targets = append(targets, h.conns[allBookings]...)
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.writeJSON(u); err != nil {
			log.Printf("[ws] write error: %v", err)
		}
	}
}

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.conns {
		n += len(conns)
	}
	return n
}

func toUpdate(msg events.Message) (Update, bool) {
	u := Update{Type: msg.Type, BookingID: msg.AggregateID, OccurredAt: msg.OccurredAt}
	var err error
	switch msg.Type {
	case events.TypeBookingCreated:
		var p events.BookingCreated
		if err = msg.Decode(&p); err == nil {
			u.Reference, u.Status, u.PickupAt = p.Booking.Reference, p.Booking.Status, p.Booking.PickupAt
		}
	case events.TypeBookingStatusChanged:
		var p events.BookingStatusChanged
		if err = msg.Decode(&p); err == nil {
			u.Reference, u.Status, u.PickupAt = p.Booking.Reference, p.Booking.Status, p.Booking.PickupAt
			u.From, u.To, u.ActorID = p.From, p.To, p.ActorID
		}
	case events.TypeBookingFinalPriceSet:
		var p events.BookingFinalPriceSet
		if err = msg.Decode(&p); err == nil {
			u.Reference, u.Status, u.FinalPrice = p.Booking.Reference, p.Booking.Status, p.Booking.FinalPrice
			u.ActorID = p.ActorID
		}
	case events.TypeBookingDeleted:
		var p events.BookingDeleted
		if err = msg.Decode(&p); err == nil {
			u.Reference, u.ActorID = p.Reference, p.ActorID
		}
	default:
		return u, false
	}
	if err != nil {
		log.Printf("[ws] %v", err)
		return u, false
	}
	return u, true
}

func (h *Hub) removeConn(key string, conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.conns[key]
	for i, c := range conns {
		if c == conn {
			h.conns[key] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[key]) == 0 {
		delete(h.conns, key)
	}
}
