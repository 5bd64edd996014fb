package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"taxi-service/internal/events"
	"taxi-service/pkg/jwt"
)

func startHub(t *testing.T) (*Hub, string, string) {
	t.Helper()
	if err := jwt.Init("ws-test-secret", time.Hour); err != nil {
		t.Fatalf("jwt init: %v", err)
	}
	tok, err := jwt.Generate("staff-1", "staff@taxi.test", "staff")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	hub := NewHub()
	r := chi.NewRouter()
	r.Mount("/ws", hub.Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), tok
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() < want {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ws
}

func statusChanged(t *testing.T, id string) []byte {
	t.Helper()
	msg, err := events.New(events.TypeBookingStatusChanged, id, time.Now(), events.BookingStatusChanged{
		Booking: events.BookingSnapshot{ID: id, Reference: "TX-261001-ABCDEF", Status: "in_progress"},
		From:    "confirmed",
		To:      "in_progress",
		ActorID: "staff-1",
	})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	raw, _ := json.Marshal(msg)
	return raw
}

func TestHubFansOutToBookingAndFullFeed(t *testing.T) {
	hub, base, tok := startHub(t)
	one := dial(t, hub, base+"/ws/bookings/b-1?token="+tok, 1)
	all := dial(t, hub, base+"/ws/bookings?token="+tok, 2)
	other := dial(t, hub, base+"/ws/bookings/b-2?token="+tok, 3)

	if err := hub.Handle(context.Background(), statusChanged(t, "b-1")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	for name, ws := range map[string]*websocket.Conn{"booking": one, "all": all} {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var u Update
		if err := ws.ReadJSON(&u); err != nil {
			t.Fatalf("%s feed: %v", name, err)
		}
		if u.BookingID != "b-1" || u.From != "confirmed" || u.To != "in_progress" || u.Reference != "TX-261001-ABCDEF" {
			t.Fatalf("%s feed got %+v", name, u)
		}
	}

	other.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("unrelated booking feed received an update")
	}
}

func TestHubRequiresStaffToken(t *testing.T) {
	_, base, _ := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/bookings", nil)
	if err == nil {
		t.Fatalf("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHandleSkipsUnknownMessages(t *testing.T) {
	hub := NewHub()
	if err := hub.Handle(context.Background(), []byte("nope")); err != nil {
		t.Fatalf("garbage: %v", err)
	}
	msg, _ := events.New("booking.archived", "b-1", time.Now(), struct{}{})
	raw, _ := json.Marshal(msg)
	if err := hub.Handle(context.Background(), raw); err != nil {
		t.Fatalf("unknown type: %v", err)
	}
}
