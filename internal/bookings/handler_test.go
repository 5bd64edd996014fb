package bookings

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"taxi-service/pkg/jwt"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	if err := jwt.Init("handler-test-secret", time.Hour); err != nil {
		t.Fatalf("jwt init: %v", err)
	}
	svc, _, _ := newTestService(t)
	voucher := func(w io.Writer, b *Booking) error {
		_, err := io.WriteString(w, "%PDF-"+b.Reference)
		return err
	}
	h := NewHandler(svc, "+33 1 00 00 00 00", voucher)

	r := chi.NewRouter()
	r.Use(jwt.OptionalAuth)
	r.Mount("/bookings", h.PublicRoutes())
	r.Mount("/admin/bookings", h.AdminRoutes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.Generate(role+"-id", role+"@taxi.test", role)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func do(t *testing.T, method, url, tok string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateAndTrackOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/bookings", "", validCreate())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var b Booking
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp = do(t, http.MethodGet, srv.URL+"/bookings/track/"+b.Reference+"?email=camille@example.com", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("track status = %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "camille@example.com") || !strings.Contains(string(raw), `"status":"confirmed"`) {
		t.Fatalf("public view = %s", raw)
	}

	resp = do(t, http.MethodGet, srv.URL+"/bookings/track/"+b.Reference+"?email=other@example.com", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("mismatched track status = %d", resp.StatusCode)
	}
}

func TestCreateErrorHidesDetail(t *testing.T) {
	srv, _ := newTestServer(t)
	req := validCreate()
	req.Trip.Passengers = 9

	resp := do(t, http.MethodPost, srv.URL+"/bookings", "", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != "invalid_trip_parameters" || body["field"] != "passengers" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(body["error"], "+33 1 00 00 00 00") {
		t.Fatalf("error should quote the phone number: %q", body["error"])
	}
}

func TestAdminRoutesNeedStaffToken(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp := do(t, http.MethodGet, srv.URL+"/admin/bookings", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/admin/bookings", token(t, "customer"), nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unknown role status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/admin/bookings?status=confirmed,cancelled", token(t, "staff"), nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("staff status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/admin/bookings?status=lost", token(t, "staff"), nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d", resp.StatusCode)
	}
}

func TestAdminLifecycleOverHTTP(t *testing.T) {
	srv, svc := newTestServer(t)
	b := mustCreate(t, svc)
	staffTok, adminTok := token(t, "staff"), token(t, "admin")
	base := srv.URL + "/admin/bookings/" + b.ID

	resp := do(t, http.MethodPost, base+"/status", staffTok, TransitionRequest{Status: "in_progress"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, base+"/status", staffTok, TransitionRequest{Status: "cancelled"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel in progress status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, base+"/final-price", staffTok, FinalPriceRequest{Amount: b.Price.PriceRange.Max + 50})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("out of band status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base+"/voucher.pdf", staffTok, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("voucher status = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if resp := do(t, http.MethodDelete, base, staffTok, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("staff delete status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, base, adminTok, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, base, adminTok, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", resp.StatusCode)
	}
}
