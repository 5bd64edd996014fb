package bookings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"taxi-service/internal/domain"
	"taxi-service/pkg/jwt"
)

// VoucherFunc renders the printable confirmation of a booking.
type VoucherFunc func(w io.Writer, b *Booking) error

// Handler exposes booking HTTP endpoints.
type Handler struct {
	svc     *Service
	phone   string
	voucher VoucherFunc
}

// NewHandler wires a handler to the booking service. phone is quoted to
// customers when a request fails; voucher may be nil.
func NewHandler(svc *Service, phone string, voucher VoucherFunc) *Handler {
	return &Handler{svc: svc, phone: phone, voucher: voucher}
}

// PublicRoutes returns the customer endpoints for the /bookings mount point.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/track/{reference}", h.Track)
	return r
}

// AdminRoutes returns the back-office endpoints for /admin/bookings. Every
// route needs a staff or admin token.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(jwt.RequireRole(string(domain.RoleAdmin), string(domain.RoleStaff)))

	r.Get("/", h.List)
	r.Post("/quick", h.QuickCreate)
	r.Get("/{id}", h.GetByID)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/status", h.Transition)
	r.Post("/{id}/final-price", h.SetFinalPrice)
	r.Get("/{id}/voucher.pdf", h.Voucher)

	return r
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_trip_parameters"})
		return
	}
	b, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writePublicError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Track(r.Context(), chi.URLParam(r, "reference"), r.URL.Query().Get("email"))
	if err != nil {
		h.writePublicError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b.Public())
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": out,
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

func (h *Handler) QuickCreate(w http.ResponseWriter, r *http.Request) {
	var req QuickCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_trip_parameters"})
		return
	}
	b, err := h.svc.QuickCreate(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking": b,
		"next":    NextStatuses(b.Status),
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_trip_parameters"})
		return
	}
	b, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_trip_parameters"})
		return
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.svc.TransitionStatus(r.Context(), chi.URLParam(r, "id"), target, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) SetFinalPrice(w http.ResponseWriter, r *http.Request) {
	var req FinalPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_trip_parameters"})
		return
	}
	b, err := h.svc.SetFinalPrice(r.Context(), chi.URLParam(r, "id"), req.Amount, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Voucher(w http.ResponseWriter, r *http.Request) {
	if h.voucher == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "vouchers are disabled"})
		return
	}
	b, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.voucher(&buf, b); err != nil {
		writeError(w, fmt.Errorf("render voucher %s: %w", b.Reference, err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", b.Reference+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var f ListFilter
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := ParseStatus(part)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	var err error
	if f.From, err = parseBound(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = parseBound(q.Get("to"), "to"); err != nil {
		return f, err
	}
	f.Query = strings.TrimSpace(q.Get("q"))
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, domain.Invalid("limit", "must be an integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, domain.Invalid("offset", "must be an integer")
		}
	}
	return f, nil
}

// parseBound accepts an RFC 3339 instant or a bare date (midnight UTC).
func parseBound(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, domain.Invalid(field, "must be a date or an RFC 3339 time")
}

func actorFrom(r *http.Request) domain.Actor {
	c := jwt.GetClaims(r.Context())
	if c == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: c.StaffID, Role: domain.Role(c.Role)}
}

// writePublicError hides failure detail from customers but keeps the code
// and offending field.
func (h *Handler) writePublicError(w http.ResponseWriter, err error) {
	status := domain.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[bookings] public request failed: %v", err)
	}
	msg := "We could not process your booking. Please try again or call us on " + h.phone + "."
	if status == http.StatusNotFound {
		msg = "No booking matches this reference and e-mail."
	}
	body := map[string]string{"error": msg, "code": domain.Code(err)}
	if f := domain.Field(err); f != "" {
		body["field"] = f
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, err error) {
	status := domain.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[bookings] %v", err)
		writeJSON(w, status, map[string]string{"error": "internal error", "code": domain.Code(err)})
		return
	}
	body := map[string]string{"error": err.Error(), "code": domain.Code(err)}
	if f := domain.Field(err); f != "" {
		body["field"] = f
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
