package pricing

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxi-service/internal/domain"
	"taxi-service/internal/fare"
)

// Handler exposes the public estimate endpoint.
type Handler struct {
	svc   *Service
	phone string
}

// NewHandler wires a handler to the pricing service. phone is quoted to
// customers when an estimate fails.
func NewHandler(svc *Service, phone string) *Handler { return &Handler{svc: svc, phone: phone} }

// Routes returns a chi.Router for the /estimates mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Estimate)
	return r
}

func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req fare.TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_trip_parameters"})
		return
	}
	q, err := h.svc.Estimate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// writeError hides the failure detail from customers but keeps the code and
// offending field so the widget can highlight it.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := domain.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[pricing] estimate failed: %v", err)
	}
	body := map[string]string{
		"error": "We could not price this trip. Please try again or call us on " + h.phone + ".",
		"code":  domain.Code(err),
	}
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
