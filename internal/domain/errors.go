package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds surfaced by the estimator and the booking lifecycle.
var (
	ErrInvalidTripParameters = errors.New("invalid trip parameters")
	ErrEstimationUnavailable = errors.New("estimation unavailable")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrPriceOutOfRange       = errors.New("price out of range")
	ErrNoRangeDefined        = errors.New("no price range defined")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("concurrent modification")
)

// ValidationError reports a bad input field. It matches ErrInvalidTripParameters.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidTripParameters, e.Msg)
	}
	return fmt.Sprintf("%s: %s %s", ErrInvalidTripParameters, e.Field, e.Msg)
}

func (e ValidationError) Is(target error) bool { return target == ErrInvalidTripParameters }

// Invalid is shorthand for a ValidationError.
func Invalid(field, msg string) error {
	return ValidationError{Field: field, Msg: msg}
}

// TransitionError reports a status change the state machine refuses.
type TransitionError struct {
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}

func (e TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// PriceRangeError reports a final price outside the quoted band.
type PriceRangeError struct {
	Amount, Min, Max float64
}

func (e PriceRangeError) Error() string {
	return fmt.Sprintf("final price %.2f outside quoted range [%.2f, %.2f]", e.Amount, e.Min, e.Max)
}

func (e PriceRangeError) Is(target error) bool { return target == ErrPriceOutOfRange }

// Code returns the machine readable code of an error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTripParameters):
		return "invalid_trip_parameters"
	case errors.Is(err, ErrEstimationUnavailable):
		return "estimation_unavailable"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrPriceOutOfRange):
		return "price_out_of_range"
	case errors.Is(err, ErrNoRangeDefined):
		return "no_range_defined"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal_error"
	}
}

// StatusCode maps an error kind to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidTripParameters):
		return http.StatusBadRequest
	case errors.Is(err, ErrEstimationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPriceOutOfRange), errors.Is(err, ErrNoRangeDefined):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Field returns the offending input field of a validation error, if any.
func Field(err error) string {
	var v ValidationError
	if errors.As(err, &v) {
		return v.Field
	}
	return ""
}
