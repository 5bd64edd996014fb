// Package pricing resolves trip routes and turns them into fare quotes.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"taxi-service/internal/domain"
	"taxi-service/internal/fare"
	"taxi-service/pkg/metrics"
	"taxi-service/pkg/validation"
)

// Service couples the routing provider with the fare estimator.
type Service struct {
	est    *fare.Estimator
	routes RouteProvider
}

// NewService creates a pricing service.
func NewService(est *fare.Estimator, routes RouteProvider) *Service {
	return &Service{est: est, routes: routes}
}

// Estimate routes the trip and prices it. A routing failure is reported as
// domain.ErrEstimationUnavailable.
func (s *Service) Estimate(ctx context.Context, req fare.TripRequest) (fare.Quote, error) {
	route, err := s.resolve(ctx, req)
	if err != nil {
		countEstimate(err)
		return fare.Quote{}, err
	}
	q, err := s.est.Estimate(req, route)
	if err != nil {
		countEstimate(err)
		return fare.Quote{}, err
	}
	metrics.Estimates.WithLabelValues(string(q.TariffCode)).Inc()
	return q, nil
}

// EstimateWithFallback behaves like Estimate but falls back to a straight
// line estimate when routing is unavailable. The flag reports the fallback.
func (s *Service) EstimateWithFallback(ctx context.Context, req fare.TripRequest) (fare.Quote, bool, error) {
	q, err := s.Estimate(ctx, req)
	if err == nil || !errors.Is(err, domain.ErrEstimationUnavailable) {
		return q, false, err
	}
	log.Printf("[pricing] routing unavailable, using flat estimate: %v", err)

	route, ferr := fare.FlatRoute(req.Pickup, req.Dropoff)
	if ferr != nil {
		return fare.Quote{}, false, ferr
	}
	metrics.RouteLookups.WithLabelValues("flat").Inc()
	q, err = s.est.Estimate(req, route)
	if err != nil {
		return fare.Quote{}, false, err
	}
	metrics.Estimates.WithLabelValues(string(q.TariffCode)).Inc()
	return q, true, nil
}

func (s *Service) resolve(ctx context.Context, req fare.TripRequest) (*fare.RouteMetrics, error) {
	// Reject bad input before spending a routing call on it.
	if err := s.est.Validate(req); err != nil {
		return nil, err
	}
	if !req.Pickup.HasCoordinates() || !validation.ValidateCoordinates(req.Pickup.Lat, req.Pickup.Lng) {
		return nil, domain.Invalid("pickup", "has no valid coordinates")
	}
	if !req.Dropoff.HasCoordinates() || !validation.ValidateCoordinates(req.Dropoff.Lat, req.Dropoff.Lng) {
		return nil, domain.Invalid("dropoff", "has no valid coordinates")
	}
	route, err := s.routes.Route(ctx, req.Pickup, req.Dropoff)
	if err != nil {
		metrics.RouteLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrEstimationUnavailable, err)
	}
	return route, nil
}

func countEstimate(err error) {
	metrics.Estimates.WithLabelValues(domain.Code(err)).Inc()
}
