package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"taxi-service/internal/fare"
	"taxi-service/pkg/metrics"
	rredis "taxi-service/pkg/redis"
)

const lookupTimeout = 10 * time.Second

// Cache stores JSON values with a TTL. *redis.Client satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedProvider memoises routes by rounded coordinates and collapses
// concurrent lookups of the same pair into one upstream call.
type CachedProvider struct {
	next  RouteProvider
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedProvider wraps next with cache.
func NewCachedProvider(next RouteProvider, cache Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, ttl: ttl}
}

// routeKey rounds to 4 decimals, about 10 m.
func routeKey(from, to fare.Location) string {
	return fmt.Sprintf("route:%.4f,%.4f:%.4f,%.4f", from.Lat, from.Lng, to.Lat, to.Lng)
}

func (p *CachedProvider) Route(ctx context.Context, from, to fare.Location) (*fare.RouteMetrics, error) {
	key := routeKey(from, to)

	var cached fare.RouteMetrics
	err := p.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		metrics.RouteLookups.WithLabelValues("hit").Inc()
		return &cached, nil
	}
	if !errors.Is(err, rredis.ErrCacheMiss) {
		log.Printf("[pricing] route cache read %s: %v", key, err)
	}
	metrics.RouteLookups.WithLabelValues("miss").Inc()

	// The shared lookup must outlive the caller that started it.
	v, err, _ := p.group.Do(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return p.next.Route(lookupCtx, from, to)
	})
	if err != nil {
		return nil, err
	}
	route := v.(*fare.RouteMetrics)

	if err := p.cache.SetJSON(ctx, key, route, p.ttl); err != nil {
		log.Printf("[pricing] route cache write %s: %v", key, err)
	}
	cp := *route
	return &cp, nil
}
