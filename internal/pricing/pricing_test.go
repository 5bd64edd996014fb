package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taxi-service/internal/domain"
	"taxi-service/internal/fare"
	rredis "taxi-service/pkg/redis"
)

var (
	annecy = fare.Location{Address: "Gare d'Annecy", Lat: 45.9019, Lng: 6.1217}
	geneva = fare.Location{Address: "Aéroport de Genève", Lat: 46.2381, Lng: 6.1090}
)

type stubProvider struct {
	calls atomic.Int32
	route *fare.RouteMetrics
	err   error
	delay time.Duration
}

func (p *stubProvider) Route(context.Context, fare.Location, fare.Location) (*fare.RouteMetrics, error) {
	p.calls.Add(1)
	time.Sleep(p.delay)
	if p.err != nil {
		return nil, p.err
	}
	r := *p.route
	return &r, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return rredis.ErrCacheMiss
	}
	return json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = b
	return nil
}

func testEstimator(t *testing.T) *fare.Estimator {
	t.Helper()
	est, err := fare.NewEstimator(fare.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return est.WithClock(func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) })
}

func tripAt(pickup time.Time) fare.TripRequest {
	return fare.TripRequest{Pickup: annecy, Dropoff: geneva, PickupAt: pickup, Passengers: 2, Luggage: 1}
}

var tuesdayMorning = time.Date(2026, 10, 20, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))

func TestOSRMClient(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":45210.4,"duration":2710.2,"geometry":"abc"}]}`)
	}))
	defer srv.Close()

	r, err := NewOSRMClient(srv.URL+"/", time.Second).Route(context.Background(), annecy, geneva)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if r.DistanceMeters != 45210.4 || r.DurationSeconds != 2710.2 || r.Path != "abc" {
		t.Fatalf("route = %+v", r)
	}
	if !strings.HasPrefix(gotPath, "/route/v1/driving/6.121700,45.901900;6.109000,46.238100") {
		t.Fatalf("path = %s", gotPath)
	}
}

func TestOSRMClientErrors(t *testing.T) {
	bodies := []struct {
		status int
		body   string
	}{
		{http.StatusBadRequest, `{"code":"InvalidQuery","message":"bad coordinates"}`},
		{http.StatusOK, `{"code":"NoRoute","routes":[]}`},
		{http.StatusOK, `{"code":"Ok","routes":[]}`},
		{http.StatusBadGateway, `<html>`},
	}
	for _, b := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(b.status)
			fmt.Fprint(w, b.body)
		}))
		_, err := NewOSRMClient(srv.URL, time.Second).Route(context.Background(), annecy, geneva)
		srv.Close()
		if err == nil {
			t.Fatalf("body %q: expected error", b.body)
		}
	}
}

func TestCachedProviderCollapsesAndCaches(t *testing.T) {
	upstream := &stubProvider{route: &fare.RouteMetrics{DistanceMeters: 45000, DurationSeconds: 2700}, delay: 100 * time.Millisecond}
	p := NewCachedProvider(upstream, &memCache{}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Route(context.Background(), annecy, geneva); err != nil {
				t.Errorf("Route: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := upstream.calls.Load(); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}

	r, err := p.Route(context.Background(), annecy, geneva)
	if err != nil || r.DistanceMeters != 45000 {
		t.Fatalf("cached route = %+v, %v", r, err)
	}
	if n := upstream.calls.Load(); n != 1 {
		t.Fatalf("cache not used, upstream calls = %d", n)
	}
}

type ctxAwareProvider struct {
	delay time.Duration
	route *fare.RouteMetrics
}

func (p *ctxAwareProvider) Route(ctx context.Context, _, _ fare.Location) (*fare.RouteMetrics, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := *p.route
	return &r, nil
}

func TestCachedProviderSurvivesLeaderCancel(t *testing.T) {
	next := &ctxAwareProvider{delay: 100 * time.Millisecond, route: &fare.RouteMetrics{DistanceMeters: 42000, DurationSeconds: 2100}}
	p := NewCachedProvider(next, &memCache{}, time.Hour)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		p.Route(leaderCtx, annecy, geneva)
	}()
	time.Sleep(20 * time.Millisecond)

	waiterErr := make(chan error, 1)
	go func() {
		r, err := p.Route(context.Background(), annecy, geneva)
		if err == nil && r.DistanceMeters != 42000 {
			err = fmt.Errorf("distance = %v", r.DistanceMeters)
		}
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-waiterErr:
		if err != nil {
			t.Fatalf("waiter got %v after the first caller left", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter did not return")
	}
	<-leaderDone
}

func TestEstimateRoutingFailure(t *testing.T) {
	svc := NewService(testEstimator(t), &stubProvider{err: errors.New("timeout")})
	_, err := svc.Estimate(context.Background(), tripAt(tuesdayMorning))
	if !errors.Is(err, domain.ErrEstimationUnavailable) {
		t.Fatalf("err = %v, want EstimationUnavailable", err)
	}
}

func TestEstimateValidatesBeforeRouting(t *testing.T) {
	upstream := &stubProvider{route: &fare.RouteMetrics{DistanceMeters: 1000}}
	svc := NewService(testEstimator(t), upstream)
	req := tripAt(tuesdayMorning)
	req.Passengers = 9
	if _, err := svc.Estimate(context.Background(), req); !errors.Is(err, domain.ErrInvalidTripParameters) {
		t.Fatalf("err = %v", err)
	}
	req = tripAt(tuesdayMorning)
	req.Dropoff = fare.Location{Address: "somewhere"}
	if _, err := svc.Estimate(context.Background(), req); domain.Field(err) != "dropoff" {
		t.Fatalf("err = %v, want dropoff validation error", err)
	}
	if upstream.calls.Load() != 0 {
		t.Fatalf("routing called for an invalid request")
	}
}

func TestEstimateWithFallback(t *testing.T) {
	svc := NewService(testEstimator(t), &stubProvider{err: errors.New("down")})
	q, flat, err := svc.EstimateWithFallback(context.Background(), tripAt(tuesdayMorning))
	if err != nil {
		t.Fatalf("EstimateWithFallback: %v", err)
	}
	if !flat || q.Route.DistanceMeters <= 0 || q.TariffCode != fare.TariffC {
		t.Fatalf("flat=%v quote=%+v", flat, q)
	}

	svc = NewService(testEstimator(t), &stubProvider{route: &fare.RouteMetrics{DistanceMeters: 45000, DurationSeconds: 2700}})
	q, flat, err = svc.EstimateWithFallback(context.Background(), tripAt(tuesdayMorning))
	if err != nil || flat || q.Route.DistanceMeters != 45000 {
		t.Fatalf("flat=%v quote=%+v err=%v", flat, q, err)
	}
}

func TestEstimateHandler(t *testing.T) {
	svc := NewService(testEstimator(t), &stubProvider{route: &fare.RouteMetrics{DistanceMeters: 15000, DurationSeconds: 1200}})
	h := NewHandler(svc, "04 50 00 00 00").Routes()

	body, _ := json.Marshal(tripAt(tuesdayMorning))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var q fare.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatal(err)
	}
	if q.TariffCode != fare.TariffC || len(q.Options) != 2 {
		t.Fatalf("quote = %+v", q)
	}
}

func TestEstimateHandlerErrors(t *testing.T) {
	svc := NewService(testEstimator(t), &stubProvider{err: errors.New("down")})
	h := NewHandler(svc, "04 50 00 00 00").Routes()

	body, _ := json.Marshal(tripAt(tuesdayMorning))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["code"] != "estimation_unavailable" || !strings.Contains(resp["error"], "04 50 00 00 00") {
		t.Fatalf("body = %v", resp)
	}

	bad := tripAt(tuesdayMorning)
	bad.Luggage = 12
	body, _ = json.Marshal(bad)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusBadRequest || resp["field"] != "luggage" {
		t.Fatalf("status = %d body = %v", rec.Code, resp)
	}
}
