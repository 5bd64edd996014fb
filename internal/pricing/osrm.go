package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taxi-service/internal/fare"
)

// RouteProvider resolves the driving route between two points.
type RouteProvider interface {
	Route(ctx context.Context, from, to fare.Location) (*fare.RouteMetrics, error)
}

// OSRMClient queries an OSRM compatible /route/v1/driving endpoint.
type OSRMClient struct {
	baseURL string
	http    *http.Client
}

// NewOSRMClient returns a client for baseURL with the given request timeout.
func NewOSRMClient(baseURL string, timeout time.Duration) *OSRMClient {
	return &OSRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
	} `json:"routes"`
}

// Route returns distance, duration and an encoded polyline for the fastest route.
func (c *OSRMClient) Route(ctx context.Context, from, to fare.Location) (*fare.RouteMetrics, error) {
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", from.Lng, from.Lat, to.Lng, to.Lat)
	q := url.Values{}
	q.Set("overview", "simplified")
	q.Set("geometries", "polyline")
	endpoint := c.baseURL + "/route/v1/driving/" + coords + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("osrm: decode (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Code != "Ok" {
		return nil, fmt.Errorf("osrm: %s %s (HTTP %d)", body.Code, body.Message, resp.StatusCode)
	}
	if len(body.Routes) == 0 {
		return nil, fmt.Errorf("osrm: no route")
	}
	r := body.Routes[0]
	return &fare.RouteMetrics{DistanceMeters: r.Distance, DurationSeconds: r.Duration, Path: r.Geometry}, nil
}
