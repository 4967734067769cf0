// Package airservice is the HTTP client for the air-quality backend: live
// data, forecasts, station search, clean routes and feature status.
package airservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/sony/gobreaker"
)

// Endpoint labels used in metrics and logs.
const (
	EndpointLiveData   = "live_data"
	EndpointForecast   = "forecast"
	EndpointSearch     = "search_aqi"
	EndpointCleanRoute = "clean_route"
	EndpointStatus     = "status"
)

// Options configures a Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	BreakerFailures int
	// InitialBackoff defaults to 200ms.
	InitialBackoff time.Duration
}

// Client calls the air-quality backend. Every fetch returns a domain.Result
// so callers branch on the outcome kind rather than on raw errors.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	backoff    Backoff
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a backend client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		breaker: newBreaker("airservice", opts.BreakerFailures),
		backoff: Backoff{
			MaxRetries:      opts.MaxRetries,
			InitialInterval: initial,
			MaxInterval:     5 * time.Second,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// LiveData fetches the weather and AQI snapshot for coords.
func (c *Client) LiveData(ctx context.Context, coords domain.Coords) domain.Result[domain.LiveSnapshot] {
	resp, res, ok := fetch[domain.LiveSnapshot](ctx, c, EndpointLiveData, "/api/live-data", coordQuery(coords))
	if !ok {
		return res
	}
	if !is2xx(resp.status) {
		return domain.ServiceFailure[domain.LiveSnapshot](apiError(resp.status))
	}
	return domain.DecodeLiveData(resp.body, coords)
}

// Forecast fetches the seven-day AQI forecast for coords.
func (c *Client) Forecast(ctx context.Context, coords domain.Coords) domain.Result[[]domain.ForecastPoint] {
	resp, res, ok := fetch[[]domain.ForecastPoint](ctx, c, EndpointForecast, "/api/forecast", coordQuery(coords))
	if !ok {
		return res
	}
	if !is2xx(resp.status) {
		return domain.ServiceFailure[[]domain.ForecastPoint](payloadError(resp.body, resp.status))
	}
	return domain.DecodeForecast(resp.body)
}

// SearchStations looks up monitoring stations matching keyword.
func (c *Client) SearchStations(ctx context.Context, keyword string) domain.Result[[]domain.Station] {
	q := url.Values{"keyword": {keyword}}
	resp, res, ok := fetch[[]domain.Station](ctx, c, EndpointSearch, "/api/search-aqi", q)
	if !ok {
		return res
	}
	if !is2xx(resp.status) {
		return domain.ServiceFailure[[]domain.Station](payloadError(resp.body, resp.status))
	}
	return domain.DecodeStations(resp.body)
}

// CleanRoute asks for the standard and clean routes between two places.
// The service reports failures in the body, so it is decoded regardless of
// status.
func (c *Client) CleanRoute(ctx context.Context, start, end string) domain.Result[domain.RouteBundle] {
	q := url.Values{"start": {start}, "end": {end}}
	resp, res, ok := fetch[domain.RouteBundle](ctx, c, EndpointCleanRoute, "/api/clean-route", q)
	if !ok {
		return res
	}
	decoded := domain.DecodeRouteBundle(resp.body)
	if !is2xx(resp.status) && decoded.Kind != domain.ResultServiceError {
		return domain.ServiceFailure[domain.RouteBundle](apiError(resp.status))
	}
	return decoded
}

// Features reports which optional backend features are enabled.
type Features struct {
	Forecast bool `json:"forecast"`
}

// FeatureStatus queries /api/status.
func (c *Client) FeatureStatus(ctx context.Context) (Features, error) {
	resp, res, ok := fetch[Features](ctx, c, EndpointStatus, "/api/status", nil)
	if !ok {
		return Features{}, res.Err()
	}
	if !is2xx(resp.status) {
		return Features{}, domain.NewError(domain.ErrService, apiError(resp.status))
	}
	var payload struct {
		Features Features `json:"features"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return Features{}, fmt.Errorf("decode status: %w", err)
	}
	return payload.Features, nil
}

// CheckReadiness fails while the circuit breaker is open.
func (c *Client) CheckReadiness(_ context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return errors.New("air service circuit breaker is open")
	}
	return nil
}

// fetch performs a resilient GET. When ok is false the request failed before
// a response could be classified and res carries the failure.
func fetch[T any](ctx context.Context, c *Client, endpoint, path string, query url.Values) (rawResponse, domain.Result[T], bool) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	start := time.Now()
	resp, err := doWithResilience(ctx, c.httpClient, c.breaker, c.backoff, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err == nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
		return resp, domain.Result[T]{}, true
	}

	var statusErr *retryableStatusError
	switch {
	case errors.As(err, &statusErr):
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.logger.Warn("upstream returned error status", "endpoint", endpoint, "status", statusErr.status)
		return rawResponse{status: statusErr.status, body: statusErr.body}, domain.Result[T]{}, true
	case errors.Is(err, errCircuitOpen):
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "circuit_open").Inc()
		c.logger.Warn("upstream circuit open", "endpoint", endpoint)
		return rawResponse{}, domain.ServiceFailure[T]("The air quality service is temporarily unavailable."), false
	default:
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.logger.Warn("upstream request failed", "endpoint", endpoint, "error", err)
		return rawResponse{}, domain.ServiceFailure[T](fmt.Sprintf("Failed to fetch: %v", err)), false
	}
}

func coordQuery(c domain.Coords) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(c.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(c.Lon, 'f', -1, 64)},
	}
}

func is2xx(status int) bool { return status >= 200 && status < 300 }

func apiError(status int) string { return fmt.Sprintf("API Error: %d", status) }

// payloadError prefers the service's own error text over the bare status.
func payloadError(body []byte, status int) string {
	var p struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &p); err == nil && strings.TrimSpace(p.Error) != "" {
		return p.Error
	}
	return apiError(status)
}
