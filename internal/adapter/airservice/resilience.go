package airservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"
)

// Backoff controls retries of transient upstream failures.
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errInvalidRetry = errors.New("invalid backoff configuration")
)

// retryableStatusError is a 429 or 5xx response. Its body is kept so the
// caller can still surface an error field the service put in it.
type retryableStatusError struct {
	status int
	body   []byte
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

// rawResponse is a fully read upstream response.
type rawResponse struct {
	status int
	body   []byte
}

func newBreaker(name string, failures int) *gobreaker.CircuitBreaker {
	if failures <= 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
	})
}

// doWithResilience runs the request inside the circuit breaker, retrying
// transport errors and 429/5xx responses with capped exponential backoff.
// Other non-2xx responses are returned as-is for the caller to classify.
func doWithResilience(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	backoff Backoff,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (rawResponse, error) {
	if backoff.MaxRetries < 0 || backoff.InitialInterval <= 0 {
		return rawResponse{}, errInvalidRetry
	}

	delay := backoff.InitialInterval
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return rawResponse{}, err
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return rawResponse{}, fmt.Errorf("create request: %w", err)
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, doErr := client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, fmt.Errorf("read body: %w", readErr)
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, &retryableStatusError{status: resp.StatusCode, body: body}
			}
			return rawResponse{status: resp.StatusCode, body: body}, nil
		})
		if err == nil {
			return result.(rawResponse), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return rawResponse{}, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if attempt >= backoff.MaxRetries || ctx.Err() != nil {
			return rawResponse{}, err
		}

		if !retry.SleepWithContext(ctx, delay) {
			return rawResponse{}, ctx.Err()
		}
		delay = retry.NextBackoff(delay, backoff.MaxInterval)
	}
}
