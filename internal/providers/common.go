package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var errUnexpectedStatus = errors.New("unexpected status code")

// httpConfig bundles the shared HTTP client with the single fixed backoff
// applied after a 429 before the call is given up for this cycle.
type httpConfig struct {
	client  *http.Client
	backoff time.Duration
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes one HTTP request through the provider's circuit
// breaker. There are no retries: a 429 sleeps the fixed backoff (to let the
// provider's window reset before the next station or cycle) and then
// surfaces as a rate-limited TransientError; 5xx and transport failures
// surface as TransientError immediately.
func doRequest(ctx context.Context, source string, cfg httpConfig, cb *gobreaker.CircuitBreaker, req *http.Request) (*http.Response, error) {
	if cfg.client == nil {
		return nil, fmt.Errorf("%s: http client not configured", source)
	}

	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.client.Do(req)
		if execErr != nil {
			return nil, &TransientError{Source: source, Err: execErr}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			return nil, &TransientError{Source: source, RateLimited: true, Err: errUnexpectedStatus}
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return nil, &TransientError{Source: source, Err: fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			resp.Body.Close()
			return nil, fmt.Errorf("%s: %w: %d", source, errUnexpectedStatus, resp.StatusCode)
		}
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransientError{Source: source, Err: err}
		}
		var te *TransientError
		if errors.As(err, &te) && te.RateLimited {
			sleepCtx(ctx, cfg.backoff)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type from circuit breaker", source)
	}
	return resp, nil
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
