package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stefanh12/holfuy/internal/weather"
)

const (
	// DefaultRequestTimeout bounds every upstream request.
	DefaultRequestTimeout = 10 * time.Second

	maxResponseBodySize = 1 << 20 // 1MB

	breakerFailures = 5
	breakerTimeout  = time.Minute
)

// BackoffConfig controls the retries of a single request. Retries share the
// request timeout, so they never extend it.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Timeout time.Duration
	Backoff BackoffConfig
	Logger  *slog.Logger
}

var errNoHTTPClient = errors.New("http client not configured")

// HTTPFetcher performs upstream GET requests and classifies their failures
// as *weather.PollError. Each target (endpoint plus station list) gets its
// own circuit breaker.
type HTTPFetcher struct {
	cfg    HTTPClientConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets a pooled default
// without a global timeout; timeouts are applied per request.
func NewHTTPFetcher(cfg HTTPClientConfig) *HTTPFetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     10,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPFetcher{
		cfg:      cfg,
		logger:   cfg.Logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Fetch issues a GET for rawURL and returns the decoded JSON body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (any, error) {
	if f.cfg.Client == nil {
		return nil, weather.NewPollError(weather.KindConnection, "fetch", errNoHTTPClient)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	cb := f.breaker(breakerKey(rawURL))

	for attempt := 0; ; attempt++ {
		result, err := cb.Execute(func() (interface{}, error) {
			return f.do(ctx, rawURL)
		})
		if err == nil {
			return result, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, weather.NewPollError(weather.KindConnection, "circuit breaker open for "+cb.Name(), err)
		}

		if attempt >= f.cfg.Backoff.MaxRetries || !retryable(err) {
			return nil, err
		}

		delay := f.cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if f.cfg.Backoff.MaxInterval > 0 && delay > f.cfg.Backoff.MaxInterval {
			delay = f.cfg.Backoff.MaxInterval
		}

		f.logger.Debug("retrying upstream request",
			"target", cb.Name(),
			"attempt", attempt+1,
			"delay", delay,
			"err", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, weather.NewPollError(weather.KindUnknown, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &weather.PollError{
			Kind:       weather.KindAuth,
			Message:    fmt.Sprintf("upstream returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &weather.PollError{
			Kind:       weather.KindHTTP,
			Message:    fmt.Sprintf("upstream returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	return decodeBody(body)
}

// decodeBody parses a JSON body. A blank body decodes to nil.
func decodeBody(body []byte) (any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, weather.NewPollError(weather.KindInvalidResponse, "response is not valid JSON", err)
	}
	return out, nil
}

func classifyTransport(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return weather.NewPollError(weather.KindTimeout, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return weather.NewPollError(weather.KindTimeout, "request timed out", err)
	default:
		return weather.NewPollError(weather.KindConnection, "request failed", err)
	}
}

// retryable reports whether a failure may go away on an immediate retry.
func retryable(err error) bool {
	var pe *weather.PollError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case weather.KindConnection, weather.KindTimeout:
		return true
	case weather.KindHTTP:
		return pe.StatusCode == http.StatusTooManyRequests || pe.StatusCode >= 500
	default:
		return false
	}
}

// countsAsFailure reports whether err says something about the upstream's
// availability. Rejected credentials and malformed bodies do not trip the
// breaker.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch weather.KindOf(err) {
	case weather.KindAuth, weather.KindInvalidResponse:
		return false
	case weather.KindHTTP:
		return retryable(err)
	default:
		return true
	}
}

func (f *HTTPFetcher) breaker(key string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("circuit breaker state changed",
				"target", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	f.breakers[key] = cb
	return cb
}

// breakerKey identifies a target without its credentials.
func breakerKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host + u.Path + "?stationId=" + u.Query().Get("stationId")
}
