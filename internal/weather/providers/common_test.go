package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stefanh12/holfuy/internal/weather"
)

func testFetcher(timeout time.Duration) *HTTPFetcher {
	return NewHTTPFetcher(HTTPClientConfig{
		Timeout: timeout,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestFetchDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("stationId"); got != "101,102" {
			t.Errorf("unexpected stationId %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"101":{"stationName":"Alpha"},"102":{"stationName":"Bravo"}}`)
	}))
	defer srv.Close()

	url := NewHolfuyURLs(srv.URL+"/live/").URL([]weather.StationID{"101", "102"}, "key", weather.DefaultUnits())
	got, err := testFetcher(time.Second).Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || len(m) != 2 {
		t.Fatalf("unexpected body: %#v", got)
	}
}

func TestFetchClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   weather.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, weather.KindAuth},
		{"forbidden", http.StatusForbidden, ``, weather.KindAuth},
		{"not found", http.StatusNotFound, ``, weather.KindHTTP},
		{"server error", http.StatusInternalServerError, ``, weather.KindHTTP},
		{"not json", http.StatusOK, `<html>maintenance</html>`, weather.KindInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := testFetcher(time.Second).Fetch(context.Background(), srv.URL+"?stationId=101")
			if kind := weather.KindOf(err); kind != tt.want {
				t.Fatalf("expected kind %s, got %s (%v)", tt.want, kind, err)
			}

			var pe *weather.PollError
			if errors.As(err, &pe) && (tt.want == weather.KindAuth || tt.want == weather.KindHTTP) && pe.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, pe.StatusCode)
			}
		})
	}
}

func TestFetchBlankBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "  \n")
	}))
	defer srv.Close()

	got, err := testFetcher(time.Second).Fetch(context.Background(), srv.URL)
	if err != nil || got != nil {
		t.Fatalf("expected nil body and no error, got %v, %v", got, err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := testFetcher(50*time.Millisecond).Fetch(context.Background(), srv.URL)
	if kind := weather.KindOf(err); kind != weather.KindTimeout {
		t.Fatalf("expected kind timeout, got %s (%v)", kind, err)
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testFetcher(time.Second).Fetch(context.Background(), url)
	if kind := weather.KindOf(err); kind != weather.KindConnection {
		t.Fatalf("expected kind connection, got %s (%v)", kind, err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"stationName":"Alpha"}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPClientConfig{
		Timeout: time.Second,
		Backoff: BackoffConfig{MaxRetries: 2, InitialInterval: 10 * time.Millisecond},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchDoesNotRetryAuth(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPClientConfig{
		Timeout: time.Second,
		Backoff: BackoffConfig{MaxRetries: 3, InitialInterval: 10 * time.Millisecond},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	_, _ = f.Fetch(context.Background(), srv.URL)
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := testFetcher(time.Second)
	url := srv.URL + "/live/?stationId=101&apiKey=k"
	for i := 0; i < breakerFailures; i++ {
		_, _ = f.Fetch(context.Background(), url)
	}

	_, err := f.Fetch(context.Background(), url)
	if kind := weather.KindOf(err); kind != weather.KindConnection {
		t.Fatalf("expected kind connection from open breaker, got %s (%v)", kind, err)
	}
	if !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("expected breaker error, got %v", err)
	}
	if int(calls.Load()) != breakerFailures {
		t.Fatalf("expected %d upstream calls, got %d", breakerFailures, calls.Load())
	}

	other := srv.URL + "/live/?stationId=102&apiKey=k"
	_, err = f.Fetch(context.Background(), other)
	if kind := weather.KindOf(err); kind != weather.KindHTTP {
		t.Fatalf("breaker must be per target, got %s (%v)", kind, err)
	}
}

func TestAuthFailuresDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := testFetcher(time.Second)
	for i := 0; i < breakerFailures+2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		if kind := weather.KindOf(err); kind != weather.KindAuth {
			t.Fatalf("attempt %d: expected kind auth, got %s", i, kind)
		}
	}
}

func TestBreakerKeyOmitsCredentials(t *testing.T) {
	a := breakerKey("https://api.holfuy.com/live/?stationId=101,102&apiKey=one")
	b := breakerKey("https://api.holfuy.com/live/?stationId=101,102&apiKey=two")
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if strings.Contains(a, "one") {
		t.Fatalf("key leaks the api key: %q", a)
	}
}
