package weather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// joinURLs renders "ids=<comma-joined ids>" so tests can route by station set.
type joinURLs struct{}

func (joinURLs) URL(stations []StationID, _ string, _ Units) string {
	ids := make([]string, len(stations))
	for i, id := range stations {
		ids[i] = id.String()
	}
	return "ids=" + strings.Join(ids, ",")
}

type response struct {
	body any
	err  error
}

// fakeFetcher answers by URL. Unknown URLs fail with a connection error.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]response
	panics    map[string]bool
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]response),
		panics:    make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) set(url string, body any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = response{body: body, err: err}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (any, error) {
	f.mu.Lock()
	f.calls[url]++
	r, ok := f.responses[url]
	p := f.panics[url]
	f.mu.Unlock()

	if p {
		panic("boom")
	}
	if !ok {
		return nil, NewPollError(KindConnection, "no route for "+url, nil)
	}
	return r.body, r.err
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeHealth is an idempotent HealthSink that records effective changes.
type fakeHealth struct {
	mu        sync.Mutex
	open      map[string]bool
	raised    []string
	dismissed []string
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{open: make(map[string]bool)}
}

func issueKey(kind IssueKind, station StationID) string {
	if station == "" {
		return string(kind)
	}
	return fmt.Sprintf("%s/%s", kind, station)
}

func (h *fakeHealth) Raise(issue Issue) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := issueKey(issue.Kind, issue.Station)
	if h.open[k] {
		return false
	}
	h.open[k] = true
	h.raised = append(h.raised, k)
	return true
}

func (h *fakeHealth) Dismiss(kind IssueKind, station StationID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := issueKey(kind, station)
	if !h.open[k] {
		return false
	}
	delete(h.open, k)
	h.dismissed = append(h.dismissed, k)
	return true
}

func (h *fakeHealth) raisedCount(k string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.raised {
		if r == k {
			n++
		}
	}
	return n
}

func (h *fakeHealth) isOpen(k string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open[k]
}

// captureSink records every published snapshot.
type captureSink struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (s *captureSink) Publish(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func station(name string, speed float64) map[string]any {
	return map[string]any{
		"stationName": name,
		"dateTime":    "2024-05-01 12:00:00",
		"wind": map[string]any{
			"speed":     speed,
			"gust":      speed + 2,
			"min":       speed - 1,
			"direction": 270.0,
		},
		"temperature": 14.5,
	}
}
