package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultInterval is the polling period while the upstream is healthy.
	DefaultInterval = 2 * time.Minute
	// DefaultMaxInterval caps the adaptive backoff.
	DefaultMaxInterval = 15 * time.Minute
	// DefaultFailureThreshold is the number of consecutive failures after
	// which a station is reported as inaccessible.
	DefaultFailureThreshold = 3
)

// EngineConfig tunes the adaptive interval and per-station health tracking.
type EngineConfig struct {
	DefaultInterval  time.Duration
	MaxInterval      time.Duration
	FailureThreshold int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = DefaultInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxInterval < c.DefaultInterval {
		c.MaxInterval = c.DefaultInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	return c
}

// Engine runs poll cycles: one combined request, a per-station fallback pass
// when the combined response cannot be split, failure classification,
// adaptive backoff and per-station health tracking.
//
// Engine holds no mutable state of its own; everything lives in the
// PollState passed to Poll. Callers must not run two cycles concurrently
// on the same PollState.
type Engine struct {
	fetcher Fetcher
	urls    URLBuilder
	health  HealthSink
	logger  *slog.Logger
	cfg     EngineConfig
}

// NewEngine creates an Engine. A nil health sink discards health issues.
func NewEngine(fetcher Fetcher, urls URLBuilder, health HealthSink, logger *slog.Logger, cfg EngineConfig) *Engine {
	if health == nil {
		health = noopHealth{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		fetcher: fetcher,
		urls:    urls,
		health:  health,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// Config returns the effective engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// stationResult is the outcome of one fallback request.
type stationResult struct {
	snap StationSnapshot
	err  error
}

// causes records which failure classes were observed during one cycle.
type causes struct {
	auth    bool
	invalid bool
}

func (c *causes) note(err error) {
	switch KindOf(err) {
	case KindAuth:
		c.auth = true
	case KindInvalidResponse:
		c.invalid = true
	}
}

// Poll runs one update cycle for q and mutates state accordingly.
//
// It returns the (possibly partial) station map, or a *PollError when the
// cycle failed as a whole. A legitimately empty upstream answer is a
// success with an empty map; failing to reach every station is an error.
func (e *Engine) Poll(ctx context.Context, state *PollState, q Query) (out StationMap, err error) {
	if state.StationFailures == nil {
		state.StationFailures = make(map[StationID]int)
	}

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			e.logger.Error("poll cycle panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out = nil
			err = NewPollError(KindUnknown, fmt.Sprintf("unexpected failure (correlation_id: %s)", correlationID), nil)
			e.recordFailure(state, err)
		}
	}()

	stations := uniqueStations(q.Stations)
	if len(stations) == 0 {
		e.recordFullSuccess(state, nil)
		return StationMap{}, nil
	}

	var seen causes

	raw, cerr := e.fetcher.Fetch(ctx, e.urls.URL(stations, q.APIKey, q.Units))
	if cerr != nil {
		seen.note(cerr)
		e.logger.Debug("combined request failed, falling back to per-station requests",
			"stations", len(stations),
			"kind", KindOf(cerr),
			"err", cerr,
		)
	} else {
		m, nerr := Normalize(raw, stations)
		if nerr == nil {
			e.recordFullSuccess(state, stations)
			return m, nil
		}
		e.logger.Debug("combined response needs per-station requests",
			"stations", len(stations),
			"reason", nerr,
		)
	}

	results := e.fetchEach(ctx, stations, q)

	out = make(StationMap, len(stations))
	var failures []error
	for i, id := range stations {
		res := results[i]
		if res.err != nil {
			seen.note(res.err)
			failures = append(failures, res.err)
			e.stationFailed(state, id, res.err)
			continue
		}
		out[id] = res.snap
		e.stationRecovered(state, id)
	}

	e.reportCauses(seen)

	if len(out) == 0 {
		kind := dominantKind(failures)
		switch {
		case seen.auth:
			kind = KindAuth
		case seen.invalid:
			kind = KindInvalidResponse
		}
		err = &PollError{
			Kind:    kind,
			Message: fmt.Sprintf("all %d stations failed", len(stations)),
			Err:     errors.Join(append([]error{ErrAllStationsFailed}, failures...)...),
		}
		e.recordFailure(state, err)
		return nil, err
	}

	e.recordSuccess(state, seen)
	return out, nil
}

// fetchEach requests every station concurrently. Each request has its own
// timeout (applied by the Fetcher) and its own panic boundary, so one
// station can neither cancel nor delay the others.
func (e *Engine) fetchEach(ctx context.Context, stations []StationID, q Query) []stationResult {
	results := make([]stationResult, len(stations))

	var wg sync.WaitGroup
	for i, id := range stations {
		wg.Add(1)
		go func(i int, id StationID) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					correlationID := uuid.NewString()
					e.logger.Error("station request panic",
						"station", id,
						"correlation_id", correlationID,
						"panic", fmt.Sprintf("%v", r),
					)
					results[i] = stationResult{err: NewPollError(KindUnknown,
						fmt.Sprintf("station %s: unexpected failure (correlation_id: %s)", id, correlationID), nil)}
				}
			}()
			results[i] = e.fetchStation(ctx, id, q)
		}(i, id)
	}
	wg.Wait()

	return results
}

func (e *Engine) fetchStation(ctx context.Context, id StationID, q Query) stationResult {
	ids := []StationID{id}
	raw, err := e.fetcher.Fetch(ctx, e.urls.URL(ids, q.APIKey, q.Units))
	if err != nil {
		return stationResult{err: err}
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return stationResult{err: NewPollError(KindInvalidResponse,
			fmt.Sprintf("station %s: expected a JSON object, got %T", id, raw), nil)}
	}

	m, nerr := Normalize(obj, ids)
	switch {
	case nerr == nil && m[id] != nil:
		return stationResult{snap: m[id]}
	case nerr != nil && looksLikeStation(obj):
		return stationResult{snap: StationSnapshot(obj)}
	default:
		return stationResult{err: NewPollError(KindInvalidResponse,
			fmt.Sprintf("station %s: response carries no station data", id), nil)}
	}
}

func (e *Engine) stationFailed(state *PollState, id StationID, err error) {
	n := state.StationFailures[id] + 1
	state.StationFailures[id] = n

	e.logger.Warn("station request failed",
		"station", id,
		"kind", KindOf(err),
		"consecutive_failures", n,
		"err", err,
	)

	if n == e.cfg.FailureThreshold {
		e.health.Raise(Issue{
			Kind:    IssueStationInaccessible,
			Station: id,
			Message: fmt.Sprintf("station %s failed %d consecutive polls: %v", id, n, err),
		})
	}
}

func (e *Engine) stationRecovered(state *PollState, id StationID) {
	if n := state.StationFailures[id]; n > 0 {
		e.logger.Info("station recovered", "station", id, "after_failures", n)
	}
	delete(state.StationFailures, id)
	e.health.Dismiss(IssueStationInaccessible, id)
}

// reportCauses raises the auth and invalid-response issues for failures seen
// anywhere in the cycle.
func (e *Engine) reportCauses(seen causes) {
	if seen.auth {
		e.health.Raise(Issue{
			Kind:    IssueAuthFailure,
			Message: "upstream rejected the API key (HTTP 401/403)",
		})
	}
	if seen.invalid {
		e.health.Raise(Issue{
			Kind:    IssueInvalidResponse,
			Message: "upstream returned a body that is not valid JSON station data",
		})
	}
}

// recordFullSuccess handles a decomposable combined response: every counter
// is reset and every open issue is dismissed.
func (e *Engine) recordFullSuccess(state *PollState, stations []StationID) {
	for id := range state.StationFailures {
		e.health.Dismiss(IssueStationInaccessible, id)
	}
	for _, id := range stations {
		e.health.Dismiss(IssueStationInaccessible, id)
	}
	state.StationFailures = make(map[StationID]int)
	e.recordSuccess(state, causes{})
}

// recordSuccess restores the default interval after a full or partial
// success and dismisses issues the cycle has proven resolved.
func (e *Engine) recordSuccess(state *PollState, seen causes) {
	if state.ConsecutiveErrors > 0 {
		e.logger.Info("polling recovered",
			"after_errors", state.ConsecutiveErrors,
			"interval", e.cfg.DefaultInterval,
		)
	}
	state.ConsecutiveErrors = 0
	state.LastErrorKind = ""
	state.Interval = e.cfg.DefaultInterval
	state.LastSuccess = time.Now().UTC()

	e.health.Dismiss(IssueAPIConnectionFailure, "")
	if !seen.auth {
		e.health.Dismiss(IssueAuthFailure, "")
	}
	if !seen.invalid {
		e.health.Dismiss(IssueInvalidResponse, "")
	}
}

// recordFailure applies the exponential backoff after a failed cycle.
func (e *Engine) recordFailure(state *PollState, err error) {
	state.ConsecutiveErrors++
	state.LastErrorKind = KindOf(err)
	state.LastFailure = time.Now().UTC()

	prev := state.Interval
	next := backoffInterval(e.cfg.DefaultInterval, e.cfg.MaxInterval, state.ConsecutiveErrors)
	state.Interval = next

	e.logger.Error("poll cycle failed",
		"kind", state.LastErrorKind,
		"consecutive_errors", state.ConsecutiveErrors,
		"err", err,
	)

	if next != prev {
		e.logger.Warn("polling throttled",
			"interval", next,
			"previous_interval", prev,
			"consecutive_errors", state.ConsecutiveErrors,
		)
	}

	reachedCap := next >= e.cfg.MaxInterval && (prev < e.cfg.MaxInterval || state.ConsecutiveErrors == 1)
	if reachedCap {
		e.health.Raise(Issue{
			Kind: IssueAPIConnectionFailure,
			Message: fmt.Sprintf("upstream unreachable for %d consecutive polls, polling every %s",
				state.ConsecutiveErrors, next),
		})
	}
}

// looksLikeStation reports whether obj carries any single-station field.
func looksLikeStation(obj map[string]any) bool {
	for _, k := range singleStationFields {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func uniqueStations(in []StationID) []StationID {
	seen := make(map[StationID]struct{}, len(in))
	out := make([]StationID, 0, len(in))
	for _, raw := range in {
		id := CanonicalStationID(string(raw))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type noopHealth struct{}

func (noopHealth) Raise(Issue) bool                  { return false }
func (noopHealth) Dismiss(IssueKind, StationID) bool { return false }
