package weather

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller orchestrates one station group: it owns the PollState, runs engine
// cycles and hands every successful station map to the data sinks.
//
// Poll is meant to be driven by a single scheduler. State and Latest may be
// called concurrently from readers such as the HTTP API.
type Poller struct {
	engine *Engine
	query  Query
	sinks  []DataSink
	health HealthSink
	logger *slog.Logger

	// state is touched only by Poll.
	state *PollState

	mu        sync.RWMutex
	published PollState
	latest    Snapshot
}

// NewPoller creates a Poller for q. The health sink is only used on
// teardown; the engine carries its own reference for cycle events.
func NewPoller(engine *Engine, q Query, health HealthSink, logger *slog.Logger, sinks ...DataSink) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = noopHealth{}
	}
	q.Stations = uniqueStations(q.Stations)

	state := NewPollState(engine.Config().DefaultInterval)
	return &Poller{
		engine:    engine,
		query:     q,
		sinks:     sinks,
		health:    health,
		logger:    logger,
		state:     state,
		published: state.Clone(),
	}
}

// Poll runs one cycle and publishes its result.
// Sink failures are logged and do not fail the cycle.
func (p *Poller) Poll(ctx context.Context) (StationMap, error) {
	start := time.Now()
	stations, err := p.engine.Poll(ctx, p.state, p.query)

	p.mu.Lock()
	p.published = p.state.Clone()
	if err == nil {
		p.latest = Snapshot{Stations: stations, Timestamp: time.Now().UTC()}
	}
	snap := p.latest
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	p.logger.Debug("poll cycle completed",
		"stations", len(stations),
		"requested", len(p.query.Stations),
		"duration", time.Since(start),
	)

	for _, sink := range p.sinks {
		if perr := sink.Publish(ctx, snap); perr != nil {
			p.logger.Warn("data sink publish failed", "err", perr)
		}
	}
	return stations, nil
}

// Interval returns the delay the scheduler should wait before the next cycle.
func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published.Interval
}

// State returns a copy of the poll state as of the last completed cycle.
func (p *Poller) State() PollState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published.Clone()
}

// Latest returns the station map of the last successful cycle.
func (p *Poller) Latest() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Stations returns the configured, canonicalized station ids.
func (p *Poller) Stations() []StationID {
	out := make([]StationID, len(p.query.Stations))
	copy(out, p.query.Stations)
	return out
}

// Teardown dismisses every health issue this group may have raised.
func (p *Poller) Teardown() {
	for _, kind := range []IssueKind{IssueAuthFailure, IssueAPIConnectionFailure, IssueInvalidResponse} {
		p.health.Dismiss(kind, "")
	}
	for _, id := range p.query.Stations {
		p.health.Dismiss(IssueStationInaccessible, id)
	}
	p.logger.Info("poller torn down", "stations", len(p.query.Stations))
}
