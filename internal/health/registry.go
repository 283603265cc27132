package health

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stefanh12/holfuy/internal/weather"
)

const maxHistoryLen = 100

// Severity of an issue as shown to operators.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is an operator-facing health issue.
type Issue struct {
	ID         string            `json:"id"`
	Kind       weather.IssueKind `json:"kind"`
	Station    weather.StationID `json:"station,omitempty"`
	Severity   Severity          `json:"severity"`
	Fixable    bool              `json:"fixable"`
	Message    string            `json:"message"`
	RaisedAt   time.Time         `json:"raised_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// Registry is an idempotent store of open health issues.
// It implements weather.HealthSink and is safe for concurrent use.
type Registry struct {
	group  string
	logger *slog.Logger

	mu      sync.RWMutex
	open    map[string]*Issue
	history []Issue
}

// NewRegistry creates a Registry whose issue ids are prefixed with group.
func NewRegistry(group string, logger *slog.Logger) *Registry {
	if group == "" {
		group = "holfuy"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		group:  group,
		logger: logger,
		open:   make(map[string]*Issue),
	}
}

// IssueID returns the id under which an issue of kind is tracked.
func (r *Registry) IssueID(kind weather.IssueKind, station weather.StationID) string {
	if kind == weather.IssueStationInaccessible {
		return fmt.Sprintf("%s_%s_%s", r.group, kind, station)
	}
	return fmt.Sprintf("%s_%s", r.group, kind)
}

// Raise opens an issue. Raising an issue that is already open is a no-op
// and returns false.
func (r *Registry) Raise(in weather.Issue) bool {
	id := r.IssueID(in.Kind, in.Station)

	r.mu.Lock()
	if _, ok := r.open[id]; ok {
		r.mu.Unlock()
		return false
	}
	issue := &Issue{
		ID:       id,
		Kind:     in.Kind,
		Station:  in.Station,
		Severity: severityOf(in.Kind),
		Fixable:  in.Kind == weather.IssueAuthFailure,
		Message:  in.Message,
		RaisedAt: time.Now().UTC(),
	}
	r.open[id] = issue
	r.mu.Unlock()

	r.logger.Warn("health issue raised",
		"id", id,
		"severity", issue.Severity,
		"message", issue.Message,
	)
	return true
}

// Dismiss resolves an open issue. Dismissing an issue that is not open is a
// no-op and returns false.
func (r *Registry) Dismiss(kind weather.IssueKind, station weather.StationID) bool {
	id := r.IssueID(kind, station)

	r.mu.Lock()
	issue, ok := r.open[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	resolved := time.Now().UTC()
	issue.ResolvedAt = &resolved
	delete(r.open, id)

	r.history = append(r.history, *issue)
	if len(r.history) > maxHistoryLen {
		r.history = r.history[len(r.history)-maxHistoryLen:]
	}
	r.mu.Unlock()

	r.logger.Info("health issue resolved", "id", id)
	return true
}

// DismissAll resolves every issue this group can raise for stations.
func (r *Registry) DismissAll(stations []weather.StationID) int {
	n := 0
	for _, kind := range []weather.IssueKind{
		weather.IssueAuthFailure,
		weather.IssueAPIConnectionFailure,
		weather.IssueInvalidResponse,
	} {
		if r.Dismiss(kind, "") {
			n++
		}
	}
	for _, id := range stations {
		if r.Dismiss(weather.IssueStationInaccessible, id) {
			n++
		}
	}
	return n
}

// IsOpen reports whether the given issue is currently open.
func (r *Registry) IsOpen(kind weather.IssueKind, station weather.StationID) bool {
	id := r.IssueID(kind, station)

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.open[id]
	return ok
}

// Open returns copies of all open issues ordered by id.
func (r *Registry) Open() []Issue {
	r.mu.RLock()
	out := make([]Issue, 0, len(r.open))
	for _, issue := range r.open {
		out = append(out, *issue)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolved returns recently resolved issues, newest first.
func (r *Registry) Resolved() []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Issue, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, r.history[i])
	}
	return out
}

func severityOf(kind weather.IssueKind) Severity {
	if kind == weather.IssueAuthFailure {
		return SeverityCritical
	}
	return SeverityWarning
}
