package weather

import (
	"context"
	"time"
)

// Fetcher performs one upstream request and returns the decoded JSON body.
// Failures must be returned as *PollError so the engine can classify them.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (any, error)
}

// URLBuilder renders the request URL for one or many stations.
type URLBuilder interface {
	URL(stations []StationID, apiKey string, units Units) string
}

// DataSink receives the station map of every successful cycle.
type DataSink interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// HealthSink records durable, operator-facing health issues.
// Both operations are idempotent: raising an open issue and dismissing a
// missing one are no-ops. The bool reports whether anything changed.
type HealthSink interface {
	Raise(issue Issue) bool
	Dismiss(kind IssueKind, station StationID) bool
}

// SnapshotProvider is the capability consumed by presentation adapters.
type SnapshotProvider interface {
	Poll(ctx context.Context) (StationMap, error)
	Interval() time.Duration
}

// IssueKind names one of the four health issue families.
type IssueKind string

const (
	IssueAuthFailure          IssueKind = "auth_failure"
	IssueStationInaccessible  IssueKind = "station_inaccessible"
	IssueAPIConnectionFailure IssueKind = "api_connection_failure"
	IssueInvalidResponse      IssueKind = "invalid_response"
)

// Issue is a health event raised by the engine.
type Issue struct {
	Kind    IssueKind
	Station StationID // set only for IssueStationInaccessible
	Message string
}
