package health

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stefanh12/holfuy/internal/weather"
)

func newTestRegistry() *Registry {
	return NewRegistry("entry1", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryRaiseIsIdempotent(t *testing.T) {
	r := newTestRegistry()

	if !r.Raise(weather.Issue{Kind: weather.IssueAuthFailure, Message: "401"}) {
		t.Fatal("first raise must open the issue")
	}
	if r.Raise(weather.Issue{Kind: weather.IssueAuthFailure, Message: "401 again"}) {
		t.Fatal("second raise must be a no-op")
	}

	open := r.Open()
	if len(open) != 1 {
		t.Fatalf("expected one open issue, got %d", len(open))
	}
	issue := open[0]
	if issue.ID != "entry1_auth_failure" {
		t.Fatalf("unexpected id %q", issue.ID)
	}
	if issue.Severity != SeverityCritical || !issue.Fixable {
		t.Fatalf("auth failure must be critical and fixable: %+v", issue)
	}
	if issue.Message != "401" {
		t.Fatalf("a repeated raise must not overwrite the issue, got %q", issue.Message)
	}
}

func TestRegistryDismissIsIdempotent(t *testing.T) {
	r := newTestRegistry()

	if r.Dismiss(weather.IssueInvalidResponse, "") {
		t.Fatal("dismissing a missing issue must be a no-op")
	}

	r.Raise(weather.Issue{Kind: weather.IssueInvalidResponse})
	if !r.Dismiss(weather.IssueInvalidResponse, "") {
		t.Fatal("dismiss must resolve an open issue")
	}
	if r.Dismiss(weather.IssueInvalidResponse, "") {
		t.Fatal("second dismiss must be a no-op")
	}

	resolved := r.Resolved()
	if len(resolved) != 1 || resolved[0].ResolvedAt == nil {
		t.Fatalf("expected one resolved issue, got %+v", resolved)
	}
}

func TestRegistryStationIssues(t *testing.T) {
	r := newTestRegistry()

	r.Raise(weather.Issue{Kind: weather.IssueStationInaccessible, Station: "101"})
	r.Raise(weather.Issue{Kind: weather.IssueStationInaccessible, Station: "102"})

	if !r.IsOpen(weather.IssueStationInaccessible, "101") {
		t.Fatal("expected station 101 issue to be open")
	}
	open := r.Open()
	if len(open) != 2 {
		t.Fatalf("expected two issues, got %d", len(open))
	}
	if open[0].ID != "entry1_station_inaccessible_101" || open[0].Severity != SeverityWarning || open[0].Fixable {
		t.Fatalf("unexpected station issue: %+v", open[0])
	}

	r.Dismiss(weather.IssueStationInaccessible, "101")
	if r.IsOpen(weather.IssueStationInaccessible, "101") || !r.IsOpen(weather.IssueStationInaccessible, "102") {
		t.Fatal("dismiss must only affect the given station")
	}
}

func TestRegistryDismissAll(t *testing.T) {
	r := newTestRegistry()
	r.Raise(weather.Issue{Kind: weather.IssueAuthFailure})
	r.Raise(weather.Issue{Kind: weather.IssueAPIConnectionFailure})
	r.Raise(weather.Issue{Kind: weather.IssueStationInaccessible, Station: "101"})

	if n := r.DismissAll([]weather.StationID{"101", "102"}); n != 3 {
		t.Fatalf("expected 3 dismissed issues, got %d", n)
	}
	if len(r.Open()) != 0 {
		t.Fatalf("expected no open issues, got %v", r.Open())
	}
}

func TestRegistryDefaultGroup(t *testing.T) {
	r := NewRegistry("", nil)
	if got := r.IssueID(weather.IssueAPIConnectionFailure, ""); got != "holfuy_api_connection_failure" {
		t.Fatalf("unexpected id %q", got)
	}
}
