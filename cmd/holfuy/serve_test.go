package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type recorder struct {
	steps []string
}

type fakeServer struct {
	rec *recorder
	err error
}

func (s fakeServer) ShutdownWithContext(context.Context) error {
	s.rec.steps = append(s.rec.steps, "http")
	return s.err
}

type fakeScheduler struct{ rec *recorder }

func (s fakeScheduler) Stop() { s.rec.steps = append(s.rec.steps, "scheduler") }

type fakePoller struct{ rec *recorder }

func (p fakePoller) Teardown() { p.rec.steps = append(p.rec.steps, "teardown") }

func TestShutdownStopsSchedulerBeforeTeardown(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"clean", nil},
		{"http error", errors.New("listener busy")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			shutdown(context.Background(), logger, fakeServer{rec: rec, err: tt.err}, fakeScheduler{rec}, fakePoller{rec})

			want := []string{"http", "scheduler", "teardown"}
			if len(rec.steps) != len(want) {
				t.Fatalf("expected steps %v, got %v", want, rec.steps)
			}
			for i := range want {
				if rec.steps[i] != want[i] {
					t.Fatalf("expected steps %v, got %v", want, rec.steps)
				}
			}
		})
	}
}
