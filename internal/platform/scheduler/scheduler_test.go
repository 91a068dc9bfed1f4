package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDaily_Registers(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	err := s.Daily(Job{Name: "day-close", At: "23:55", Run: func(context.Context) error { return nil }})
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	next := s.NextRuns()
	if _, ok := next["day-close"]; !ok {
		t.Errorf("expected day-close in %v", next)
	}
}

func TestDaily_Validation(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name string
		job  Job
	}{
		{"no name", Job{At: "08:00", Run: noop}},
		{"no run", Job{Name: "scan", At: "08:00"}},
		{"bad time", Job{Name: "scan", At: "8am", Run: noop}},
		{"out of range", Job{Name: "scan", At: "25:00", Run: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Daily(tt.job); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExecute(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	var gotDeadline bool
	s.execute(Job{Name: "ok", Run: func(ctx context.Context) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	}})
	if !gotDeadline {
		t.Error("expected job context to carry a deadline")
	}

	// Failures and panics are logged, not propagated.
	s.execute(Job{Name: "fails", Run: func(context.Context) error { return errors.New("boom") }})
	s.execute(Job{Name: "panics", Run: func(context.Context) error { panic("boom") }})
}
