package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"carpool/pkg/logger"
)

func TestRegisterRejectsInvalidJobs(t *testing.T) {
	t.Parallel()

	s := New(logger.NewNop())
	noop := func(context.Context, time.Time) error { return nil }

	tests := []struct {
		name string
		job  Job
	}{
		{"missing name", Job{Interval: time.Second, Run: noop}},
		{"missing func", Job{Name: "x", Interval: time.Second}},
		{"zero interval", Job{Name: "x", Run: noop}},
	}
	for _, tt := range tests {
		if err := s.Register(tt.job); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	if err := s.Register(Job{Name: "dup", Interval: time.Second, Run: noop}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(Job{Name: "dup", Interval: time.Second, Run: noop}); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
}

func TestRunFiresJobsUntilCanceled(t *testing.T) {
	t.Parallel()

	s := New(logger.NewNop())
	var runs, failures int32

	s.Register(Job{
		Name:       "counter",
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context, time.Time) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	s.Register(Job{
		Name:     "failing",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context, time.Time) error {
			atomic.AddInt32(&failures, 1)
			return errors.New("boom")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if atomic.LoadInt32(&runs) < 2 {
		t.Errorf("expected counter job to run repeatedly, got %d", runs)
	}
	if atomic.LoadInt32(&failures) < 2 {
		t.Errorf("expected failing job to keep being scheduled, got %d", failures)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected second Run to fail")
	}
}
