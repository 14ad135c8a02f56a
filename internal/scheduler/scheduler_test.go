package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type scriptedJob struct {
	name  string
	runs  int
	err   error
	panic bool
}

func (j *scriptedJob) Name() string { return j.name }

func (j *scriptedJob) Run(context.Context) error {
	j.runs++
	if j.panic {
		panic("job exploded")
	}
	return j.err
}

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestPanickingJobDoesNotKillScheduler(t *testing.T) {
	s := New(testLog)
	bad := &scriptedJob{name: "bad", panic: true}
	good := &scriptedJob{name: "good"}
	s.Register("0 * * * *", bad)
	s.Register("1 * * * *", good)

	if err := s.RunNow("bad"); err != nil {
		t.Fatalf("RunNow must not propagate the panic: %v", err)
	}
	if err := s.RunNow("good"); err != nil {
		t.Fatalf("later job must still fire: %v", err)
	}
	if good.runs != 1 {
		t.Fatalf("good job runs = %d, want 1", good.runs)
	}

	snap := s.Snapshot()
	if snap[0].Last != OutcomeFailed || snap[0].Failures != 1 {
		t.Fatalf("bad job status = %+v", snap[0])
	}
	if snap[1].Last != OutcomeCompleted {
		t.Fatalf("good job status = %+v", snap[1])
	}
}

func TestFailureReturnsToIdleAndKeepsSchedule(t *testing.T) {
	s := New(testLog)
	j := &scriptedJob{name: "flaky", err: errors.New("fetch failed")}
	s.Register("0 * * * *", j)

	_ = s.RunNow("flaky")
	_ = s.RunNow("flaky")

	snap := s.Snapshot()[0]
	if snap.State != StateIdle {
		t.Fatalf("state = %s, want idle", snap.State)
	}
	if snap.Runs != 2 || snap.Failures != 2 {
		t.Fatalf("runs/failures = %d/%d, want 2/2", snap.Runs, snap.Failures)
	}

	// A later success clears the outcome without touching the schedule.
	j.err = nil
	_ = s.RunNow("flaky")
	snap = s.Snapshot()[0]
	if snap.Last != OutcomeCompleted || snap.LastErr != "" {
		t.Fatalf("status after recovery = %+v", snap)
	}
}

func TestPreRunFailureDoesNotBlockJob(t *testing.T) {
	s := New(testLog)
	j := &scriptedJob{name: "weather"}
	s.Register("0 * * * *", j, WithPreRun(func(context.Context) error {
		return errors.New("credential repair failed")
	}))

	if err := s.RunNow("weather"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.runs != 1 {
		t.Fatal("job body must run despite pre-run failure")
	}
	if s.Snapshot()[0].Last != OutcomeCompleted {
		t.Fatalf("status = %+v", s.Snapshot()[0])
	}
}

func TestSkippedJobNeverRuns(t *testing.T) {
	s := New(testLog)
	j := &scriptedJob{name: "traffic"}
	s.Register("2 * * * *", j, Skipped("TOMTOM_API_KEY is not set"))

	if err := s.RunNow("traffic"); err == nil {
		t.Fatal("expected error for disabled job")
	}
	if j.runs != 0 {
		t.Fatal("disabled job must never run")
	}
}
