// Package scheduler triggers the ingestion jobs at fixed minute offsets
// within every hour. Failures are isolated per job: a panic or error inside
// one job body is caught at the job boundary and never terminates the
// scheduling loop or suppresses later triggers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// State is the lifecycle position of a job between triggers.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Outcome is the result of a job's most recent run.
type Outcome string

const (
	OutcomeNone      Outcome = "never-ran"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

type entry struct {
	job      Job
	cronExpr string
	preRun   func(ctx context.Context) error
	skip     string // non-empty: permanently skipped, value is the reason

	mu       sync.Mutex
	state    State
	last     Outcome
	lastErr  error
	lastRun  time.Time
	runs     int
	failures int
}

// JobStatus is a point-in-time view of one job for observability.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	State    State     `json:"state"`
	Last     Outcome   `json:"lastOutcome"`
	LastErr  string    `json:"lastError,omitempty"`
	LastRun  time.Time `json:"lastRun,omitempty"`
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
}

// Option configures a registered job.
type Option func(*entry)

// WithPreRun attaches a step executed before the job body. Its failure is
// logged as critical but never blocks the job (used for the hourly
// credential self-repair before the first job of the cycle).
func WithPreRun(fn func(ctx context.Context) error) Option {
	return func(e *entry) { e.preRun = fn }
}

// Skipped registers the job as permanently disabled for this process, e.g.
// when its credential is missing. The reason is logged once at startup.
func Skipped(reason string) Option {
	return func(e *entry) { e.skip = reason }
}

// Scheduler owns its job table and the underlying cron runner; it is
// constructed once per process and passed by reference, never ambient.
type Scheduler struct {
	cron *gocron.Scheduler
	log  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	baseCtx context.Context
}

func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		log:     log,
		entries: make(map[string]*entry),
	}
}

// Register adds a job at the given cron expression ("2 * * * *" fires at
// minute 2 of every hour). Must be called before Start.
func (s *Scheduler) Register(cronExpr string, job Job, opts ...Option) {
	e := &entry{
		job:      job,
		cronExpr: cronExpr,
		state:    StateIdle,
		last:     OutcomeNone,
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[job.Name()] = e
	s.order = append(s.order, job.Name())
}

// Start wires the job table into the cron runner and starts it. ctx is the
// process context: job runs derive from it so an interrupt reaches the
// in-flight batch (which is transactional and rolls back).
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.order {
		e := s.entries[name]
		if e.skip != "" {
			s.log.Error("job permanently disabled", "job", name, "reason", e.skip)
			e.last = OutcomeSkipped
			continue
		}

		name := name
		if _, err := s.cron.Cron(e.cronExpr).Do(func() { s.dispatch(name) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		s.log.Info("job scheduled", "job", name, "cron", e.cronExpr)
	}

	s.cron.StartAsync()
	return nil
}

// Stop halts the cron runner; a running job finishes its current dispatch.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunNow triggers one job outside its schedule (manual runs, tests).
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if e.skip != "" {
		return fmt.Errorf("job %q is disabled: %s", name, e.skip)
	}
	s.dispatch(name)
	return nil
}

// dispatch is the trigger boundary. Nothing may escape it: an error or
// panic is recorded against the job and the loop resumes after a short
// delay on the next trigger as if nothing happened.
func (s *Scheduler) dispatch(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatch escaped; resuming loop", "job", name, "panic", r)
			time.Sleep(5 * time.Second)
		}
	}()

	s.mu.RLock()
	e := s.entries[name]
	s.mu.RUnlock()

	s.runEntry(name, e)
}

func (s *Scheduler) runEntry(name string, e *entry) {
	e.mu.Lock()
	e.state = StateRunning
	e.runs++
	e.lastRun = time.Now().UTC()
	e.mu.Unlock()

	outcome, err := s.runBody(name, e)

	e.mu.Lock()
	e.state = StateIdle
	e.last = outcome
	e.lastErr = err
	if outcome == OutcomeFailed {
		e.failures++
	}
	e.mu.Unlock()
}

// runBody executes preRun and the job, converting panics into failures.
func (s *Scheduler) runBody(name string, e *entry) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", name, "panic", r)
			outcome, err = OutcomeFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if e.preRun != nil {
		if preErr := e.preRun(ctx); preErr != nil {
			// Critical but non-blocking: the fetch simply fails on its
			// own if the repair did not take.
			s.log.Error("pre-run step failed", "job", name, "error", preErr)
		}
	}

	s.log.Info("job starting", "job", name)
	if runErr := e.job.Run(ctx); runErr != nil {
		s.log.Error("job failed", "job", name, "error", runErr)
		return OutcomeFailed, runErr
	}
	s.log.Info("job completed", "job", name)
	return OutcomeCompleted, nil
}

// Snapshot reports every registered job's current status in registration
// order.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		e.mu.Lock()
		st := JobStatus{
			Name:     name,
			Schedule: e.cronExpr,
			State:    e.state,
			Last:     e.last,
			LastRun:  e.lastRun,
			Runs:     e.runs,
			Failures: e.failures,
		}
		if e.lastErr != nil {
			st.LastErr = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	return out
}
