// Package scheduler runs a job periodically without ever overlapping two runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mstgnz/paysettle/infra/logger"
)

// ErrAlreadyRunning is returned by RunOnce while another run is in progress
var ErrAlreadyRunning = errors.New("scheduler: job already running")

// Job is the unit of work. T is whatever report the job produces.
type Job[T any] interface {
	Execute(ctx context.Context) (T, error)
}

// JobFunc adapts a function to Job
type JobFunc[T any] func(ctx context.Context) (T, error)

// Execute implements Job
func (f JobFunc[T]) Execute(ctx context.Context) (T, error) { return f(ctx) }

// Status is a snapshot of the scheduler state
type Status struct {
	Name         string    `json:"name"`
	Period       string    `json:"period"`
	Running      bool      `json:"running"`
	Runs         int       `json:"runs"`
	LastStarted  time.Time `json:"lastStarted,omitzero"`
	LastFinished time.Time `json:"lastFinished,omitzero"`
	LastError    string    `json:"lastError,omitempty"`
}

// Scheduler triggers Job every period. Scheduled ticks and RunOnce share one guard.
type Scheduler[T any] struct {
	name   string
	job    Job[T]
	period time.Duration
	now    func() time.Time

	mu     sync.Mutex
	status Status
}

// New creates a scheduler; period must be positive
func New[T any](name string, period time.Duration, job Job[T]) (*Scheduler[T], error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler %s: job is required", name)
	}
	if period <= 0 {
		return nil, fmt.Errorf("scheduler %s: period must be positive, got %s", name, period)
	}
	return &Scheduler[T]{
		name:   name,
		job:    job,
		period: period,
		now:    time.Now,
		status: Status{Name: name, Period: period.String()},
	}, nil
}

// Run blocks, executing the job on every tick until ctx is cancelled.
// A tick that fires while a run is still in progress is skipped.
func (s *Scheduler[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	log := logger.WithContext(logger.LogContext{Fields: map[string]any{"job": s.name}})
	log.Info(fmt.Sprintf("scheduler started, period %s", s.period))

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrAlreadyRunning) {
					log.Warn("previous run still in progress, tick skipped")
					continue
				}
				log.Error("scheduled run failed", err)
			}
		}
	}
}

// RunOnce executes the job now unless a run is already in progress.
// A panicking job is reported as an error.
func (s *Scheduler[T]) RunOnce(ctx context.Context) (result T, err error) {
	if !s.begin() {
		return result, ErrAlreadyRunning
	}
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			result = zero
			err = fmt.Errorf("scheduler: job %s panicked: %v", s.name, rec)
			logger.Error("scheduled job panicked", err, logger.LogContext{
				Fields: map[string]any{"job": s.name, "stack": string(debug.Stack())},
			})
		}
		s.finish(err)
	}()

	return s.job.Execute(ctx)
}

func (s *Scheduler[T]) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return false
	}
	s.status.Running = true
	s.status.LastStarted = s.now()
	return true
}

func (s *Scheduler[T]) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastFinished = s.now()
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// Running reports whether a run is in progress
func (s *Scheduler[T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Running
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
