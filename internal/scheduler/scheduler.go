package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one scheduled run. Returned errors are logged and recorded; they
// never stop the scheduler.
type Job func(ctx context.Context) error

type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Interval  string    `json:"interval"`
	Runs      int64     `json:"runs"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

type Scheduler struct {
	name     string
	interval time.Duration
	job      Job

	running atomic.Bool
	runs    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu  sync.Mutex
	lastRun time.Time
	lastErr error
}

func New(name string, interval time.Duration, job Job) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the job immediately and then on every interval. It returns
// false if the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "name", s.name, "interval", s.interval.String())

		s.safeRun(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping", "name", s.name)
				return
			case <-ticker.C:
				s.safeRun(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the running job and waits for the loop to exit.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "name", s.name)
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	st := Status{
		Name:     s.name,
		Running:  s.running.Load(),
		Interval: s.interval.String(),
		Runs:     s.runs.Load(),
		LastRun:  s.lastRun,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) safeRun(ctx context.Context) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler job panic recovered", "name", s.name, "panic", r)
			err = errors.New("job panicked")
		}
		s.record(start, err)
	}()

	err = s.job(ctx)
	if err != nil {
		slog.Error("scheduler job failed", "name", s.name, "error", err)
		return
	}
	slog.Info("scheduler job completed", "name", s.name, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) record(at time.Time, err error) {
	s.runs.Add(1)
	s.lastMu.Lock()
	s.lastRun = at
	s.lastErr = err
	s.lastMu.Unlock()
}
