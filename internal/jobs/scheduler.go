// Package jobs runs periodic background work for long-running hosts.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger *slog.Logger
	jobs   []Job

	mu        sync.Mutex
	isRunning bool
	running   map[string]bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		logger:  logger,
		jobs:    jobs,
		running: make(map[string]bool),
	}
}

// executeJobSafely runs a job unless a previous run of it is still going
func (s *Scheduler) executeJobSafely(ctx context.Context, job Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.logger.Debug("Skipping job execution - previous run still going", slog.String("job", job.Name))
		s.mu.Unlock()
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", job.Name),
				slog.Any("panic", r))
		}

		s.mu.Lock()
		s.running[job.Name] = false
		s.mu.Unlock()
	}()

	if err := job.Run(ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", job.Name), slog.Any("error", err))
	}
}

// Start runs every job once and then on its interval until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true

	for _, job := range s.jobs {
		s.logger.Info("Starting background job",
			slog.String("job", job.Name),
			slog.Duration("interval", job.Interval))
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.executeJobSafely(ctx, job)
	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(ctx, job)
		case <-ctx.Done():
			s.logger.Debug("Background job stopped", slog.String("job", job.Name))
			return
		}
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping background jobs...")
	cancel()
	s.wg.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
