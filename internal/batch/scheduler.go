// Package batch runs jobs on cron schedules until its context is
// cancelled.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/logging"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Scheduler runs registered jobs. A job never overlaps with itself: a tick
// that arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID

	mu      sync.RWMutex
	ctx     context.Context
	lastRun map[string]time.Time
	lastErr map[string]error
}

// NewScheduler creates a scheduler for jobs
func NewScheduler(log *zap.Logger, jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{
		log:     log,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		lastRun: make(map[string]time.Time),
		lastErr: make(map[string]error),
	}
	cronLog := logging.NewCronLogger(log)
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.jobs[job.Name]; dup {
			return nil, fmt.Errorf("duplicate job %s", job.Name)
		}
		job := job
		id, err := s.cron.AddFunc(job.Cron, func() { s.runJob(job) })
		if err != nil {
			return nil, err
		}
		s.jobs[job.Name] = job
		s.entries[job.Name] = id
	}
	return s, nil
}

func (s *Scheduler) runJob(job Job) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	start := time.Now()
	s.log.Info("job started", zap.String("job", job.Name))
	err := job.Run(ctx)

	s.mu.Lock()
	s.lastRun[job.Name] = start
	s.lastErr[job.Name] = err
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.log.Info("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// running jobs to finish
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for name, job := range s.jobs {
		if job.RunOnStart {
			s.cron.Entry(s.entries[name]).WrappedJob.Run()
		}
	}

	s.cron.Start()
	for name := range s.jobs {
		s.log.Info("job scheduled", zap.String("job", name), zap.Time("next", s.NextRun(name)))
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// NextRun returns the next scheduled run time for a job
func (s *Scheduler) NextRun(name string) time.Time {
	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	sched, err := ParseCron(job.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// LastRun returns when a job last ran and the error it returned
func (s *Scheduler) LastRun(name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun[name], s.lastErr[name]
}

// ListJobs returns all job names
func (s *Scheduler) ListJobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
