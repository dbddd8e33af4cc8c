package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carpool/pkg/logger"
)

type JobFunc func(ctx context.Context, now time.Time) error

type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart fires the job once immediately instead of waiting a full
	// interval.
	RunOnStart bool
	Run        JobFunc
}

// Scheduler runs named jobs on fixed intervals. A job never overlaps with
// itself: a tick that arrives while the previous run is still going is
// dropped.
type Scheduler struct {
	logger *logger.Logger
	now    func() time.Time

	mutex   sync.Mutex
	jobs    []Job
	started bool
}

func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		logger: log,
		now:    time.Now,
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler job needs a name and a function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler job %s: interval must be positive", job.Name)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return fmt.Errorf("scheduler job %s registered after start", job.Name)
	}
	for _, existing := range s.jobs {
		if existing.Name == job.Name {
			return fmt.Errorf("scheduler job %s already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Run starts every registered job and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.started = true
	jobs := append([]Job(nil), s.jobs...)
	s.mutex.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}

	s.logger.WithField("jobs", len(jobs)).Info("Scheduler started")
	wg.Wait()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunOnStart {
		s.runOnce(ctx, job)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := s.now()
	log := s.logger.WithField("job", job.Name)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Scheduled job panicked")
		}
	}()

	if err := job.Run(ctx, start); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Error("Scheduled job failed")
		return
	}

	log.WithField("duration", time.Since(start).String()).Debug("Scheduled job finished")
}
