package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"

	"context"
)

// Scheduler manages the lifecycle of all recurring jobs with distributed locking
type Scheduler struct {
	cron     gocron.Scheduler
	locker   *redislock.Client
	ctx      context.Context
	serverID string
}

// NewScheduler creates and initializes a new job scheduler. Jobs run on every
// instance's cron but a Redis lock ensures only one instance actually
// executes each run.
func NewScheduler(baseJob BaseJob, ctx context.Context, redisClient *redis.Client, serverID string) (*Scheduler, error) {
	cronScheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create cron scheduler: %w", err)
	}

	scheduler := &Scheduler{
		cron:     cronScheduler,
		locker:   redislock.New(redisClient),
		ctx:      ctx,
		serverID: serverID,
	}

	for _, config := range GetJobConfigs(baseJob) {
		if config.IsEnabled() {
			scheduler.registerJob(config.Job)
		}
	}

	return scheduler, nil
}

// registerJob registers a single job with the scheduler
func (s *Scheduler) registerJob(job Job) {
	_, err := s.cron.NewJob(
		gocron.CronJob(job.Schedule(), false),
		gocron.NewTask(func() {
			s.executeWithLock(job)
		}),
	)
	if err != nil {
		log.Printf("Scheduler %s: Error registering job '%s': %v", s.serverID, job.Name(), err)
		return
	}

	log.Printf("Scheduler %s: Registered job '%s' with schedule '%s'", s.serverID, job.Name(), job.Schedule())
}

// executeWithLock executes a job with distributed locking to ensure only one instance runs it
func (s *Scheduler) executeWithLock(job Job) {
	lockKey := fmt.Sprintf("job:lock:%s", job.Name())
	lockTimeout := job.LockTimeout()

	lock, err := s.locker.Obtain(s.ctx, lockKey, lockTimeout, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 3),
	})

	if err == redislock.ErrNotObtained {
		log.Printf("Scheduler %s: Job '%s' already running on another instance, skipping", s.serverID, job.Name())
		return
	} else if err != nil {
		log.Printf("Scheduler %s: Error acquiring lock for job '%s': %v", s.serverID, job.Name(), err)
		return
	}

	defer func() {
		if err := lock.Release(s.ctx); err != nil {
			log.Printf("Scheduler %s: Error releasing lock for job '%s': %v", s.serverID, job.Name(), err)
		}
	}()

	log.Printf("Scheduler %s: Starting job '%s'", s.serverID, job.Name())

	if err := job.Execute(s.ctx); err != nil {
		log.Printf("Scheduler %s: Job '%s' failed: %v", s.serverID, job.Name(), err)
		return
	}

	log.Printf("Scheduler %s: Job '%s' completed successfully", s.serverID, job.Name())
}

// Start begins the scheduler (non-blocking)
func (s *Scheduler) Start() {
	log.Printf("Scheduler %s: Starting job scheduler", s.serverID)
	s.cron.Start()
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	log.Printf("Scheduler %s: Stopping job scheduler", s.serverID)
	if err := s.cron.Shutdown(); err != nil {
		log.Printf("Scheduler %s: Error shutting down job scheduler: %v", s.serverID, err)
	}
}
