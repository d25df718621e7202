package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobType represents the kind of background work a job performs
type JobType string

const (
	// JobTypeDuesGeneration posts the month's recurring dues for one tenant
	JobTypeDuesGeneration JobType = "DUES_GENERATION"
	// JobTypeDriftSampling compares cached balances against the canonical
	// ledger for a sample of recently active units
	JobTypeDriftSampling JobType = "DRIFT_SAMPLING"
	// JobTypeInviteSweep expires lapsed invites and clears stale reservations
	JobTypeInviteSweep JobType = "INVITE_SWEEP"
	// JobTypeSettleResultCleanup purges idempotent settlement results past
	// their replay window
	JobTypeSettleResultCleanup JobType = "SETTLE_RESULT_CLEANUP"
)

// DailyJobTypes returns the job types the daily maintenance trigger fans out
func DailyJobTypes() []JobType {
	return []JobType{
		JobTypeDriftSampling,
		JobTypeInviteSweep,
		JobTypeSettleResultCleanup,
	}
}

// Job represents one unit of scheduled background work
type Job struct {
	ID          uuid.UUID
	TenantID    *uuid.UUID // nil means the job is not tenant-scoped
	Type        JobType
	Period      valueobject.Period // set for dues generation
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job
func NewJob(tenantID *uuid.UUID, jobType JobType, period valueobject.Period, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Type:       jobType,
		Period:     period,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry reports whether a failed job still has retry budget
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the job back to pending with a retry deadline
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// notReadyYet reports whether a retried job is still waiting out its delay
func (j *Job) notReadyYet() bool {
	return j.NextRetryAt != nil && time.Now().Before(*j.NextRetryAt)
}

// JobExecutor runs the actual maintenance work for a job
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// Config holds scheduler configuration
type Config struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxConcurrentJobs: 3,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// Scheduler runs maintenance jobs on a bounded worker pool.
type Scheduler struct {
	config   Config
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a scheduler; Start must be called before SubmitJob.
func NewScheduler(config Config, executor JobExecutor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, 100),
	}
}

// Start launches the worker pool. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Maintenance scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop drains the worker pool, waiting until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Maintenance scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Maintenance scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job for execution without blocking.
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}

	if !s.tryEnqueue(job) {
		return ErrJobQueueFull
	}
	s.logger.Debug("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
	)
	return nil
}

// ScheduleDailyMaintenance queues the daily maintenance jobs for a tenant
func (s *Scheduler) ScheduleDailyMaintenance(tenantID *uuid.UUID) error {
	for _, jobType := range DailyJobTypes() {
		job := NewJob(tenantID, jobType, valueobject.Period{}, s.config.RetryAttempts)
		if err := s.SubmitJob(job); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleDuesGeneration queues a dues-generation job for a tenant and period
func (s *Scheduler) ScheduleDuesGeneration(tenantID *uuid.UUID, period valueobject.Period) error {
	job := NewJob(tenantID, JobTypeDuesGeneration, period, s.config.RetryAttempts)
	return s.SubmitJob(job)
}

func (s *Scheduler) tryEnqueue(job *Job) bool {
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	// A retried job that has not reached its deadline goes back on the
	// queue instead of running early.
	if job.notReadyYet() {
		if !s.tryEnqueue(job) {
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
			)
		}
		return
	}

	job.Start()
	s.logger.Info("Processing job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := s.executor.Execute(jobCtx, job); err != nil {
		s.handleFailure(job, workerID, err)
		return
	}

	job.Complete()
	s.logger.Info("Job completed successfully",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
	)
}

func (s *Scheduler) handleFailure(job *Job, workerID int, err error) {
	job.Fail(err.Error())
	s.logger.Error("Job failed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Error(err),
	)

	if !job.ShouldRetry() {
		return
	}
	job.ScheduleRetry(s.config.RetryDelay)
	s.logger.Info("Job scheduled for retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
	)
	if !s.tryEnqueue(job) {
		s.logger.Warn("Failed to re-queue job for retry",
			zap.String("job_id", job.ID.String()),
		)
	}
}
