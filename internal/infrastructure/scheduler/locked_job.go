package scheduler

import (
	"context"
	"fmt"
	"log/slog"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCKED JOB
// ══════════════════════════════════════════════════════════════════════════════

// JobLocker is a lease over a named job. The Redis-backed implementation
// lives in the persistence layer.
type JobLocker interface {
	// Acquire takes the lease, returning false when another worker
	// instance holds it.
	Acquire(ctx context.Context, job string) (bool, error)

	// Release drops the lease.
	Release(ctx context.Context, job string) error
}

// LockedJob wraps a Job so only one worker instance runs it at a time.
// When the lease is held elsewhere the run is skipped, not an error: the
// holder is doing the work.
type LockedJob struct {
	job    Job
	lock   JobLocker
	logger *slog.Logger
}

// NewLockedJob wraps job with the lock. A nil lock returns the job
// unwrapped, so single-instance deployments pay nothing.
func NewLockedJob(job Job, lock JobLocker, logger *slog.Logger) Job {
	if lock == nil {
		return job
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockedJob{job: job, lock: lock, logger: logger}
}

// Name returns the wrapped job's name.
func (j *LockedJob) Name() string {
	return j.job.Name()
}

// Description returns the wrapped job's description.
func (j *LockedJob) Description() string {
	return j.job.Description()
}

// Run acquires the lease, runs the wrapped job, and releases the lease.
func (j *LockedJob) Run(ctx context.Context) error {
	acquired, err := j.lock.Acquire(ctx, j.job.Name())
	if err != nil {
		return fmt.Errorf("acquire lock for %s: %w", j.job.Name(), err)
	}
	if !acquired {
		j.logger.Info("job lease held by another instance, skipping",
			"job", j.job.Name(),
		)
		return nil
	}
	defer func() {
		if err := j.lock.Release(ctx, j.job.Name()); err != nil {
			j.logger.Warn("failed to release job lease",
				"job", j.job.Name(),
				"error", err,
			)
		}
	}()

	return j.job.Run(ctx)
}
