package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counting job" }
func (j *countingJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

type fakeLocker struct {
	held       map[string]bool
	acquireErr error
	released   []string
}

func (l *fakeLocker) Acquire(_ context.Context, job string) (bool, error) {
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held[job] {
		return false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[job] = true
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, job string) error {
	delete(l.held, job)
	l.released = append(l.released, job)
	return nil
}

func TestLockedJob_RunsAndReleases(t *testing.T) {
	job := &countingJob{name: "quest_expiry"}
	locker := &fakeLocker{}

	locked := NewLockedJob(job, locker, nil)
	require.NoError(t, locked.Run(context.Background()))

	assert.Equal(t, 1, job.runs)
	assert.Equal(t, []string{"quest_expiry"}, locker.released)
	assert.Equal(t, "quest_expiry", locked.Name())
}

func TestLockedJob_SkipsWhenLeaseHeld(t *testing.T) {
	job := &countingJob{name: "streak_decay"}
	locker := &fakeLocker{held: map[string]bool{"streak_decay": true}}

	locked := NewLockedJob(job, locker, nil)
	require.NoError(t, locked.Run(context.Background()))

	assert.Zero(t, job.runs, "a held lease skips the run")
}

func TestLockedJob_ReleasesAfterJobError(t *testing.T) {
	job := &countingJob{name: "quest_expiry", err: errors.New("boom")}
	locker := &fakeLocker{}

	locked := NewLockedJob(job, locker, nil)
	err := locked.Run(context.Background())

	assert.Error(t, err)
	assert.Equal(t, []string{"quest_expiry"}, locker.released, "the lease is released even when the job fails")
}

func TestLockedJob_AcquireErrorSurfaces(t *testing.T) {
	job := &countingJob{name: "quest_expiry"}
	locker := &fakeLocker{acquireErr: errors.New("connection refused")}

	locked := NewLockedJob(job, locker, nil)
	err := locked.Run(context.Background())

	assert.Error(t, err)
	assert.Zero(t, job.runs)
}

func TestNewLockedJob_NilLockReturnsJobUnwrapped(t *testing.T) {
	job := &countingJob{name: "quest_expiry"}
	assert.Same(t, job, NewLockedJob(job, nil, nil))
}
