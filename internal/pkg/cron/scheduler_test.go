package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	refreshed atomic.Int32
	evicted   atomic.Int32
}

func (f *fakeSessions) RefreshAll(ctx context.Context) error {
	f.refreshed.Add(1)
	return nil
}

func (f *fakeSessions) EvictIdle(ctx context.Context) error {
	f.evicted.Add(1)
	return errors.New("closing save failed")
}

func TestScheduler_AddJobRejectsBadInterval(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.AddJob("never", 0, func(ctx context.Context) error { return nil }))
}

func TestScheduler_RunsJobsUntilStopped(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	require.NoError(t, s.AddJob("tick", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.AddJob("panics", 5*time.Millisecond, func(ctx context.Context) error {
		panic("boom")
	}))

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	NewScheduler().Stop()
}

func TestGridSessionJobs(t *testing.T) {
	sessions := &fakeSessions{}
	s := NewScheduler()
	require.NoError(t, NewGridSessionJobs(sessions, time.Minute, 5*time.Minute).RegisterJobs(s))

	s.RunOnce(context.Background())

	assert.Equal(t, int32(1), sessions.refreshed.Load())
	assert.Equal(t, int32(1), sessions.evicted.Load())
}
