package cron

import (
	"context"
	"time"
)

// SessionMaintainer is implemented by the grid session service.
type SessionMaintainer interface {
	RefreshAll(ctx context.Context) error
	EvictIdle(ctx context.Context) error
}

// GridSessionJobs keeps open grid sessions in sync with the database and
// closes the ones nobody uses anymore.
type GridSessionJobs struct {
	sessions        SessionMaintainer
	refreshInterval time.Duration
	evictInterval   time.Duration
}

// NewGridSessionJobs returns the refresh and eviction jobs for sessions.
func NewGridSessionJobs(sessions SessionMaintainer, refreshInterval, evictInterval time.Duration) *GridSessionJobs {
	return &GridSessionJobs{
		sessions:        sessions,
		refreshInterval: refreshInterval,
		evictInterval:   evictInterval,
	}
}

// RegisterJobs adds the refresh and eviction jobs to scheduler.
func (j *GridSessionJobs) RegisterJobs(scheduler *Scheduler) error {
	if err := scheduler.AddJob("refresh_grid_sessions", j.refreshInterval, j.sessions.RefreshAll); err != nil {
		return err
	}
	return scheduler.AddJob("evict_idle_grid_sessions", j.evictInterval, j.sessions.EvictIdle)
}
