// Package savequeue serializes writes per owner: tasks of one owner run one at
// a time in submission order, tasks of different owners run independently.
package savequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("save queue is closed")

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
)

// Task is one unit of work, usually a network save.
type Task func(ctx context.Context) error

// StatusFunc is called whenever an owner's lane becomes busy or idle. It is
// called with the queue locked and must not call back into the queue.
type StatusFunc func(owner string, status Status)

type Option func(*Queue)

// WithStatusFunc registers a callback for lane status changes.
func WithStatusFunc(fn StatusFunc) Option {
	return func(q *Queue) {
		q.onStatus = fn
	}
}

// WithTaskTimeout bounds the context each task runs with.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.taskTimeout = d
	}
}

type task struct {
	name string
	fn   Task
	done chan error
}

type lane struct {
	pending []task
}

// Queue owns one worker goroutine per owner with pending work.
type Queue struct {
	mu          sync.Mutex
	lanes       map[string]*lane
	closed      bool
	active      int
	drained     chan struct{}
	onStatus    StatusFunc
	taskTimeout time.Duration
}

// New returns an empty queue accepting work.
func New(opts ...Option) *Queue {
	q := &Queue{
		lanes:       make(map[string]*lane),
		taskTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends fn to the owner's lane. The returned channel receives the
// task's result exactly once, or ErrClosed if the queue closes first.
func (q *Queue) Enqueue(owner, name string, fn Task) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		done <- ErrClosed
		return done
	}

	t := task{name: name, fn: fn, done: done}
	if l, ok := q.lanes[owner]; ok {
		l.pending = append(l.pending, t)
		return done
	}

	l := &lane{pending: []task{t}}
	q.lanes[owner] = l
	if q.active == 0 {
		q.drained = make(chan struct{})
	}
	q.active++
	q.notify(owner, StatusLoading)
	go q.drain(owner, l)

	return done
}

func (q *Queue) drain(owner string, l *lane) {
	for {
		q.mu.Lock()
		if len(l.pending) == 0 {
			delete(q.lanes, owner)
			q.notify(owner, StatusIdle)
			q.active--
			if q.active == 0 {
				close(q.drained)
			}
			q.mu.Unlock()
			return
		}
		t := l.pending[0]
		l.pending = l.pending[1:]
		q.mu.Unlock()

		t.done <- q.run(owner, t)
	}
}

func (q *Queue) run(owner string, t task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save task %s panicked: %v", t.name, r)
		}
		if err != nil {
			slog.Error("Save task failed", "owner", owner, "task", t.name, "error", err)
		}
	}()

	start := time.Now()
	err = t.fn(ctx)
	slog.Debug("Save task finished", "owner", owner, "task", t.name, "duration", time.Since(start))
	return err
}

func (q *Queue) notify(owner string, status Status) {
	if q.onStatus != nil {
		q.onStatus(owner, status)
	}
}

// Status reports whether the owner has work queued or running.
func (q *Queue) Status(owner string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.lanes[owner]; ok {
		return StatusLoading
	}
	return StatusIdle
}

// Pending returns the number of tasks waiting behind the running one.
func (q *Queue) Pending(owner string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if l, ok := q.lanes[owner]; ok {
		return len(l.pending)
	}
	return 0
}

// Close stops accepting work. Running tasks complete; tasks still waiting
// receive ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, l := range q.lanes {
		for _, t := range l.pending {
			t.done <- ErrClosed
		}
		l.pending = nil
	}
	slog.Info("Save queue closed")
}

// Wait blocks until no task is queued or running, or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.active == 0 {
		q.mu.Unlock()
		return nil
	}
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
