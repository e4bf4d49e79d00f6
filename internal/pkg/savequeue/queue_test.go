package savequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
		return nil
	}
}

func TestQueue_SameOwnerRunsInOrderNeverConcurrently(t *testing.T) {
	q := New()

	var (
		mu      sync.Mutex
		calls   []string
		running int32
		maxSeen int32
	)
	started := make(chan struct{})
	release := make(chan struct{})
	task := func(name string, block bool) Task {
		return func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			defer atomic.AddInt32(&running, -1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			if block {
				close(started)
				<-release
			}
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return nil
		}
	}

	first := q.Enqueue("employee:1", "save-1", task("save-1", true))
	<-started
	second := q.Enqueue("employee:1", "save-2", task("save-2", false))

	assert.Equal(t, StatusLoading, q.Status("employee:1"))
	assert.Equal(t, 1, q.Pending("employee:1"))

	close(release)
	require.NoError(t, waitResult(t, first))
	require.NoError(t, waitResult(t, second))
	require.NoError(t, q.Wait(context.Background()))

	assert.Equal(t, []string{"save-1", "save-2"}, calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
	assert.Equal(t, StatusIdle, q.Status("employee:1"))
}

func TestQueue_OwnersDoNotBlockEachOther(t *testing.T) {
	q := New()
	release := make(chan struct{})
	defer close(release)

	blocked := q.Enqueue("employee:1", "slow", func(ctx context.Context) error {
		<-release
		return nil
	})
	other := q.Enqueue("external:Sam", "fast", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, waitResult(t, other))
	select {
	case <-blocked:
		t.Fatal("blocked task finished early")
	default:
	}
	assert.Equal(t, StatusLoading, q.Status("employee:1"))
}

func TestQueue_PropagatesErrors(t *testing.T) {
	q := New()
	boom := errors.New("network down")

	err := waitResult(t, q.Enqueue("employee:1", "save", func(ctx context.Context) error {
		return boom
	}))
	assert.ErrorIs(t, err, boom)

	err = waitResult(t, q.Enqueue("employee:1", "panics", func(ctx context.Context) error {
		panic("unexpected")
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// the lane keeps working after a failure
	assert.NoError(t, waitResult(t, q.Enqueue("employee:1", "ok", func(ctx context.Context) error {
		return nil
	})))
}

func TestQueue_StatusCallback(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Status
	)
	q := New(WithStatusFunc(func(owner string, status Status) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, status)
	}))

	require.NoError(t, waitResult(t, q.Enqueue("employee:1", "save", func(ctx context.Context) error {
		return nil
	})))
	require.NoError(t, q.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusLoading, StatusIdle}, events)
}

func TestQueue_Close(t *testing.T) {
	q := New()
	started := make(chan struct{})
	release := make(chan struct{})

	running := q.Enqueue("employee:1", "running", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	queued := q.Enqueue("employee:1", "queued", func(ctx context.Context) error {
		t.Error("queued task must not run after Close")
		return nil
	})

	q.Close()
	assert.ErrorIs(t, waitResult(t, queued), ErrClosed)
	assert.ErrorIs(t, waitResult(t, q.Enqueue("employee:2", "late", func(ctx context.Context) error {
		return nil
	})), ErrClosed)

	close(release)
	assert.NoError(t, waitResult(t, running))
	assert.NoError(t, q.Wait(context.Background()))
	q.Close()
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := New()
	release := make(chan struct{})
	defer close(release)

	q.Enqueue("employee:1", "slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestQueue_TaskTimeout(t *testing.T) {
	q := New(WithTaskTimeout(10 * time.Millisecond))

	err := waitResult(t, q.Enqueue("employee:1", "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
