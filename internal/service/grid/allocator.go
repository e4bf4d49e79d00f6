package grid

import (
	"crypto/rand"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDAllocator hands out tracking ids for rows that have no server record.
// Ids never collide with attendance ids.
type IDAllocator interface {
	Next() string
}

// CounterAllocator yields "<prefix>1", "<prefix>2", ... It is deterministic and
// meant for tests and single-goroutine use.
type CounterAllocator struct {
	prefix string
	n      int
}

// NewCounterAllocator returns an allocator producing prefix1, prefix2 and so on.
func NewCounterAllocator(prefix string) *CounterAllocator {
	return &CounterAllocator{prefix: prefix}
}

// Next returns the next unused tracking id.
func (a *CounterAllocator) Next() string {
	a.n++
	return a.prefix + strconv.Itoa(a.n)
}

// ULIDAllocator yields monotonic ULIDs and is safe for concurrent use.
type ULIDAllocator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDAllocator returns an allocator of monotonic ULIDs.
func NewULIDAllocator() *ULIDAllocator {
	return &ULIDAllocator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next returns a ULID greater than every id handed out before.
func (a *ULIDAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(a.now()), a.entropy).String()
}
