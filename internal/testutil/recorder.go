package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// Recorder collects the payloads emitted on one topic
type Recorder[T any] struct {
	mu     sync.Mutex
	events []T
	sub    events.Subscription
}

// Record subscribes to topic until the test ends
func Record[T any](t testing.TB, bus *events.Bus, topic events.Topic[T]) *Recorder[T] {
	t.Helper()
	r := &Recorder[T]{}
	r.sub = events.On(bus, topic, func(v T) {
		r.mu.Lock()
		r.events = append(r.events, v)
		r.mu.Unlock()
	})
	t.Cleanup(r.sub.Unsubscribe)
	return r
}

// Events returns a copy of everything recorded so far
func (r *Recorder[T]) Events() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.events...)
}

// Count returns how many payloads were recorded
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the most recent payload
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.events) == 0 {
		return zero, false
	}
	return r.events[len(r.events)-1], true
}

// Reset forgets recorded payloads
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor blocks until at least n payloads were recorded
func (r *Recorder[T]) WaitFor(t testing.TB, n int, timeout time.Duration) []T {
	t.Helper()
	RequireEventually(t, timeout, func() bool { return r.Count() >= n }, "waiting for events")
	return r.Events()
}
