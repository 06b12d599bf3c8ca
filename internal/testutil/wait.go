// Package testutil holds eventual-consistency helpers shared by package
// tests. Debounce timers and background preview refreshes settle after the
// call that triggered them returns, so tests poll instead of sleeping.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// PollInterval is how often conditions are re-checked
const PollInterval = 5 * time.Millisecond

// WaitForCondition waits for a condition to be true.
// Returns true if condition met, false if timeout
func WaitForCondition(t testing.TB, timeout time.Duration, condition func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}
		<-ticker.C
		if time.Now().After(deadline) {
			return condition()
		}
	}
}

// WaitForValue waits for a function to return the expected value
func WaitForValue[T comparable](t testing.TB, timeout time.Duration, getter func() T, expected T) bool {
	t.Helper()
	return WaitForCondition(t, timeout, func() bool {
		return getter() == expected
	})
}

// RequireEventually fails the test if condition does not become true within timeout
func RequireEventually(t testing.TB, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	require.True(t, WaitForCondition(t, timeout, condition), "Condition not met within %v: %s", timeout, msg)
}

// WaitForState waits for a getter to return a specific state value
func WaitForState[T comparable](t testing.TB, timeout time.Duration, getter func() T, expected T) {
	t.Helper()
	var last T
	ok := WaitForCondition(t, timeout, func() bool {
		last = getter()
		return last == expected
	})
	require.True(t, ok, "Expected state %v within %v, last saw %v", expected, timeout, last)
}

// WaitForCount waits for a count function to return the expected number
func WaitForCount(t testing.TB, timeout time.Duration, counter func() int, expected int) {
	t.Helper()
	RequireEventually(t, timeout, func() bool {
		return counter() == expected
	}, fmt.Sprintf("Expected count %d", expected))
}

// RequireNever fails the test if condition becomes true at any point during d
func RequireNever(t testing.TB, d time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		require.False(t, condition(), msg)
		time.Sleep(PollInterval)
	}
}

// TimedWaitGroup is a WaitGroup with timeout support
type TimedWaitGroup struct {
	wg sync.WaitGroup
}

// Add wraps sync.WaitGroup.Add
func (twg *TimedWaitGroup) Add(delta int) {
	twg.wg.Add(delta)
}

// Done wraps sync.WaitGroup.Done
func (twg *TimedWaitGroup) Done() {
	twg.wg.Done()
}

// WaitWithTimeout waits for the WaitGroup with a timeout
func (twg *TimedWaitGroup) WaitWithTimeout(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		twg.wg.Wait()
	}()

	select {
	case <-c:
		return true
	case <-time.After(timeout):
		return false
	}
}

// RequireWaitWithTimeout requires the WaitGroup to complete within timeout
func (twg *TimedWaitGroup) RequireWaitWithTimeout(t testing.TB, timeout time.Duration, msg string) {
	t.Helper()
	require.True(t, twg.WaitWithTimeout(timeout), "WaitGroup did not complete within %v: %s", timeout, msg)
}

// Context returns a context cancelled when the test ends or after timeout
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
