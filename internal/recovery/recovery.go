// Package recovery is the funnel for caught failures: it classifies them,
// logs them with operation context, records the last error in the state and
// decides how loudly the user is told.
package recovery

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
)

// DefaultHistorySize bounds the kept history
const DefaultHistorySize = 50

// StatusTimeout is how long silent failures stay in the status bar
const StatusTimeout = 5 * time.Second

// Operation describes what was being done when a failure happened
type Operation struct {
	Name     string
	Category Category
	Path     string
	// UserInitiated operations surface an error notification, others only a
	// status bar hint.
	UserInitiated bool
}

// Manager handles failures. Handle never panics and never returns an error
// to propagate; callers fall back to a safe default.
type Manager struct {
	notifier host.Notifier
	state    *state.Manager

	mu      sync.Mutex
	history []Error
	limit   int
	handled uint64
}

// NewManager creates a recovery manager. notifier and st may be nil.
func NewManager(notifier host.Notifier, st *state.Manager) *Manager {
	return &Manager{
		notifier: notifier,
		state:    st,
		limit:    DefaultHistorySize,
	}
}

// SetHistorySize changes the history bound
func (m *Manager) SetHistorySize(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.limit = n
	if len(m.history) > n {
		m.history = append([]Error(nil), m.history[len(m.history)-n:]...)
	}
	m.mu.Unlock()
}

// Handle classifies err and reports it. It returns nil for a nil error.
func (m *Manager) Handle(err error, op Operation) *Error {
	if err == nil {
		return nil
	}

	category := op.Category
	if category == "" {
		category = CategoryInternal
	}
	e := Classify(err, category)
	if e.Operation == "" {
		e.Operation = op.Name
	}
	if e.Path == "" {
		e.Path = op.Path
	}

	log.Printf("[recovery] %s", e.Error())

	m.mu.Lock()
	m.history = append(m.history, *e)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	m.handled++
	m.mu.Unlock()

	if m.state != nil {
		m.state.Update(state.Patch{LastError: &state.ErrorInfo{
			Code:      e.Code.String(),
			Message:   e.UserMessage(),
			Timestamp: e.Timestamp,
		}}, "recovery")
	}

	if m.notifier != nil && e.Code != CodeCancelled {
		if op.UserInitiated {
			m.notifier.ShowError(e.UserMessage())
		} else {
			m.notifier.SetStatus(e.UserMessage(), StatusTimeout)
		}
	}
	return e
}

// Guard runs fn and handles both its error and any panic it raises.
func (m *Manager) Guard(op Operation, fn func() error) (handled *Error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[recovery] panic in %s: %v\n%s", op.Name, r, debug.Stack())
			e := &Error{
				Code:       CodePanic,
				Category:   CategoryInternal,
				Operation:  op.Name,
				Path:       op.Path,
				Underlying: fmt.Errorf("panic: %v", r),
				Timestamp:  time.Now(),
			}
			handled = m.Handle(e, op)
		}
	}()
	return m.Handle(fn(), op)
}

// History returns handled errors, oldest first
func (m *Manager) History() []Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Error(nil), m.history...)
}

// Recent returns up to n of the newest errors, newest first
func (m *Manager) Recent(n int) []Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]Error, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Handled counts every handled error
func (m *Manager) Handled() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handled
}

// Clear drops the history and the error recorded in the state
func (m *Manager) Clear() {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()

	if m.state != nil {
		m.state.Update(state.Patch{ClearLastError: true}, "recovery")
	}
}
