package studio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

type debouncedAction int

const (
	actionOpen debouncedAction = iota
	actionClose
)

func (a debouncedAction) String() string {
	if a == actionOpen {
		return "open-preview"
	}
	return "preview-closed"
}

// DebounceIntegration collapses bursts of open requests and user closes
// into the last one. Open and close share a sequence number, so scheduling
// either cancels whatever was pending.
type DebounceIntegration struct {
	ctx         *Context
	preview     *PreviewManager
	placeholder *PlaceholderManager
	life        context.Context
	cancel      context.CancelFunc

	mu         sync.Mutex
	delay      time.Duration
	openTimer  *time.Timer
	closeTimer *time.Timer
	seq        uint64
	disposed   bool

	fired   atomic.Uint64
	running sync.WaitGroup
	subs    []events.Subscription
}

// NewDebounceIntegration creates the integration for the given managers
func NewDebounceIntegration(preview *PreviewManager, placeholder *PlaceholderManager) *DebounceIntegration {
	return &DebounceIntegration{preview: preview, placeholder: placeholder}
}

// Initialize implements Manager
func (d *DebounceIntegration) Initialize(ctx context.Context, shared *Context) error {
	d.ctx = shared
	d.delay = shared.Settings.GetDebounce()
	d.life, d.cancel = context.WithCancel(context.Background())
	d.subs = append(d.subs,
		events.On(shared.Bus, OpenPreviewRequested, func(OpenRequest) { d.ScheduleOpen() }),
		events.On(shared.Bus, PreviewClosed, func(PreviewClosedEvent) { d.ScheduleClose() }),
	)
	return nil
}

// Delay returns the debounce interval
func (d *DebounceIntegration) Delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// ScheduleOpen opens the preview after the debounce interval
func (d *DebounceIntegration) ScheduleOpen() {
	d.schedule(actionOpen)
}

// ScheduleClose handles a user-closed preview after the debounce interval
func (d *DebounceIntegration) ScheduleClose() {
	d.schedule(actionClose)
}

func (d *DebounceIntegration) schedule(action debouncedAction) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return
	}
	d.stopTimersLocked()
	d.seq++
	seq := d.seq
	t := time.AfterFunc(d.delay, func() { d.fire(action, seq) })
	if action == actionOpen {
		d.openTimer = t
	} else {
		d.closeTimer = t
	}
	debugLog("scheduled %s #%d", action, seq)
}

func (d *DebounceIntegration) stopTimersLocked() {
	if d.openTimer != nil {
		d.openTimer.Stop()
		d.openTimer = nil
	}
	if d.closeTimer != nil {
		d.closeTimer.Stop()
		d.closeTimer = nil
	}
}

func (d *DebounceIntegration) fire(action debouncedAction, seq uint64) {
	d.mu.Lock()
	if d.disposed || seq != d.seq {
		d.mu.Unlock()
		return
	}
	if action == actionOpen {
		d.openTimer = nil
	} else {
		d.closeTimer = nil
	}
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()

	if !d.ctx.State.Get().IsInitialized {
		debugLog("%s #%d dropped: editor gone", action, seq)
		return
	}
	d.fired.Add(1)

	switch action {
	case actionOpen:
		if _, err := d.preview.OpenPreview(d.life); err != nil && !errors.Is(err, ErrSuperseded) {
			debugLog("debounced open failed: %v", err)
		}
	case actionClose:
		if err := d.placeholder.HandlePreviewClosed(d.life); err != nil {
			debugLog("debounced placeholder failed: %v", err)
		}
	}
}

// Pending reports whether a timer is waiting to fire
func (d *DebounceIntegration) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openTimer != nil || d.closeTimer != nil
}

// Fired counts actions that ran
func (d *DebounceIntegration) Fired() uint64 {
	return d.fired.Load()
}

// Dispose implements Manager. Timers that already fired finish first.
func (d *DebounceIntegration) Dispose() {
	for _, s := range d.subs {
		s.Unsubscribe()
	}
	d.subs = nil

	d.mu.Lock()
	d.disposed = true
	d.stopTimersLocked()
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.running.Wait()
}
