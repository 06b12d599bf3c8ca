// Package registry is a lifecycle container for named managers that share a
// context value. Managers are initialized in registration order and disposed
// in reverse.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrUnknownManager is returned by Get for names never registered
var ErrUnknownManager = errors.New("unknown manager")

// Manager is a lifecycle-managed component
type Manager[C any] interface {
	Initialize(ctx context.Context, shared C) error
	Dispose()
}

// Factory builds a manager on first access
type Factory[C any] func() (Manager[C], error)

// Disposable is anything tracked for cleanup
type Disposable interface {
	Dispose()
}

// InitStat records how initializing one manager went
type InitStat struct {
	Name     string
	Duration time.Duration
	Err      error
	Lazy     bool
}

type entry[C any] struct {
	name        string
	manager     Manager[C]
	factory     Factory[C]
	initialized bool

	once     sync.Once
	buildErr error
}

// Registry holds managers sharing a context of type C
type Registry[C any] struct {
	mu          sync.Mutex
	entries     []*entry[C]
	byName      map[string]*entry[C]
	tracked     []Disposable
	shared      C
	hasShared   bool
	initialized bool
	disposed    bool
	stats       []InitStat
	// order in which managers finished initializing, for reverse disposal
	initOrder []*entry[C]
}

// New creates an empty registry
func New[C any]() *Registry[C] {
	return &Registry[C]{byName: make(map[string]*entry[C])}
}

// Register adds an eagerly initialized manager
func (r *Registry[C]) Register(name string, m Manager[C]) error {
	return r.add(&entry[C]{name: name, manager: m})
}

// RegisterFactory adds a manager built and initialized on first Get
func (r *Registry[C]) RegisterFactory(name string, f Factory[C]) error {
	return r.add(&entry[C]{name: name, factory: f})
}

func (r *Registry[C]) add(e *entry[C]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return fmt.Errorf("register %s: registry disposed", e.name)
	}
	if _, exists := r.byName[e.name]; exists {
		return fmt.Errorf("manager %s already registered", e.name)
	}
	r.entries = append(r.entries, e)
	r.byName[e.name] = e
	return nil
}

// InitializeAll initializes every eagerly registered manager in registration
// order. A failing manager is recorded and skipped; the batch continues. The
// returned error joins every failure.
func (r *Registry[C]) InitializeAll(ctx context.Context, shared C) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.initialized = true
	r.shared = shared
	r.hasShared = true
	pending := make([]*entry[C], 0, len(r.entries))
	for _, e := range r.entries {
		if e.manager != nil && !e.initialized {
			pending = append(pending, e)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range pending {
		if err := r.initialize(ctx, e, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initialize runs without the registry lock so managers may call Get
func (r *Registry[C]) initialize(ctx context.Context, e *entry[C], lazy bool) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			err = fmt.Errorf("initialize %s: %w", e.name, err)
			log.Printf("[registry] %v", err)
		}

		r.mu.Lock()
		r.stats = append(r.stats, InitStat{Name: e.name, Duration: time.Since(start), Err: err, Lazy: lazy})
		if err == nil {
			e.initialized = true
			r.initOrder = append(r.initOrder, e)
		}
		r.mu.Unlock()
	}()

	return e.manager.Initialize(ctx, r.shared)
}

// Get returns a manager by name, building and initializing factory entries
// on first access with the context given to InitializeAll.
func (r *Registry[C]) Get(ctx context.Context, name string) (Manager[C], error) {
	r.mu.Lock()
	e, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownManager, name)
	}
	if r.disposed {
		r.mu.Unlock()
		return nil, fmt.Errorf("get %s: registry disposed", name)
	}
	if e.factory == nil {
		m := e.manager
		r.mu.Unlock()
		return m, nil
	}
	if !r.hasShared {
		r.mu.Unlock()
		return nil, fmt.Errorf("get %s: registry not initialized", name)
	}
	r.mu.Unlock()

	e.once.Do(func() {
		m, err := e.factory()
		if err != nil {
			e.buildErr = fmt.Errorf("build %s: %w", name, err)
			log.Printf("[registry] %v", e.buildErr)
			return
		}
		r.mu.Lock()
		e.manager = m
		r.mu.Unlock()
		e.buildErr = r.initialize(ctx, e, true)
	})
	if e.buildErr != nil {
		return nil, e.buildErr
	}
	return e.manager, nil
}

// Lookup returns an already built manager without triggering a factory
func (r *Registry[C]) Lookup(name string) (Manager[C], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok || e.manager == nil {
		return nil, false
	}
	return e.manager, true
}

// Names returns registered names in registration order
func (r *Registry[C]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Track registers a raw disposable released by Dispose
func (r *Registry[C]) Track(d Disposable) {
	if d == nil {
		return
	}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		safeDispose("tracked", d)
		return
	}
	r.tracked = append(r.tracked, d)
	r.mu.Unlock()
}

// Stats returns initialization records
func (r *Registry[C]) Stats() []InitStat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InitStat(nil), r.stats...)
}

// Disposed reports whether Dispose ran
func (r *Registry[C]) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Dispose tears down initialized managers in reverse initialization order,
// then tracked disposables in reverse. Panics are logged and swallowed so one
// failure cannot block the rest.
func (r *Registry[C]) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	order := r.initOrder
	tracked := r.tracked
	r.initOrder = nil
	r.tracked = nil
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		safeDispose(order[i].name, order[i].manager)
	}
	for i := len(tracked) - 1; i >= 0; i-- {
		safeDispose("tracked", tracked[i])
	}
}

func safeDispose(name string, d Disposable) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[registry] dispose %s panicked: %v", name, p)
		}
	}()
	d.Dispose()
}
