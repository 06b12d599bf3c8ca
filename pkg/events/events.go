package events

import (
	"bytes"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultMaxDepth bounds how many emits of the same topic may be nested
// inside each other before further emits are dropped. Only emits made from
// a handler count; concurrent emits from other goroutines never do.
const DefaultMaxDepth = 4

// Topic binds an event name to the payload type carried by that event.
// Emit and On only accept a payload of the topic's type, so a mismatch
// between publisher and subscriber is a compile error.
type Topic[T any] struct {
	name string
}

// NewTopic declares a topic. Topics are expected to be declared once, as
// package level variables, so the set of events is closed.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// Name returns the event name.
func (t Topic[T]) Name() string {
	return t.name
}

func (t Topic[T]) String() string {
	return t.name
}

// HandlerID uniquely identifies a subscription
type HandlerID uint64

type handlerInfo struct {
	id      HandlerID
	fn      func(any)
	removed atomic.Bool
}

// Subscription is returned by On and Once and removes the handler when
// unsubscribed. The zero value is a no-op.
type Subscription struct {
	bus   *Bus
	topic string
	id    HandlerID
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Off(s)
	}
}

// Dispose is an alias for Unsubscribe so subscriptions can be tracked as
// disposables.
func (s Subscription) Dispose() {
	s.Unsubscribe()
}

// Metrics is a snapshot of bus counters
type Metrics struct {
	Published      uint64
	Delivered      uint64
	FailedHandlers uint64
	Dropped        uint64
	Handlers       int
}

// Option configures a Bus
type Option func(*Bus)

// WithMaxDepth sets the reentrancy limit per topic.
func WithMaxDepth(depth int) Option {
	return func(b *Bus) {
		if depth > 0 {
			b.maxDepth = int32(depth)
		}
	}
}

// WithDebugLogger routes debug level messages (such as emits nobody listens
// to) to fn. By default they are discarded.
func WithDebugLogger(fn func(format string, args ...any)) Option {
	return func(b *Bus) {
		if fn != nil {
			b.debugf = fn
		}
	}
}

// Bus is an in-process publish/subscribe channel. Delivery is synchronous:
// Emit returns after every handler ran, in registration order.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]*handlerInfo
	depthMu   sync.Mutex
	depth     map[chainKey]int32
	idCounter atomic.Uint64
	disposed  bool
	maxDepth  int32
	debugf    func(format string, args ...any)

	published      atomic.Uint64
	delivered      atomic.Uint64
	failedHandlers atomic.Uint64
	dropped        atomic.Uint64
}

// NewBus creates an event bus
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]*handlerInfo),
		depth:    make(map[chainKey]int32),
		maxDepth: DefaultMaxDepth,
		debugf:   func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On subscribes fn to topic.
func On[T any](b *Bus, topic Topic[T], fn func(T)) Subscription {
	return b.subscribe(topic.name, func(v any) { fn(v.(T)) })
}

// Once subscribes fn to the next emit of topic only.
func Once[T any](b *Bus, topic Topic[T], fn func(T)) Subscription {
	var (
		fired atomic.Bool
		sub   Subscription
		ready = make(chan struct{})
	)
	sub = b.subscribe(topic.name, func(v any) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		<-ready
		b.Off(sub)
		fn(v.(T))
	})
	close(ready)
	return sub
}

// Emit delivers payload to every current subscriber of topic.
func Emit[T any](b *Bus, topic Topic[T], payload T) {
	b.emit(topic.name, payload)
}

func (b *Bus) subscribe(name string, fn func(any)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		log.Printf("[events] subscribe to %q after dispose ignored", name)
		return Subscription{}
	}

	id := HandlerID(b.idCounter.Add(1))
	b.handlers[name] = append(b.handlers[name], &handlerInfo{id: id, fn: fn})
	return Subscription{bus: b, topic: name, id: id}
}

// Off removes a subscription. Unknown subscriptions are ignored.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[sub.topic]
	for i, info := range list {
		if info.id != sub.id {
			continue
		}
		info.removed.Store(true)
		next := make([]*handlerInfo, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, sub.topic)
		} else {
			b.handlers[sub.topic] = next
		}
		return
	}
}

func (b *Bus) emit(name string, payload any) {
	b.published.Add(1)

	b.mu.RLock()
	if b.disposed {
		b.mu.RUnlock()
		return
	}
	handlers := b.handlers[name]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.debugf("no subscribers for %s", name)
		return
	}

	// Handlers run on the emitting goroutine, so a nested emit shares the
	// goroutine of the emit that is delivering to it.
	key := chainKey{goroutine: goroutineID(), topic: name}
	if d, ok := b.enter(key); !ok {
		b.dropped.Add(1)
		log.Printf("[events] dropped %s: nested emit depth %d exceeds %d", name, d, b.maxDepth)
		return
	}
	defer b.leave(key)

	for _, info := range handlers {
		if info.removed.Load() {
			continue
		}
		b.run(name, info, payload)
	}
}

// chainKey identifies one emit chain for one topic
type chainKey struct {
	goroutine uint64
	topic     string
}

func (b *Bus) enter(key chainKey) (int32, bool) {
	b.depthMu.Lock()
	defer b.depthMu.Unlock()

	d := b.depth[key] + 1
	if d > b.maxDepth {
		return d, false
	}
	b.depth[key] = d
	return d, true
}

func (b *Bus) leave(key chainKey) {
	b.depthMu.Lock()
	defer b.depthMu.Unlock()

	if d := b.depth[key] - 1; d > 0 {
		b.depth[key] = d
	} else {
		delete(b.depth, key)
	}
}

// goroutineID extracts the current goroutine ID from the stack header,
// formatted as "goroutine 123 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}

func (b *Bus) run(name string, info *handlerInfo, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.failedHandlers.Add(1)
			log.Printf("[events] handler %d for %s panicked: %v", info.id, name, r)
		}
	}()
	info.fn(payload)
	b.delivered.Add(1)
}

// SubscriberCount returns the number of handlers for an event name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Metrics returns current counters
func (b *Bus) Metrics() Metrics {
	b.mu.RLock()
	count := 0
	for _, list := range b.handlers {
		count += len(list)
	}
	b.mu.RUnlock()

	return Metrics{
		Published:      b.published.Load(),
		Delivered:      b.delivered.Load(),
		FailedHandlers: b.failedHandlers.Load(),
		Dropped:        b.dropped.Load(),
		Handlers:       count,
	}
}

// Dispose removes every subscription. Emits after Dispose are ignored.
func (b *Bus) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, list := range b.handlers {
		for _, info := range list {
			info.removed.Store(true)
		}
	}
	b.handlers = make(map[string][]*handlerInfo)
	b.disposed = true
}

func (m Metrics) String() string {
	return fmt.Sprintf("published=%d delivered=%d failed=%d dropped=%d handlers=%d",
		m.Published, m.Delivered, m.FailedHandlers, m.Dropped, m.Handlers)
}
