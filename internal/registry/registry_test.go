package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shared struct {
	log *[]string
	mu  *sync.Mutex
}

func (s shared) add(entry string) {
	s.mu.Lock()
	*s.log = append(*s.log, entry)
	s.mu.Unlock()
}

type fakeManager struct {
	name       string
	initErr    error
	panicInit  bool
	panicClose bool
	ctx        shared
}

func (f *fakeManager) Initialize(ctx context.Context, s shared) error {
	f.ctx = s
	s.add("init " + f.name)
	if f.panicInit {
		panic("init exploded")
	}
	return f.initErr
}

func (f *fakeManager) Dispose() {
	f.ctx.add("dispose " + f.name)
	if f.panicClose {
		panic("dispose exploded")
	}
}

type disposeFunc func()

func (d disposeFunc) Dispose() { d() }

func newShared() (shared, *[]string) {
	var log []string
	return shared{log: &log, mu: &sync.Mutex{}}, &log
}

func TestInitializeInOrderDisposeReverse(t *testing.T) {
	r := New[shared]()
	s, log := newShared()

	require.NoError(t, r.Register("a", &fakeManager{name: "a"}))
	require.NoError(t, r.Register("b", &fakeManager{name: "b"}))
	require.NoError(t, r.Register("c", &fakeManager{name: "c"}))
	r.Track(disposeFunc(func() { s.add("dispose tracked") }))

	require.NoError(t, r.InitializeAll(context.Background(), s))
	r.Dispose()

	assert.Equal(t, []string{
		"init a", "init b", "init c",
		"dispose c", "dispose b", "dispose a",
		"dispose tracked",
	}, *log)
	assert.True(t, r.Disposed())
}

func TestInitializeFailureDoesNotAbort(t *testing.T) {
	r := New[shared]()
	s, log := newShared()

	require.NoError(t, r.Register("a", &fakeManager{name: "a", initErr: errors.New("nope")}))
	require.NoError(t, r.Register("b", &fakeManager{name: "b", panicInit: true}))
	require.NoError(t, r.Register("c", &fakeManager{name: "c"}))

	err := r.InitializeAll(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Contains(t, err.Error(), "init exploded")

	stats := r.Stats()
	require.Len(t, stats, 3)
	assert.Error(t, stats[0].Err)
	assert.Error(t, stats[1].Err)
	assert.NoError(t, stats[2].Err)

	// Only managers that initialized are disposed
	r.Dispose()
	assert.Equal(t, []string{"init a", "init b", "init c", "dispose c"}, *log)
}

func TestDisposeSwallowsPanics(t *testing.T) {
	r := New[shared]()
	s, log := newShared()

	require.NoError(t, r.Register("a", &fakeManager{name: "a"}))
	require.NoError(t, r.Register("b", &fakeManager{name: "b", panicClose: true}))
	require.NoError(t, r.InitializeAll(context.Background(), s))

	assert.NotPanics(t, r.Dispose)
	assert.Equal(t, []string{"init a", "init b", "dispose b", "dispose a"}, *log)
}

func TestFactoryIsLazy(t *testing.T) {
	r := New[shared]()
	s, log := newShared()

	built := 0
	require.NoError(t, r.RegisterFactory("lazy", func() (Manager[shared], error) {
		built++
		return &fakeManager{name: "lazy"}, nil
	}))
	require.NoError(t, r.Register("eager", &fakeManager{name: "eager"}))
	require.NoError(t, r.InitializeAll(context.Background(), s))

	assert.Equal(t, 0, built)
	_, ok := r.Lookup("lazy")
	assert.False(t, ok)

	m1, err := r.Get(context.Background(), "lazy")
	require.NoError(t, err)
	m2, err := r.Get(context.Background(), "lazy")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, built)

	r.Dispose()
	assert.Equal(t, []string{"init eager", "init lazy", "dispose lazy", "dispose eager"}, *log)
}

func TestFactoryBeforeInitialize(t *testing.T) {
	r := New[shared]()
	require.NoError(t, r.RegisterFactory("lazy", func() (Manager[shared], error) {
		return &fakeManager{name: "lazy"}, nil
	}))

	_, err := r.Get(context.Background(), "lazy")
	assert.Error(t, err)
}

func TestGetUnknown(t *testing.T) {
	r := New[shared]()
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownManager)
}

func TestDuplicateName(t *testing.T) {
	r := New[shared]()
	require.NoError(t, r.Register("a", &fakeManager{name: "a"}))
	assert.Error(t, r.Register("a", &fakeManager{name: "a"}))
	assert.Equal(t, []string{"a"}, r.Names())
}

func TestTrackAfterDisposeReleasesImmediately(t *testing.T) {
	r := New[shared]()
	r.Dispose()

	released := false
	r.Track(disposeFunc(func() { released = true }))
	assert.True(t, released)
}
