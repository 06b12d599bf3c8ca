// Package state owns the single VisualEditorState record. Every mutation
// goes through Manager.Update, which emits exactly one Changed event.
package state

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// PreviewMode drives whether the preview pane exists
type PreviewMode string

const (
	PreviewClosed        PreviewMode = "closed"
	PreviewTransitioning PreviewMode = "transitioning"
	PreviewOpen          PreviewMode = "open"
	PreviewHidden        PreviewMode = "hidden"
)

// Valid reports whether m is one of the four modes
func (m PreviewMode) Valid() bool {
	switch m {
	case PreviewClosed, PreviewTransitioning, PreviewOpen, PreviewHidden:
		return true
	}
	return false
}

var transitions = map[PreviewMode][]PreviewMode{
	PreviewClosed:        {PreviewTransitioning},
	PreviewTransitioning: {PreviewOpen, PreviewClosed},
	PreviewOpen:          {PreviewHidden, PreviewClosed, PreviewTransitioning},
	PreviewHidden:        {PreviewOpen, PreviewClosed},
}

// ValidTransition reports whether the preview may move from one mode to
// another. Staying in the same mode is always allowed.
func ValidTransition(from, to PreviewMode) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorInfo is the last failure recorded by recovery
type ErrorInfo struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// VisualEditorState is the session record
type VisualEditorState struct {
	IsVisible     bool               `json:"isVisible"`
	IsInitialized bool               `json:"isInitialized"`
	PreviewMode   PreviewMode        `json:"previewMode"`
	PreviewURI    host.URI           `json:"-"`
	PreviewEditor host.EditorID      `json:"previewEditor,omitempty"`
	CurrentConfig clangformat.Config `json:"currentConfig"`
	ConfigDirty   bool               `json:"configDirty"`
	LastError     *ErrorInfo         `json:"lastError,omitempty"`
}

// Clone returns a deep copy
func (s VisualEditorState) Clone() VisualEditorState {
	out := s
	out.CurrentConfig = s.CurrentConfig.Clone()
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

// Key names a field of VisualEditorState in change notifications
type Key string

const (
	KeyIsVisible     Key = "isVisible"
	KeyIsInitialized Key = "isInitialized"
	KeyPreviewMode   Key = "previewMode"
	KeyPreviewURI    Key = "previewUri"
	KeyPreviewEditor Key = "previewEditor"
	KeyCurrentConfig Key = "currentConfig"
	KeyConfigDirty   Key = "configDirty"
	KeyLastError     Key = "lastError"
)

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	IsVisible     *bool
	IsInitialized *bool
	PreviewMode   *PreviewMode
	PreviewURI    *host.URI
	PreviewEditor *host.EditorID
	// Config replaces the whole configuration when non-nil
	Config clangformat.Config
	// ConfigEdits patches individual keys; unset and inherit values delete
	ConfigEdits    clangformat.Config
	ConfigDirty    *bool
	LastError      *ErrorInfo
	ClearLastError bool
}

// Ptr returns a pointer to v, for building patches
func Ptr[T any](v T) *T {
	return &v
}

// Change describes one Update
type Change struct {
	Keys   []Key
	Source string
	// State is a snapshot taken right after the update
	State VisualEditorState
}

// Has reports whether key was part of the update
func (c Change) Has(key Key) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Type is derived from the updated keys, "noop" for an empty patch
func (c Change) Type() string {
	if len(c.Keys) == 0 {
		return "noop"
	}
	parts := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

// Changed is emitted after every Update
var Changed = events.NewTopic[Change]("state-changed")

// Manager owns the state record
type Manager struct {
	mu      sync.RWMutex
	state   VisualEditorState
	bus     *events.Bus
	updates atomic.Uint64
}

// NewManager creates the record with defaults: nothing visible, preview
// closed, empty configuration.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{
		bus: bus,
		state: VisualEditorState{
			PreviewMode:   PreviewClosed,
			CurrentConfig: clangformat.Config{},
		},
	}
}

// Get returns a deep copy of the current state
func (m *Manager) Get() VisualEditorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// PreviewMode returns the current preview mode
func (m *Manager) PreviewMode() PreviewMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.PreviewMode
}

// Config returns a copy of the current configuration
func (m *Manager) Config() clangformat.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CurrentConfig.Clone()
}

// Updates counts Update calls
func (m *Manager) Updates() uint64 {
	return m.updates.Load()
}

// Update merges patch into the state, restores the preview invariants and
// emits Changed. An empty patch still emits. A preview mode change the state
// machine does not allow is logged and ignored.
func (m *Manager) Update(patch Patch, source string) Change {
	m.mu.Lock()
	change := m.apply(patch, source)
	m.mu.Unlock()

	m.publish(change)
	return change
}

// UpdateIf applies the patch fn builds from the current state, with no other
// update in between. When fn reports false nothing changes and nothing is
// emitted.
func (m *Manager) UpdateIf(source string, fn func(current VisualEditorState) (Patch, bool)) (Change, bool) {
	m.mu.Lock()
	patch, ok := fn(m.state.Clone())
	if !ok {
		m.mu.Unlock()
		return Change{}, false
	}
	change := m.apply(patch, source)
	m.mu.Unlock()

	m.publish(change)
	return change, true
}

func (m *Manager) publish(change Change) {
	m.updates.Add(1)
	if m.bus != nil {
		events.Emit(m.bus, Changed, change)
	}
}

// apply merges patch into the state. Callers hold m.mu.
func (m *Manager) apply(patch Patch, source string) Change {
	s := &m.state
	var keys []Key

	if patch.IsVisible != nil {
		s.IsVisible = *patch.IsVisible
		keys = append(keys, KeyIsVisible)
	}
	if patch.IsInitialized != nil {
		s.IsInitialized = *patch.IsInitialized
		keys = append(keys, KeyIsInitialized)
	}
	if patch.PreviewMode != nil {
		to := *patch.PreviewMode
		if ValidTransition(s.PreviewMode, to) {
			s.PreviewMode = to
			keys = append(keys, KeyPreviewMode)
		} else {
			log.Printf("[state] %s: rejected preview transition %s -> %s", source, s.PreviewMode, to)
		}
	}
	if patch.PreviewURI != nil {
		s.PreviewURI = *patch.PreviewURI
		keys = append(keys, KeyPreviewURI)
	}
	if patch.PreviewEditor != nil {
		s.PreviewEditor = *patch.PreviewEditor
		keys = append(keys, KeyPreviewEditor)
	}
	if patch.Config != nil || patch.ConfigEdits != nil {
		var next clangformat.Config
		if patch.Config != nil {
			next = make(clangformat.Config, len(patch.Config))
			for k, v := range patch.Config.Clone() {
				next.Set(k, v)
			}
		} else {
			next = s.CurrentConfig.Clone()
		}
		for k, v := range patch.ConfigEdits {
			next.Set(k, v)
		}
		s.CurrentConfig = next
		keys = append(keys, KeyCurrentConfig)
	}
	if patch.ConfigDirty != nil {
		s.ConfigDirty = *patch.ConfigDirty
		keys = append(keys, KeyConfigDirty)
	}
	if patch.ClearLastError {
		s.LastError = nil
		keys = append(keys, KeyLastError)
	}
	if patch.LastError != nil {
		e := *patch.LastError
		s.LastError = &e
		if !patch.ClearLastError {
			keys = append(keys, KeyLastError)
		}
	}

	// The editor handle only exists while open and the document only while
	// the preview is not closed.
	if s.PreviewMode != PreviewOpen && s.PreviewEditor != "" {
		s.PreviewEditor = ""
		keys = appendKey(keys, KeyPreviewEditor)
	}
	if s.PreviewMode == PreviewClosed && !s.PreviewURI.IsZero() {
		s.PreviewURI = host.URI{}
		keys = appendKey(keys, KeyPreviewURI)
	}

	return Change{Keys: keys, Source: source, State: s.Clone()}
}

func appendKey(keys []Key, key Key) []Key {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
