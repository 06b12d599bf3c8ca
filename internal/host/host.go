// Package host describes the editor capabilities the visual editor consumes:
// webview-like panels, virtual documents shown in editor tabs, tab and theme
// notifications, file access and user notifications.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrCancelled is returned when the user dismisses a picker
var ErrCancelled = errors.New("cancelled by user")

// URI identifies a document. It is a plain value type so two URIs can be
// compared with ==.
type URI struct {
	Scheme string
	Path   string
}

// ParseURI parses "scheme:path".
func ParseURI(s string) (URI, error) {
	scheme, path, ok := strings.Cut(s, ":")
	if !ok || scheme == "" || path == "" {
		return URI{}, fmt.Errorf("invalid uri %q", s)
	}
	return URI{Scheme: scheme, Path: path}, nil
}

// IsZero reports whether the URI is unset
func (u URI) IsZero() bool {
	return u == URI{}
}

func (u URI) String() string {
	if u.IsZero() {
		return ""
	}
	return u.Scheme + ":" + u.Path
}

// EditorID identifies an editor view bound to a document
type EditorID string

// ViewColumn selects where a panel or editor is shown
type ViewColumn int

const (
	ColumnBeside ViewColumn = -2
	ColumnActive ViewColumn = -1
	ColumnOne    ViewColumn = 1
	ColumnTwo    ViewColumn = 2
)

// Theme is the host colour theme kind
type Theme string

const (
	ThemeLight        Theme = "light"
	ThemeDark         Theme = "dark"
	ThemeHighContrast Theme = "high-contrast"
)

// Disposable releases a registration
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable
type DisposeFunc func()

func (f DisposeFunc) Dispose() {
	if f != nil {
		f()
	}
}

// PanelOptions configures a new panel
type PanelOptions struct {
	ViewType      string
	Title         string
	Column        ViewColumn
	PreserveFocus bool
	RetainContext bool
}

// Panel is a webview-like surface that renders HTML and exchanges JSON
// messages with the extension side.
type Panel interface {
	ID() string
	ViewType() string
	Visible() bool
	SetHTML(html string)
	// PostMessage sends a JSON-serialisable value to the panel
	PostMessage(msg any) error
	Reveal(column ViewColumn)
	Dispose()
	OnDidReceiveMessage(fn func(raw []byte)) Disposable
	OnDidChangeViewState(fn func(visible bool)) Disposable
	OnDidDispose(fn func()) Disposable
}

// Editor is an editor view showing a document
type Editor struct {
	ID     EditorID
	URI    URI
	Column ViewColumn
}

// ShowOptions configures ShowDocument
type ShowOptions struct {
	Column        ViewColumn
	PreserveFocus bool
	Preview       bool
}

// Tab describes an open editor tab
type Tab struct {
	URI    URI
	Column ViewColumn
	Active bool
}

// PickOptions configures a file picker
type PickOptions struct {
	Title       string
	DefaultPath string
	Save        bool
}

// DocumentProvider supplies the content of virtual documents for a scheme
type DocumentProvider interface {
	Content(uri URI) (string, bool)
}

// Notifier shows transient messages to the user. None of these block.
type Notifier interface {
	ShowInfo(msg string)
	ShowWarning(msg string)
	ShowError(msg string)
	SetStatus(msg string, timeout time.Duration)
}

// Host is the capability set of the hosting editor
type Host interface {
	Notifier

	CreatePanel(ctx context.Context, opts PanelOptions) (Panel, error)

	RegisterDocumentProvider(scheme string, provider DocumentProvider) Disposable
	// NotifyDocumentChanged asks the host to re-read a virtual document
	NotifyDocumentChanged(uri URI)
	ShowDocument(ctx context.Context, uri URI, opts ShowOptions) (Editor, error)
	// CloseDocumentTabs closes every tab showing uri
	CloseDocumentTabs(ctx context.Context, uri URI) error
	Tabs() []Tab
	IsDocumentOpen(uri URI) bool

	OpenFile(ctx context.Context, path string) error
	PickFile(ctx context.Context, opts PickOptions) (string, error)

	// OnTabsClosed fires for tabs closed by the user or by CloseDocumentTabs
	OnTabsClosed(fn func(uris []URI)) Disposable
	OnThemeChanged(fn func(theme Theme)) Disposable
	Theme() Theme
}

// Listeners is a list of callbacks. Fire calls a snapshot of the list without
// holding the lock, so callbacks may add or remove listeners.
type Listeners[T any] struct {
	mu   sync.Mutex
	list []*listener[T]
}

type listener[T any] struct {
	fn func(T)
}

// Add registers fn until the returned Disposable is disposed
func (l *Listeners[T]) Add(fn func(T)) Disposable {
	entry := &listener[T]{fn: fn}
	l.mu.Lock()
	l.list = append(l.list, entry)
	l.mu.Unlock()

	return DisposeFunc(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, existing := range l.list {
			if existing == entry {
				l.list = append(l.list[:i:i], l.list[i+1:]...)
				return
			}
		}
	})
}

// Fire calls every listener with v
func (l *Listeners[T]) Fire(v T) {
	l.mu.Lock()
	snapshot := append([]*listener[T](nil), l.list...)
	l.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(v)
	}
}

// Len returns the number of registered listeners
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}
