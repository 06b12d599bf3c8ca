// Package webhost hosts the visual editor in a browser. Panels become
// iframes and virtual documents become read-only tabs in a single shell page
// that talks to the process over a websocket.
package webhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
)

// ErrPanelDisposed is returned when posting to a disposed panel
var ErrPanelDisposed = errors.New("panel disposed")

type tab struct {
	uri    host.URI
	editor host.EditorID
	column host.ViewColumn
}

// Host implements host.Host for browser clients. It works without any
// connected browser; state is replayed to each browser that connects.
type Host struct {
	mu        sync.Mutex
	panels    []*Panel
	providers map[string]host.DocumentProvider
	tabs      []*tab
	activeURI host.URI
	theme     host.Theme
	clients   map[*client]struct{}
	picks     map[string]chan string
	files     map[string]string

	tabsClosed   host.Listeners[[]host.URI]
	themeChanged host.Listeners[host.Theme]

	router   *mux.Router
	upgrader websocket.Upgrader
	server   *serverState
}

var _ host.Host = (*Host)(nil)

// New creates a browser host with a dark theme
func New() *Host {
	h := &Host{
		providers: make(map[string]host.DocumentProvider),
		theme:     host.ThemeDark,
		clients:   make(map[*client]struct{}),
		picks:     make(map[string]chan string),
		files:     make(map[string]string),
		router:    mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Served on loopback for a single local user
			},
		},
	}
	h.setupRoutes()
	return h
}

// CreatePanel implements host.Host
func (h *Host) CreatePanel(ctx context.Context, opts host.PanelOptions) (host.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &Panel{
		host:     h,
		id:       uuid.New().String(),
		viewType: opts.ViewType,
		title:    opts.Title,
		column:   opts.Column,
		visible:  true,
	}
	h.mu.Lock()
	h.panels = append(h.panels, p)
	h.mu.Unlock()

	h.broadcast(p.createFrame())
	return p, nil
}

// RegisterDocumentProvider implements host.Host
func (h *Host) RegisterDocumentProvider(scheme string, provider host.DocumentProvider) host.Disposable {
	h.mu.Lock()
	h.providers[scheme] = provider
	h.mu.Unlock()
	return host.DisposeFunc(func() {
		h.mu.Lock()
		if h.providers[scheme] == provider {
			delete(h.providers, scheme)
		}
		h.mu.Unlock()
	})
}

// NotifyDocumentChanged implements host.Host. Browsers showing uri refetch it.
func (h *Host) NotifyDocumentChanged(uri host.URI) {
	if h.IsDocumentOpen(uri) {
		h.broadcast(frame{Op: opDocChanged, URI: uri.String()})
	}
}

// content reads a virtual document through its provider
func (h *Host) content(uri host.URI) (string, bool) {
	h.mu.Lock()
	provider, ok := h.providers[uri.Scheme]
	h.mu.Unlock()
	if !ok {
		return "", false
	}
	return provider.Content(uri)
}

// ShowDocument implements host.Host
func (h *Host) ShowDocument(ctx context.Context, uri host.URI, opts host.ShowOptions) (host.Editor, error) {
	if err := ctx.Err(); err != nil {
		return host.Editor{}, err
	}
	h.mu.Lock()
	_, ok := h.providers[uri.Scheme]
	h.mu.Unlock()
	if !ok {
		return host.Editor{}, fmt.Errorf("no document provider for scheme %q", uri.Scheme)
	}
	if _, ok := h.content(uri); !ok {
		return host.Editor{}, fmt.Errorf("document %s has no content", uri)
	}

	column := opts.Column
	if column == host.ColumnBeside || column == host.ColumnActive || column == 0 {
		column = host.ColumnTwo
	}

	h.mu.Lock()
	var t *tab
	for _, existing := range h.tabs {
		if existing.uri == uri {
			t = existing
			break
		}
	}
	if t == nil {
		t = &tab{uri: uri, editor: host.EditorID(uuid.New().String()), column: column}
		h.tabs = append(h.tabs, t)
	}
	h.activeURI = uri
	editor := host.Editor{ID: t.editor, URI: uri, Column: t.column}
	h.mu.Unlock()

	h.broadcast(frame{Op: opDocShow, URI: uri.String(), Editor: string(editor.ID), Column: editor.Column})
	return editor, nil
}

// CloseDocumentTabs implements host.Host
func (h *Host) CloseDocumentTabs(ctx context.Context, uri host.URI) error {
	h.closeTabs(uri)
	return nil
}

// closeTabs removes the tabs showing uri and tells listeners and browsers
func (h *Host) closeTabs(uri host.URI) {
	h.mu.Lock()
	removed := false
	kept := h.tabs[:0]
	for _, t := range h.tabs {
		if t.uri == uri {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	h.tabs = kept
	if h.activeURI == uri {
		h.activeURI = host.URI{}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	h.broadcast(frame{Op: opDocClose, URI: uri.String()})
	h.tabsClosed.Fire([]host.URI{uri})
}

// Tabs implements host.Host
func (h *Host) Tabs() []host.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Tab, 0, len(h.tabs))
	for _, t := range h.tabs {
		out = append(out, host.Tab{URI: t.uri, Column: t.column, Active: t.uri == h.activeURI})
	}
	return out
}

// IsDocumentOpen implements host.Host
func (h *Host) IsDocumentOpen(uri host.URI) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.tabs {
		if t.uri == uri {
			return true
		}
	}
	return false
}

// OpenFile implements host.Host. The file is shown read-only in a browser tab.
func (h *Host) OpenFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	id := uuid.New().String()
	h.mu.Lock()
	h.files[id] = path
	h.mu.Unlock()
	h.broadcast(frame{Op: opOpenFile, ID: id, Path: path})
	return nil
}

// PickFile implements host.Host by asking the first connected browser. With
// no browser connected the default path is used.
func (h *Host) PickFile(ctx context.Context, opts host.PickOptions) (string, error) {
	h.mu.Lock()
	connected := len(h.clients) > 0
	h.mu.Unlock()
	if !connected {
		if opts.DefaultPath != "" {
			return opts.DefaultPath, nil
		}
		return "", host.ErrCancelled
	}

	id := uuid.New().String()
	result := make(chan string, 1)
	h.mu.Lock()
	h.picks[id] = result
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.picks, id)
		h.mu.Unlock()
	}()

	h.broadcast(frame{Op: opPick, ID: id, Title: opts.Title, Path: opts.DefaultPath, Save: opts.Save})
	select {
	case path := <-result:
		if path == "" {
			return "", host.ErrCancelled
		}
		return path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// OnTabsClosed implements host.Host
func (h *Host) OnTabsClosed(fn func(uris []host.URI)) host.Disposable {
	return h.tabsClosed.Add(fn)
}

// OnThemeChanged implements host.Host
func (h *Host) OnThemeChanged(fn func(theme host.Theme)) host.Disposable {
	return h.themeChanged.Add(fn)
}

// Theme implements host.Host
func (h *Host) Theme() host.Theme {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.theme
}

// SetTheme changes the theme, as when a browser reports its colour scheme
func (h *Host) SetTheme(theme host.Theme) {
	h.mu.Lock()
	changed := h.theme != theme
	h.theme = theme
	h.mu.Unlock()
	if !changed {
		return
	}
	h.broadcast(frame{Op: opTheme, Theme: string(theme)})
	h.themeChanged.Fire(theme)
}

// ShowInfo implements host.Notifier
func (h *Host) ShowInfo(msg string) { h.notify("info", msg) }

// ShowWarning implements host.Notifier
func (h *Host) ShowWarning(msg string) { h.notify("warning", msg) }

// ShowError implements host.Notifier
func (h *Host) ShowError(msg string) { h.notify("error", msg) }

// SetStatus implements host.Notifier
func (h *Host) SetStatus(msg string, timeout time.Duration) { h.notify("status", msg) }

func (h *Host) notify(level, msg string) {
	log.Printf("[webhost] %s: %s", level, msg)
	h.broadcast(frame{Op: opNotify, Level: level, Text: msg})
}

// Panels returns the live panels
func (h *Host) Panels() []*Panel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Panel(nil), h.panels...)
}

func (h *Host) panel(id string) *Panel {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.panels {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (h *Host) removePanel(p *Panel) {
	h.mu.Lock()
	for i, existing := range h.panels {
		if existing == p {
			h.panels = append(h.panels[:i:i], h.panels[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
}

// Panel is a panel rendered in a browser iframe
type Panel struct {
	host     *Host
	id       string
	viewType string
	title    string
	column   host.ViewColumn

	mu       sync.Mutex
	visible  bool
	disposed bool
	html     string

	messages   host.Listeners[[]byte]
	viewStates host.Listeners[bool]
	disposals  host.Listeners[struct{}]
}

var _ host.Panel = (*Panel)(nil)

func (p *Panel) ID() string       { return p.id }
func (p *Panel) ViewType() string { return p.viewType }

// Visible implements host.Panel
func (p *Panel) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible && !p.disposed
}

// SetHTML implements host.Panel
func (p *Panel) SetHTML(html string) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.html = html
	p.mu.Unlock()
	p.host.broadcast(frame{Op: opPanelHTML, ID: p.id, HTML: html})
}

// PostMessage implements host.Panel
func (p *Panel) PostMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return ErrPanelDisposed
	}
	p.host.broadcast(frame{Op: opPanelPost, ID: p.id, Message: data})
	return nil
}

// Reveal implements host.Panel
func (p *Panel) Reveal(column host.ViewColumn) {
	p.host.broadcast(frame{Op: opPanelReveal, ID: p.id})
	p.setVisible(true)
}

// Dispose implements host.Panel
func (p *Panel) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.visible = false
	p.mu.Unlock()

	p.host.removePanel(p)
	p.host.broadcast(frame{Op: opPanelDispose, ID: p.id})
	p.disposals.Fire(struct{}{})
}

// OnDidReceiveMessage implements host.Panel
func (p *Panel) OnDidReceiveMessage(fn func(raw []byte)) host.Disposable {
	return p.messages.Add(fn)
}

// OnDidChangeViewState implements host.Panel
func (p *Panel) OnDidChangeViewState(fn func(visible bool)) host.Disposable {
	return p.viewStates.Add(fn)
}

// OnDidDispose implements host.Panel
func (p *Panel) OnDidDispose(fn func()) host.Disposable {
	return p.disposals.Add(func(struct{}) { fn() })
}

func (p *Panel) setVisible(visible bool) {
	p.mu.Lock()
	if p.disposed || p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible
	p.mu.Unlock()
	p.viewStates.Fire(visible)
}

func (p *Panel) createFrame() frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return frame{
		Op:       opPanelCreate,
		ID:       p.id,
		ViewType: p.viewType,
		Title:    p.title,
		Column:   p.column,
		HTML:     p.html,
	}
}
