// Package memhost is an in-memory implementation of host.Host. It backs the
// headless and MCP modes and lets tests play the part of the user: closing
// tabs, toggling panel visibility and sending webview messages.
package memhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
)

// Level of a recorded notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelStatus  Level = "status"
)

// Notification is a message shown to the user
type Notification struct {
	Level Level
	Text  string
}

type tab struct {
	uri    host.URI
	editor host.EditorID
	column host.ViewColumn
}

// Host is an in-memory host. The zero value is not usable; call New.
type Host struct {
	mu sync.Mutex

	panels    []*Panel
	providers map[string]host.DocumentProvider
	tabs      []*tab
	activeURI host.URI
	theme     host.Theme

	tabsClosed    host.Listeners[[]host.URI]
	themeChanged  host.Listeners[host.Theme]
	observers     host.Listeners[*Host]
	notifications []Notification
	openedFiles   []string

	createdPanels  int
	shownDocuments int

	failCreatePanel  error
	failShowDocument error
	showDelay        time.Duration
	pickPath         string
	pickErr          error
	quiet            bool
}

// New creates an in-memory host with a dark theme
func New() *Host {
	return &Host{
		providers: make(map[string]host.DocumentProvider),
		theme:     host.ThemeDark,
		pickErr:   host.ErrCancelled,
	}
}

// SetQuiet stops notifications from being echoed to the log
func (h *Host) SetQuiet(quiet bool) {
	h.mu.Lock()
	h.quiet = quiet
	h.mu.Unlock()
}

var _ host.Host = (*Host)(nil)

// CreatePanel implements host.Host
func (h *Host) CreatePanel(ctx context.Context, opts host.PanelOptions) (host.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if err := h.failCreatePanel; err != nil {
		h.failCreatePanel = nil
		h.mu.Unlock()
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
	h.panels = append(h.panels, p)
	h.createdPanels++
	h.mu.Unlock()

	h.notifyObservers()
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

// NotifyDocumentChanged implements host.Host. Content is always read on
// demand, so there is nothing to refresh.
func (h *Host) NotifyDocumentChanged(uri host.URI) {}

// ShowDocument implements host.Host
func (h *Host) ShowDocument(ctx context.Context, uri host.URI, opts host.ShowOptions) (host.Editor, error) {
	h.mu.Lock()
	delay := h.showDelay
	h.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return host.Editor{}, ctx.Err()
		}
	}

	h.mu.Lock()
	if err := h.failShowDocument; err != nil {
		h.failShowDocument = nil
		h.mu.Unlock()
		return host.Editor{}, err
	}
	provider, ok := h.providers[uri.Scheme]
	if !ok {
		h.mu.Unlock()
		return host.Editor{}, fmt.Errorf("no document provider for scheme %q", uri.Scheme)
	}
	h.mu.Unlock()

	// Providers are called without the host lock held
	if _, ok := provider.Content(uri); !ok {
		return host.Editor{}, fmt.Errorf("document %s has no content", uri)
	}

	h.mu.Lock()
	column := opts.Column
	if column == host.ColumnBeside || column == host.ColumnActive || column == 0 {
		column = host.ColumnTwo
	}
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
	h.shownDocuments++
	editor := host.Editor{ID: t.editor, URI: uri, Column: t.column}
	h.mu.Unlock()

	h.notifyObservers()
	return editor, nil
}

// CloseDocumentTabs implements host.Host
func (h *Host) CloseDocumentTabs(ctx context.Context, uri host.URI) error {
	if h.removeTabs(uri) {
		h.tabsClosed.Fire([]host.URI{uri})
		h.notifyObservers()
	}
	return nil
}

func (h *Host) removeTabs(uri host.URI) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.tabs[:0]
	removed := false
	for _, t := range h.tabs {
		if t.uri == uri {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	h.tabs = kept
	if removed && h.activeURI == uri {
		h.activeURI = host.URI{}
	}
	return removed
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

// OpenFile implements host.Host
func (h *Host) OpenFile(ctx context.Context, path string) error {
	h.mu.Lock()
	h.openedFiles = append(h.openedFiles, path)
	h.mu.Unlock()
	return nil
}

// PickFile implements host.Host. It returns the path set with SetPickResult,
// or the default path when one is given.
func (h *Host) PickFile(ctx context.Context, opts host.PickOptions) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pickPath != "" || h.pickErr == nil {
		return h.pickPath, nil
	}
	if opts.DefaultPath != "" {
		return opts.DefaultPath, nil
	}
	return "", h.pickErr
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

// ShowInfo implements host.Notifier
func (h *Host) ShowInfo(msg string) { h.record(LevelInfo, msg) }

// ShowWarning implements host.Notifier
func (h *Host) ShowWarning(msg string) { h.record(LevelWarning, msg) }

// ShowError implements host.Notifier
func (h *Host) ShowError(msg string) { h.record(LevelError, msg) }

// SetStatus implements host.Notifier
func (h *Host) SetStatus(msg string, timeout time.Duration) { h.record(LevelStatus, msg) }

func (h *Host) record(level Level, msg string) {
	h.mu.Lock()
	h.notifications = append(h.notifications, Notification{Level: level, Text: msg})
	quiet := h.quiet
	h.mu.Unlock()

	if !quiet {
		log.Printf("[host] %s: %s", level, msg)
	}
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

func (h *Host) notifyObservers() {
	h.observers.Fire(h)
}

// Simulation and inspection helpers

// Observe registers fn to run after every panel or tab change
func (h *Host) Observe(fn func(h *Host)) host.Disposable {
	return h.observers.Add(fn)
}

// UserCloseTab closes the tabs showing uri the way a user clicking the tab's
// close button would.
func (h *Host) UserCloseTab(uri host.URI) bool {
	if !h.removeTabs(uri) {
		return false
	}
	h.tabsClosed.Fire([]host.URI{uri})
	h.notifyObservers()
	return true
}

// DropDocument forgets a tab without firing a close notification, as when the
// host invalidates a document behind the extension's back.
func (h *Host) DropDocument(uri host.URI) {
	h.removeTabs(uri)
	h.notifyObservers()
}

// SetTheme changes the theme and notifies listeners
func (h *Host) SetTheme(theme host.Theme) {
	h.mu.Lock()
	h.theme = theme
	h.mu.Unlock()
	h.themeChanged.Fire(theme)
}

// FailNextCreatePanel makes the next CreatePanel call fail with err
func (h *Host) FailNextCreatePanel(err error) {
	h.mu.Lock()
	h.failCreatePanel = err
	h.mu.Unlock()
}

// FailNextShowDocument makes the next ShowDocument call fail with err
func (h *Host) FailNextShowDocument(err error) {
	h.mu.Lock()
	h.failShowDocument = err
	h.mu.Unlock()
}

// SetShowDocumentDelay makes ShowDocument take d, to exercise concurrent opens
func (h *Host) SetShowDocumentDelay(d time.Duration) {
	h.mu.Lock()
	h.showDelay = d
	h.mu.Unlock()
}

// SetPickResult sets what PickFile returns
func (h *Host) SetPickResult(path string, err error) {
	h.mu.Lock()
	h.pickPath = path
	h.pickErr = err
	h.mu.Unlock()
}

// Panels returns the live panels
func (h *Host) Panels() []*Panel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Panel(nil), h.panels...)
}

// PanelsOfType returns the live panels with the given view type
func (h *Host) PanelsOfType(viewType string) []*Panel {
	var out []*Panel
	for _, p := range h.Panels() {
		if p.viewType == viewType {
			out = append(out, p)
		}
	}
	return out
}

// CreatedPanels counts every panel ever created
func (h *Host) CreatedPanels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createdPanels
}

// ShownDocuments counts ShowDocument calls that succeeded
func (h *Host) ShownDocuments() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shownDocuments
}

// DocumentText reads a virtual document through its provider
func (h *Host) DocumentText(uri host.URI) (string, bool) {
	h.mu.Lock()
	provider, ok := h.providers[uri.Scheme]
	h.mu.Unlock()
	if !ok {
		return "", false
	}
	return provider.Content(uri)
}

// Notifications returns every notification recorded so far
func (h *Host) Notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.notifications...)
}

// NotificationsAt filters notifications by level
func (h *Host) NotificationsAt(level Level) []string {
	var out []string
	for _, n := range h.Notifications() {
		if n.Level == level {
			out = append(out, n.Text)
		}
	}
	return out
}

// OpenedFiles returns the paths passed to OpenFile
func (h *Host) OpenedFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.openedFiles...)
}

// Panel is an in-memory panel
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
	posted   []json.RawMessage

	messages   host.Listeners[[]byte]
	viewStates host.Listeners[bool]
	disposals  host.Listeners[struct{}]
}

var _ host.Panel = (*Panel)(nil)

// ErrPanelDisposed is returned when posting to a disposed panel
var ErrPanelDisposed = errors.New("panel disposed")

func (p *Panel) ID() string       { return p.id }
func (p *Panel) ViewType() string { return p.viewType }
func (p *Panel) Title() string    { return p.title }

// Visible implements host.Panel
func (p *Panel) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible && !p.disposed
}

// Disposed reports whether the panel was disposed
func (p *Panel) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// SetHTML implements host.Panel
func (p *Panel) SetHTML(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
}

// HTML returns the last HTML set on the panel
func (p *Panel) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}

// PostMessage implements host.Panel
func (p *Panel) PostMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrPanelDisposed
	}
	p.posted = append(p.posted, data)
	return nil
}

// Posted returns the messages posted to the panel
func (p *Panel) Posted() []json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]json.RawMessage(nil), p.posted...)
}

// PostedTypes returns the "type" field of every posted message
func (p *Panel) PostedTypes() []string {
	var out []string
	for _, raw := range p.Posted() {
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			out = append(out, envelope.Type)
		}
	}
	return out
}

// Reveal implements host.Panel
func (p *Panel) Reveal(column host.ViewColumn) {
	p.SetVisible(true)
}

// Dispose implements host.Panel. Users closing the panel and the extension
// disposing it look the same to listeners.
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
	p.disposals.Fire(struct{}{})
	p.host.notifyObservers()
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

// SetVisible changes visibility and fires view state listeners on change
func (p *Panel) SetVisible(visible bool) {
	p.mu.Lock()
	if p.disposed || p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible
	p.mu.Unlock()

	p.viewStates.Fire(visible)
}

// UserClose closes the panel as the user would
func (p *Panel) UserClose() {
	p.Dispose()
}

// Send delivers a message from the panel's page to the extension
func (p *Panel) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.SendRaw(data)
	return nil
}

// SendRaw delivers raw bytes from the panel's page to the extension
func (p *Panel) SendRaw(data []byte) {
	if p.Disposed() {
		return
	}
	p.messages.Fire(data)
}
