package studio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/webview"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// ViewTypeEditor is the view type of the control panel
const ViewTypeEditor = "clangfmt.visualEditor"

const editorTitle = "Clang-Format Visual Editor"

// EditorManager owns the control panel: it renders the option form, relays
// the page's messages and answers preview requests coming from it.
type EditorManager struct {
	ctx    *Context
	life   context.Context
	cancel context.CancelFunc

	// showMu serialises panel creation; it is never taken by panel callbacks
	showMu sync.Mutex

	mu        sync.Mutex
	panel     host.Panel
	panelSubs []host.Disposable
	closing   host.Panel

	subs     []events.Subscription
	themeSub host.Disposable
}

// NewEditorManager creates an uninitialised manager
func NewEditorManager() *EditorManager {
	return &EditorManager{}
}

// Initialize implements Manager
func (e *EditorManager) Initialize(ctx context.Context, shared *Context) error {
	e.ctx = shared
	e.life, e.cancel = context.WithCancel(context.Background())

	bus := shared.Bus
	e.subs = append(e.subs,
		events.On(bus, PostMessageToWebview, e.Post),
		events.On(bus, WebviewReady, func(origin string) {
			if origin == OriginEditor {
				e.sendInitialize()
			}
		}),
		events.On(bus, MicroPreviewRequested, e.microPreview),
		events.On(bus, MacroPreviewRequested, e.macroPreview),
		events.On(bus, OptionHighlighted, func(h Highlight) {
			e.Post(webview.MustMessage(webview.TypeHighlightOption, webview.HighlightPayload{Key: h.Key, Source: h.Source}))
		}),
		events.On(bus, ThemeChanged, func(theme host.Theme) {
			e.Post(webview.MustMessage(webview.TypeThemeChanged, webview.ThemePayload{Theme: string(theme)}))
		}),
	)
	e.themeSub = shared.Host.OnThemeChanged(func(theme host.Theme) {
		events.Emit(bus, ThemeChanged, theme)
	})
	return nil
}

// Show creates the control panel, or reveals it when it exists
func (e *EditorManager) Show(ctx context.Context) error {
	e.showMu.Lock()
	defer e.showMu.Unlock()

	if p := e.Panel(); p != nil {
		p.Reveal(host.ColumnOne)
		return nil
	}

	html, err := e.render()
	if err != nil {
		return fmt.Errorf("render editor: %w", err)
	}

	panel, err := e.ctx.Host.CreatePanel(ctx, host.PanelOptions{
		ViewType:      ViewTypeEditor,
		Title:         editorTitle,
		Column:        host.ColumnOne,
		RetainContext: true,
	})
	if err != nil {
		return fmt.Errorf("create editor panel: %w", err)
	}

	subs := []host.Disposable{
		panel.OnDidReceiveMessage(func(raw []byte) {
			e.ctx.Messages.Handle(raw, OriginEditor)
		}),
		panel.OnDidChangeViewState(func(visible bool) {
			events.Emit(e.ctx.Bus, EditorVisibilityChanged, visible)
		}),
		panel.OnDidDispose(func() { e.onDisposed(panel) }),
	}

	e.mu.Lock()
	e.panel = panel
	e.panelSubs = subs
	e.mu.Unlock()

	panel.SetHTML(html)
	debugLog("editor panel %s created", panel.ID())
	return nil
}

// Panel returns the live control panel, nil when there is none
func (e *EditorManager) Panel() host.Panel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.panel
}

// Visible reports whether the control panel exists and is visible
func (e *EditorManager) Visible() bool {
	p := e.Panel()
	return p != nil && p.Visible()
}

// Close disposes the panel without reporting it as a user close
func (e *EditorManager) Close() {
	e.mu.Lock()
	p := e.panel
	e.closing = p
	e.mu.Unlock()

	if p != nil {
		p.Dispose()
	}

	e.mu.Lock()
	e.closing = nil
	e.mu.Unlock()
}

func (e *EditorManager) onDisposed(panel host.Panel) {
	e.mu.Lock()
	if e.panel != panel {
		e.mu.Unlock()
		return
	}
	programmatic := e.closing == panel
	e.panel = nil
	subs := e.panelSubs
	e.panelSubs = nil
	e.mu.Unlock()

	for _, s := range subs {
		s.Dispose()
	}
	if programmatic {
		debugLog("editor panel %s disposed", panel.ID())
		return
	}
	debugLog("editor panel %s closed by user", panel.ID())
	events.Emit(e.ctx.Bus, EditorClosed, EditorClosedEvent{Source: OriginEditor})
}

// Post sends msg to the control panel page. Without a panel it is dropped.
func (e *EditorManager) Post(msg webview.Message) {
	p := e.Panel()
	if p == nil {
		debugLog("no editor panel for %s", msg.Type)
		return
	}
	if err := p.PostMessage(msg); err != nil {
		log.Printf("[studio] post %s to editor: %v", msg.Type, err)
	}
}

func (e *EditorManager) render() (string, error) {
	st := e.ctx.State.Get()
	return renderPage("editor.html.tmpl", editorPage{
		Title:      editorTitle,
		Theme:      string(e.ctx.Host.Theme()),
		ConfigPath: e.ctx.ConfigPath(),
		Dirty:      st.ConfigDirty,
		Groups:     groupOptions(e.ctx.Catalog, st.CurrentConfig),
	})
}

func (e *EditorManager) sendInitialize() {
	st := e.ctx.State.Get()
	e.Post(webview.MustMessage(webview.TypeInitialize, webview.InitializePayload{
		Options:    e.ctx.Catalog.Options(),
		Config:     st.CurrentConfig,
		Dirty:      st.ConfigDirty,
		Theme:      string(e.ctx.Host.Theme()),
		ConfigPath: e.ctx.ConfigPath(),
	}))
}

// microPreview formats the snippet of one option with the current
// configuration plus the requested value
func (e *EditorManager) microPreview(req webview.MicroPreviewRequest) {
	update := webview.MicroPreviewUpdate{Key: req.Key}

	opt, ok := e.ctx.Catalog.Lookup(req.Key)
	if !ok {
		update.Error = fmt.Sprintf("unknown option %q", req.Key)
		e.Post(webview.MustMessage(webview.TypeUpdateMicroPreview, update))
		return
	}
	snippet := opt.Snippet
	if snippet == "" {
		snippet = e.ctx.Sample
	}

	cfg := e.ctx.State.Config().Merge(clangformat.Config{req.Key: req.Value})
	res := e.ctx.Formatter.FormatAs(e.life, snippet, cfg, e.ctx.SampleFilename())
	update.Code = res.FormattedCode
	update.Error = res.Error
	e.Post(webview.MustMessage(webview.TypeUpdateMicroPreview, update))
}

// macroPreview formats the whole sample and reports how much changed
func (e *EditorManager) macroPreview(req webview.MacroPreviewRequest) {
	cfg := req.Config
	if cfg == nil {
		cfg = e.ctx.State.Config()
	}
	res := e.ctx.formatSample(e.life, cfg)
	changes := formatter.Diff(e.ctx.Sample, res.FormattedCode)
	e.Post(webview.MustMessage(webview.TypeMacroPreviewUpdate, webview.MacroPreviewUpdate{
		Code:         res.FormattedCode,
		Inserted:     changes.Inserted,
		Deleted:      changes.Deleted,
		ChangedLines: changes.ChangedLines,
		Error:        res.Error,
	}))
}

// Dispose implements Manager
func (e *EditorManager) Dispose() {
	if e.cancel != nil {
		e.cancel()
	}
	for _, s := range e.subs {
		s.Unsubscribe()
	}
	e.subs = nil
	if e.themeSub != nil {
		e.themeSub.Dispose()
	}
	e.Close()
}
