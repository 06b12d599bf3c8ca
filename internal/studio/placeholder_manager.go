package studio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// ViewTypePlaceholder is the view type of the pane shown where the preview
// was after the user closed it
const ViewTypePlaceholder = "clangfmt.previewPlaceholder"

const placeholderTitle = "Preview closed"

// PlaceholderManager shows a substitute pane with a reopen button while the
// preview is closed. It tears itself down as soon as a preview starts
// opening, so the two panes never coexist.
type PlaceholderManager struct {
	ctx *Context

	// createMu serialises creation; panel callbacks never take it
	createMu sync.Mutex

	mu        sync.Mutex
	panel     host.Panel
	panelSubs []host.Disposable
	closing   host.Panel
	// epoch changes whenever the placeholder is disposed, so a creation
	// that raced with a dispose can tell its panel is unwanted
	epoch uint64

	created atomic.Uint64
	subs    []events.Subscription
}

// NewPlaceholderManager creates an uninitialised manager
func NewPlaceholderManager() *PlaceholderManager {
	return &PlaceholderManager{}
}

// Initialize implements Manager
func (p *PlaceholderManager) Initialize(ctx context.Context, shared *Context) error {
	p.ctx = shared
	p.subs = append(p.subs,
		events.On(shared.Bus, PreviewOpening, func(host.URI) { p.DisposePlaceholder() }),
		events.On(shared.Bus, PreviewOpened, func(PreviewInfo) { p.DisposePlaceholder() }),
	)
	return nil
}

// allowed reports whether a placeholder may exist: the control panel is up
// and the preview is closed
func (p *PlaceholderManager) allowed() bool {
	st := p.ctx.State.Get()
	return st.IsVisible && st.IsInitialized && st.PreviewMode == state.PreviewClosed
}

// HandlePreviewClosed shows the placeholder after the user closed the
// preview. Nothing happens while the control panel is hidden or going away.
func (p *PlaceholderManager) HandlePreviewClosed(ctx context.Context) error {
	p.createMu.Lock()
	defer p.createMu.Unlock()

	if !p.allowed() {
		debugLog("placeholder not shown: editor hidden or preview not closed")
		return nil
	}

	p.mu.Lock()
	existing := p.panel
	p.mu.Unlock()
	if existing != nil {
		if existing.Visible() {
			existing.Reveal(host.ColumnTwo)
			return nil
		}
		debugLog("discarding stale placeholder %s", existing.ID())
		p.DisposePlaceholder()
	}

	p.mu.Lock()
	epoch := p.epoch
	p.mu.Unlock()

	html, err := renderPage("placeholder.html.tmpl", placeholderPage{
		Title:   placeholderTitle,
		Theme:   string(p.ctx.Host.Theme()),
		Summary: clangformat.Summary(p.ctx.State.Config(), "//"),
	})
	if err != nil {
		return fmt.Errorf("render placeholder: %w", err)
	}

	panel, err := p.ctx.Host.CreatePanel(ctx, host.PanelOptions{
		ViewType:      ViewTypePlaceholder,
		Title:         placeholderTitle,
		Column:        host.ColumnTwo,
		PreserveFocus: true,
	})
	if err != nil {
		p.ctx.Recovery.Handle(err, recovery.Operation{
			Name:     "create placeholder",
			Category: recovery.CategoryPanelCreation,
		})
		return err
	}

	subs := []host.Disposable{
		panel.OnDidReceiveMessage(func(raw []byte) {
			p.ctx.Messages.Handle(raw, OriginPlaceholder)
		}),
		panel.OnDidDispose(func() { p.onDisposed(panel) }),
	}

	p.mu.Lock()
	if p.epoch != epoch || !p.allowed() {
		p.closing = panel
		p.mu.Unlock()
		debugLog("placeholder %s no longer wanted", panel.ID())
		panel.Dispose()
		p.mu.Lock()
		p.closing = nil
		p.mu.Unlock()
		for _, s := range subs {
			s.Dispose()
		}
		return nil
	}
	p.panel = panel
	p.panelSubs = subs
	p.mu.Unlock()

	panel.SetHTML(html)
	p.created.Add(1)
	debugLog("placeholder %s shown", panel.ID())
	return nil
}

// DisposePlaceholder removes the placeholder without ending the session
func (p *PlaceholderManager) DisposePlaceholder() {
	p.mu.Lock()
	p.epoch++
	panel := p.panel
	p.closing = panel
	p.mu.Unlock()

	if panel != nil {
		panel.Dispose()
	}

	p.mu.Lock()
	p.closing = nil
	p.mu.Unlock()
}

func (p *PlaceholderManager) onDisposed(panel host.Panel) {
	p.mu.Lock()
	if p.panel != panel {
		p.mu.Unlock()
		return
	}
	programmatic := p.closing == panel
	p.panel = nil
	subs := p.panelSubs
	p.panelSubs = nil
	p.epoch++
	p.mu.Unlock()

	for _, s := range subs {
		s.Dispose()
	}
	if programmatic {
		return
	}
	debugLog("placeholder %s closed by user", panel.ID())
	events.Emit(p.ctx.Bus, EditorClosed, EditorClosedEvent{Source: OriginPlaceholder})
}

// Panel returns the live placeholder, nil when there is none
func (p *PlaceholderManager) Panel() host.Panel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.panel
}

// Created counts placeholders shown
func (p *PlaceholderManager) Created() uint64 {
	return p.created.Load()
}

// Dispose implements Manager
func (p *PlaceholderManager) Dispose() {
	for _, s := range p.subs {
		s.Unsubscribe()
	}
	p.subs = nil
	p.DisposePlaceholder()
}
