package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
	"golang.org/x/sync/singleflight"
)

// flightKey is shared by open and show so a pending open absorbs a show
const flightKey = "preview"

// PreviewManager drives the preview document through
// closed -> transitioning -> open <-> hidden -> closed.
//
// The document text lives in the DocumentStore; the host only shows it. A
// hidden preview keeps its text so it can be shown again without formatting.
type PreviewManager struct {
	ctx    *Context
	life   context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu         sync.Mutex
	tracked    host.URI
	isHidden   bool
	column     host.ViewColumn
	lastConfig clangformat.Config
	generation uint64

	// closedWhileOpening is a tab the user closed before the open finished
	closedWhileOpening host.URI

	seq       atomic.Uint64
	created   atomic.Uint64
	refreshes sync.WaitGroup

	subs     []events.Subscription
	provider host.Disposable
}

// NewPreviewManager creates an uninitialised manager
func NewPreviewManager() *PreviewManager {
	return &PreviewManager{column: host.ColumnBeside}
}

// Initialize implements Manager
func (p *PreviewManager) Initialize(ctx context.Context, shared *Context) error {
	p.ctx = shared
	p.life, p.cancel = context.WithCancel(context.Background())
	p.provider = shared.Host.RegisterDocumentProvider(PreviewScheme, shared.Docs)
	p.subs = append(p.subs,
		events.On(shared.Bus, TabsClosed, p.handleTabsClosed),
		events.On(shared.Bus, ConfigUpdatedForPreview, p.handleConfigUpdate),
	)
	return nil
}

// OpenPreview shows the preview beside the control panel and returns its
// editor. Concurrent callers share one creation. An open preview whose
// document is still live is reused.
func (p *PreviewManager) OpenPreview(ctx context.Context) (host.EditorID, error) {
	return p.flight(ctx, "open preview", p.open)
}

// ShowPreview brings a hidden preview back. It is a no-op in any other mode.
func (p *PreviewManager) ShowPreview(ctx context.Context) error {
	_, err := p.flight(ctx, "show preview", p.show)
	return err
}

func (p *PreviewManager) flight(ctx context.Context, name string, fn func(context.Context) (host.EditorID, error)) (host.EditorID, error) {
	v, err, shared := p.group.Do(flightKey, func() (any, error) {
		var (
			id     host.EditorID
			superr error
		)
		handled := p.ctx.Recovery.Guard(recovery.Operation{
			Name:     name,
			Category: recovery.CategoryPanelCreation,
		}, func() error {
			defer p.settle()
			var err error
			id, err = fn(ctx)
			if errors.Is(err, ErrSuperseded) {
				superr = err
				return nil
			}
			return err
		})
		if handled != nil {
			return host.EditorID(""), handled
		}
		return id, superr
	})
	if shared {
		debugLog("%s joined a pending creation", name)
	}
	if err != nil {
		return "", err
	}
	return v.(host.EditorID), nil
}

func (p *PreviewManager) open(ctx context.Context) (host.EditorID, error) {
	st := p.ctx.State.Get()
	switch st.PreviewMode {
	case state.PreviewOpen:
		if p.isLive(st.PreviewURI) {
			debugLog("reusing preview %s", st.PreviewURI)
			return st.PreviewEditor, nil
		}
		log.Printf("[studio] preview %s was invalidated, recreating", st.PreviewURI)
		p.untrack(st.PreviewURI)
		p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewTransitioning)}, "preview.revalidate")
	case state.PreviewHidden:
		return p.show(ctx)
	case state.PreviewTransitioning:
		log.Printf("[studio] preview was left transitioning, recreating")
	}
	return p.create(ctx)
}

func (p *PreviewManager) isLive(uri host.URI) bool {
	p.mu.Lock()
	tracked := p.tracked
	p.mu.Unlock()
	return !uri.IsZero() && uri == tracked && p.ctx.Docs.Has(uri) && p.ctx.Host.IsDocumentOpen(uri)
}

func (p *PreviewManager) create(ctx context.Context) (host.EditorID, error) {
	uri := host.URI{
		Scheme: PreviewScheme,
		Path:   fmt.Sprintf("/preview-%d/%s", p.seq.Add(1), p.ctx.SampleFilename()),
	}
	// Tracked before the mode changes so a close from here on finds it
	cfg := p.ctx.State.Config()
	p.mu.Lock()
	p.tracked = uri
	p.isHidden = false
	p.lastConfig = cfg
	gen := p.generation
	p.mu.Unlock()

	p.ctx.State.Update(state.Patch{
		PreviewMode: state.Ptr(state.PreviewTransitioning),
		PreviewURI:  &uri,
	}, "preview.open")
	events.Emit(p.ctx.Bus, PreviewOpening, uri)

	p.purgeStray(ctx, uri)

	text := p.render(ctx, cfg)
	p.mu.Lock()
	live := p.tracked == uri
	if live && (p.generation == gen || !p.ctx.Docs.Has(uri)) {
		p.ctx.Docs.Set(uri, text)
	}
	p.mu.Unlock()
	if !live {
		debugLog("preview %s closed before it was shown", uri)
		p.untrack(uri)
		return "", ErrSuperseded
	}

	editor, err := p.ctx.Host.ShowDocument(ctx, uri, host.ShowOptions{
		Column:        host.ColumnBeside,
		PreserveFocus: true,
	})
	if err != nil {
		return "", fmt.Errorf("show preview document: %w", err)
	}
	return p.finishOpen(ctx, uri, editor, "preview.open")
}

// finishOpen moves to open unless the preview was closed while the host was
// showing the document, in which case the fresh tab is closed again.
func (p *PreviewManager) finishOpen(ctx context.Context, uri host.URI, editor host.Editor, source string) (host.EditorID, error) {
	p.mu.Lock()
	current := p.tracked == uri
	userClosed := current && p.closedWhileOpening == uri
	if current && !userClosed {
		p.column = editor.Column
		p.isHidden = false
	}
	p.mu.Unlock()

	if userClosed {
		p.untrack(uri)
		p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewClosed)}, "preview.user-closed")
		debugLog("preview %s closed by user while opening", uri)
		events.Emit(p.ctx.Bus, PreviewClosed, PreviewClosedEvent{URI: uri, ByUser: true})
		return "", ErrSuperseded
	}

	mode := p.ctx.State.PreviewMode()
	if !current || (mode != state.PreviewTransitioning && mode != state.PreviewHidden) {
		debugLog("preview %s closed while opening", uri)
		_ = p.ctx.Host.CloseDocumentTabs(ctx, uri)
		p.untrack(uri)
		return "", ErrSuperseded
	}

	p.created.Add(1)
	p.ctx.State.Update(state.Patch{
		PreviewMode:   state.Ptr(state.PreviewOpen),
		PreviewEditor: &editor.ID,
	}, source)
	events.Emit(p.ctx.Bus, PreviewOpened, PreviewInfo{URI: uri, Editor: editor.ID, Column: editor.Column})
	return editor.ID, nil
}

// purgeStray closes preview tabs left over from an earlier session
func (p *PreviewManager) purgeStray(ctx context.Context, keep host.URI) {
	for _, tab := range p.ctx.Host.Tabs() {
		if tab.URI.Scheme != PreviewScheme || tab.URI == keep {
			continue
		}
		log.Printf("[studio] closing stray preview tab %s", tab.URI)
		if err := p.ctx.Host.CloseDocumentTabs(ctx, tab.URI); err != nil {
			log.Printf("[studio] close stray preview %s: %v", tab.URI, err)
		}
		p.ctx.Docs.Delete(tab.URI)
	}
}

func (p *PreviewManager) show(ctx context.Context) (host.EditorID, error) {
	st := p.ctx.State.Get()
	if st.PreviewMode != state.PreviewHidden {
		debugLog("show preview ignored in mode %s", st.PreviewMode)
		return st.PreviewEditor, nil
	}

	p.mu.Lock()
	uri := p.tracked
	column := p.column
	cfg := p.lastConfig
	p.mu.Unlock()
	if uri.IsZero() {
		uri = st.PreviewURI
	}

	if !p.ctx.Docs.Has(uri) {
		debugLog("preview %s content was evicted, regenerating", uri)
		if cfg == nil {
			cfg = p.ctx.State.Config()
		}
		p.ctx.Docs.Set(uri, p.render(ctx, cfg))
	}

	editor, err := p.ctx.Host.ShowDocument(ctx, uri, host.ShowOptions{Column: column, PreserveFocus: true})
	if err != nil {
		p.untrack(uri)
		p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewClosed)}, "preview.show-failed")
		return "", fmt.Errorf("show hidden preview: %w", err)
	}
	return p.finishOpen(ctx, uri, editor, "preview.show")
}

// settle guarantees no public method leaves the preview transitioning
func (p *PreviewManager) settle() {
	st := p.ctx.State.Get()
	if st.PreviewMode != state.PreviewTransitioning {
		return
	}
	p.untrack(st.PreviewURI)
	p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewClosed)}, "preview.reset")
}

// untrack forgets uri and drops its content. Tabs are left alone.
func (p *PreviewManager) untrack(uri host.URI) {
	p.mu.Lock()
	if p.tracked == uri || uri.IsZero() {
		uri = p.tracked
		p.tracked = host.URI{}
		p.isHidden = false
		p.generation++
	}
	p.mu.Unlock()
	if !uri.IsZero() {
		p.ctx.Docs.Delete(uri)
	}
}

// HidePreview closes the preview tab but keeps the document, so ShowPreview
// can restore it. Only an open preview can be hidden.
func (p *PreviewManager) HidePreview(ctx context.Context) error {
	if p.ctx.State.PreviewMode() != state.PreviewOpen {
		return nil
	}

	p.mu.Lock()
	uri := p.tracked
	// Set before the close so the tab listener does not mistake it for the user
	p.isHidden = true
	p.mu.Unlock()

	p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewHidden)}, "preview.hide")
	if err := p.ctx.Host.CloseDocumentTabs(ctx, uri); err != nil {
		p.ctx.Recovery.Handle(err, recovery.Operation{
			Name:     "hide preview",
			Category: recovery.CategoryPanelCreation,
			Path:     uri.String(),
		})
		return err
	}
	debugLog("preview %s hidden", uri)
	return nil
}

// ClosePreview tears the preview down from any mode. It does not emit
// PreviewClosed, which is reserved for user closes.
func (p *PreviewManager) ClosePreview(ctx context.Context) error {
	p.mu.Lock()
	uri := p.tracked
	p.tracked = host.URI{}
	p.isHidden = false
	p.generation++
	p.mu.Unlock()

	st := p.ctx.State.Get()
	if uri.IsZero() {
		uri = st.PreviewURI
	}
	if st.PreviewMode == state.PreviewClosed && uri.IsZero() {
		return nil
	}

	var closeErr error
	if !uri.IsZero() {
		if err := p.ctx.Host.CloseDocumentTabs(ctx, uri); err != nil {
			closeErr = err
			p.ctx.Recovery.Handle(err, recovery.Operation{
				Name:     "close preview",
				Category: recovery.CategoryPanelCreation,
				Path:     uri.String(),
			})
		}
		p.ctx.Docs.Delete(uri)
	}
	p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewClosed)}, "preview.close")
	debugLog("preview %s closed", uri)
	return closeErr
}

func (p *PreviewManager) handleTabsClosed(uris []host.URI) {
	p.mu.Lock()
	uri := p.tracked
	hidden := p.isHidden
	p.mu.Unlock()

	if uri.IsZero() || hidden || !containsURI(uris, uri) {
		return
	}
	switch p.ctx.State.PreviewMode() {
	case state.PreviewOpen:
	case state.PreviewTransitioning:
		// The opener finishes the close once the host returns
		p.mu.Lock()
		if p.tracked == uri {
			p.closedWhileOpening = uri
		}
		p.mu.Unlock()
		return
	default:
		return
	}

	p.mu.Lock()
	if p.tracked != uri {
		p.mu.Unlock()
		return
	}
	p.tracked = host.URI{}
	p.generation++
	p.mu.Unlock()

	p.ctx.Docs.Delete(uri)
	p.ctx.State.Update(state.Patch{PreviewMode: state.Ptr(state.PreviewClosed)}, "preview.user-closed")
	debugLog("preview %s closed by user", uri)
	events.Emit(p.ctx.Bus, PreviewClosed, PreviewClosedEvent{URI: uri, ByUser: true})
}

// handleConfigUpdate re-renders the preview in the background. A newer
// update or a close makes the result stale and it is dropped.
func (p *PreviewManager) handleConfigUpdate(cfg clangformat.Config) {
	cfg = cfg.Clone()

	p.mu.Lock()
	p.lastConfig = cfg
	p.generation++
	gen := p.generation
	uri := p.tracked
	p.mu.Unlock()

	if uri.IsZero() {
		return
	}

	p.refreshes.Add(1)
	go func() {
		defer p.refreshes.Done()
		text := p.render(p.life, cfg)

		p.mu.Lock()
		current := p.generation == gen && p.tracked == uri
		if current {
			p.ctx.Docs.Set(uri, text)
		}
		p.mu.Unlock()

		if !current {
			debugLog("dropping stale preview refresh %d", gen)
			return
		}
		p.ctx.Host.NotifyDocumentChanged(uri)
	}()
}

// Flush waits for pending background refreshes
func (p *PreviewManager) Flush() {
	p.refreshes.Wait()
}

// render produces the preview text: a summary of the active options followed
// by the formatted sample, or by the unformatted sample when formatting fails.
func (p *PreviewManager) render(ctx context.Context, cfg clangformat.Config) string {
	summary := clangformat.Summary(cfg, "//")
	res := p.ctx.formatSample(ctx, cfg)
	if res.Success {
		return summary + res.FormattedCode
	}

	p.ctx.Recovery.Handle(errors.New(res.Error), recovery.Operation{
		Name:     "format preview",
		Category: recovery.CategoryProcess,
	})
	reason, _, _ := strings.Cut(res.Error, "\n")
	return summary + "// clang-format failed, showing unformatted code: " + reason + "\n//\n" + p.ctx.Sample
}

// Tracked returns the preview document being tracked
func (p *PreviewManager) Tracked() host.URI {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracked
}

// Created counts previews successfully opened or shown
func (p *PreviewManager) Created() uint64 {
	return p.created.Load()
}

// Dispose implements Manager
func (p *PreviewManager) Dispose() {
	for _, s := range p.subs {
		s.Unsubscribe()
	}
	p.subs = nil
	if p.cancel != nil {
		p.cancel()
	}
	p.refreshes.Wait()
	_ = p.ClosePreview(context.Background())
	if p.provider != nil {
		p.provider.Dispose()
	}
}

func containsURI(uris []host.URI, uri host.URI) bool {
	for _, u := range uris {
		if u == uri {
			return true
		}
	}
	return false
}
