package studio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/config"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/registry"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/webview"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// Manager names in registration order
const (
	ManagerMessages    = "messages"
	ManagerEditor      = "editor"
	ManagerPreview     = "preview"
	ManagerPlaceholder = "placeholder"
	ManagerConfig      = "config"
	ManagerDebounce    = "debounce"
	ManagerVersion     = "formatter-version"
)

// Options configures a Coordinator
type Options struct {
	Host      host.Host
	Settings  *config.Config
	Workspace string
	// Catalog defaults to clangformat.DefaultCatalog
	Catalog clangformat.Catalog
	// Formatter defaults to one built from Settings
	Formatter *formatter.Service
}

// Coordinator is the composition root of a visual editor session
type Coordinator struct {
	shared   *Context
	registry *registry.Registry[*Context]
	life     context.Context
	cancel   context.CancelFunc

	messages    *MessageHandler
	editor      *EditorManager
	preview     *PreviewManager
	placeholder *PlaceholderManager
	configs     *ConfigActionManager
	debounce    *DebounceIntegration

	initMu   sync.Mutex
	wired    bool
	loaded   bool
	subs     []events.Subscription
	disposed bool
}

// New builds the shared context and registers the managers. Nothing touches
// the host until ShowEditor or another operation needs it.
func New(opts Options) (*Coordinator, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("coordinator needs a host")
	}
	settings := opts.Settings
	if settings == nil {
		settings = &config.Config{}
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = clangformat.DefaultCatalog()
	}

	sample, err := settings.ReadPreviewSample()
	if err != nil {
		log.Printf("[studio] %v, using the built-in sample", err)
	}

	fmtr := opts.Formatter
	if fmtr == nil {
		fmtr = formatter.New(formatter.Options{
			Path:           settings.GetFormatterPath(),
			Timeout:        settings.GetFormatTimeout(),
			AssumeFilename: settings.GetPreviewFilename(),
			CacheSize:      settings.GetCacheSize(),
		})
	}

	bus := events.NewBus(events.WithDebugLogger(func(format string, args ...any) {
		debugLog(format, args...)
	}))
	st := state.NewManager(bus)

	shared := &Context{
		Bus:       bus,
		State:     st,
		Recovery:  recovery.NewManager(opts.Host, st),
		Host:      opts.Host,
		Docs:      NewDocumentStore(),
		Formatter: fmtr,
		Settings:  settings,
		Catalog:   catalog,
		Workspace: opts.Workspace,
		Sample:    sample,
	}

	c := &Coordinator{
		shared:      shared,
		registry:    registry.New[*Context](),
		messages:    NewMessageHandler(),
		editor:      NewEditorManager(),
		preview:     NewPreviewManager(),
		placeholder: NewPlaceholderManager(),
		configs:     NewConfigActionManager(),
	}
	c.debounce = NewDebounceIntegration(c.preview, c.placeholder)
	c.life, c.cancel = context.WithCancel(context.Background())

	for _, m := range []struct {
		name    string
		manager Manager
	}{
		{ManagerMessages, c.messages},
		{ManagerEditor, c.editor},
		{ManagerPreview, c.preview},
		{ManagerPlaceholder, c.placeholder},
		{ManagerConfig, c.configs},
		{ManagerDebounce, c.debounce},
	} {
		if err := c.registry.Register(m.name, m.manager); err != nil {
			return nil, err
		}
	}
	if err := c.registry.RegisterFactory(ManagerVersion, func() (Manager, error) {
		return &versionProbe{}, nil
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Shared returns the context handed to managers
func (c *Coordinator) Shared() *Context {
	return c.shared
}

// Bus returns the session event bus
func (c *Coordinator) Bus() *events.Bus {
	return c.shared.Bus
}

// wire initialises the managers once and hooks host notifications
func (c *Coordinator) wire(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.disposed {
		return ErrNotInitialized
	}
	if c.wired {
		return nil
	}
	c.wired = true

	if err := c.registry.InitializeAll(ctx, c.shared); err != nil {
		log.Printf("[studio] manager initialization: %v", err)
	}
	for _, s := range c.registry.Stats() {
		debugLog("initialized %s in %v (err=%v)", s.Name, s.Duration, s.Err)
	}

	bus := c.shared.Bus
	c.registry.Track(c.shared.Host.OnTabsClosed(func(uris []host.URI) {
		events.Emit(bus, TabsClosed, uris)
	}))
	c.subs = append(c.subs,
		events.On(bus, EditorVisibilityChanged, c.onVisibility),
		events.On(bus, EditorClosed, c.endSession),
	)
	return nil
}

// ShowEditor opens the visual editor: control panel first, then the preview.
// The workspace configuration is loaded on the first call.
func (c *Coordinator) ShowEditor(ctx context.Context) error {
	if err := c.wire(ctx); err != nil {
		return err
	}

	if err := c.editor.Show(ctx); err != nil {
		c.shared.Recovery.Handle(err, recovery.Operation{
			Name:          "show editor",
			Category:      recovery.CategoryPanelCreation,
			UserInitiated: true,
		})
		return err
	}
	c.shared.State.Update(state.Patch{
		IsVisible:     state.Ptr(true),
		IsInitialized: state.Ptr(true),
	}, "coordinator.show")

	c.initMu.Lock()
	first := !c.loaded
	c.loaded = true
	c.initMu.Unlock()
	if first && c.shared.Settings.GetAutoLoad() {
		_ = c.configs.Run(ctx, ConfigAction{Action: ActionLoad, Source: OriginStartup, Silent: true})
	}

	if _, err := c.preview.OpenPreview(ctx); err != nil {
		debugLog("initial preview: %v", err)
	}
	return nil
}

func (c *Coordinator) onVisibility(visible bool) {
	c.shared.State.Update(state.Patch{IsVisible: &visible}, "editor.visibility")
	if !c.shared.State.Get().IsInitialized {
		return
	}
	if visible {
		if err := c.preview.ShowPreview(c.life); err != nil {
			debugLog("show preview on editor visible: %v", err)
		}
		return
	}
	if err := c.preview.HidePreview(c.life); err != nil {
		debugLog("hide preview on editor hidden: %v", err)
	}
}

// endSession tears every pane down after the user closed the control panel
// or the placeholder
func (c *Coordinator) endSession(ev EditorClosedEvent) {
	log.Printf("[studio] session ended by closing the %s", ev.Source)
	c.shared.State.Update(state.Patch{
		IsVisible:     state.Ptr(false),
		IsInitialized: state.Ptr(false),
	}, "coordinator.end")
	c.placeholder.DisposePlaceholder()
	if err := c.preview.ClosePreview(c.life); err != nil {
		debugLog("close preview at session end: %v", err)
	}
	c.editor.Close()
}

// State returns a copy of the session state
func (c *Coordinator) State() state.VisualEditorState {
	return c.shared.State.Get()
}

// Subscribe calls fn after every state change
func (c *Coordinator) Subscribe(fn func(state.Change)) events.Subscription {
	return events.On(c.shared.Bus, state.Changed, fn)
}

// SetOption edits one option the way the control panel does. An unset or
// inherit value removes the key.
func (c *Coordinator) SetOption(ctx context.Context, key string, value clangformat.Value) error {
	if err := c.wire(ctx); err != nil {
		return err
	}
	var catalog clangformat.Catalog
	if value.IsSet() {
		catalog = c.shared.Catalog
	}
	if err := clangformat.Validate(clangformat.Config{key: value}, catalog); err != nil {
		return err
	}
	events.Emit(c.shared.Bus, ConfigChanged, webview.ConfigChangedPayload{Key: key, Value: value})
	return nil
}

// RunConfigAction runs a config action and waits for it
func (c *Coordinator) RunConfigAction(ctx context.Context, a ConfigAction) error {
	if err := c.wire(ctx); err != nil {
		return err
	}
	if a.Source == "" {
		a.Source = OriginAPI
	}
	return c.configs.Run(ctx, a)
}

// OpenPreview opens or reuses the preview
func (c *Coordinator) OpenPreview(ctx context.Context) (host.EditorID, error) {
	if err := c.wire(ctx); err != nil {
		return "", err
	}
	return c.preview.OpenPreview(ctx)
}

// ClosePreview closes the preview without showing the placeholder
func (c *Coordinator) ClosePreview(ctx context.Context) error {
	if err := c.wire(ctx); err != nil {
		return err
	}
	return c.preview.ClosePreview(ctx)
}

// PreviewText returns the text of the preview document
func (c *Coordinator) PreviewText() (string, bool) {
	c.preview.Flush()
	uri := c.shared.State.Get().PreviewURI
	if uri.IsZero() {
		return "", false
	}
	return c.shared.Docs.Content(uri)
}

// FormatSample formats the preview sample with the current configuration
func (c *Coordinator) FormatSample(ctx context.Context) (formatter.Result, formatter.Changes) {
	res := c.shared.formatSample(ctx, c.shared.State.Config())
	return res, formatter.Diff(c.shared.Sample, res.FormattedCode)
}

// RecentErrors returns up to n handled errors, newest first
func (c *Coordinator) RecentErrors(n int) []recovery.Error {
	return c.shared.Recovery.Recent(n)
}

// FormatterStats returns formatter cache counters
func (c *Coordinator) FormatterStats() formatter.Stats {
	return c.shared.Formatter.Stats()
}

// FormatterVersion reports the clang-format version. It is probed once, on
// first use.
func (c *Coordinator) FormatterVersion(ctx context.Context) (string, error) {
	if err := c.wire(ctx); err != nil {
		return "", err
	}
	m, err := c.registry.Get(ctx, ManagerVersion)
	if err != nil {
		return "", err
	}
	probe := m.(*versionProbe)
	return probe.version, probe.err
}

// InitStats returns manager initialization records
func (c *Coordinator) InitStats() []registry.InitStat {
	return c.registry.Stats()
}

// Dispose ends the session and releases every manager
func (c *Coordinator) Dispose() {
	c.initMu.Lock()
	if c.disposed {
		c.initMu.Unlock()
		return
	}
	c.disposed = true
	subs := c.subs
	c.subs = nil
	c.initMu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	c.cancel()
	c.registry.Dispose()
	c.shared.Bus.Dispose()
}

// versionProbe runs clang-format --version when first asked for
type versionProbe struct {
	version string
	err     error
}

func (v *versionProbe) Initialize(ctx context.Context, shared *Context) error {
	v.version, v.err = shared.Formatter.Version(ctx)
	return nil
}

func (v *versionProbe) Dispose() {}
