package studio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/mitchellh/go-homedir"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/webview"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// AltConfigFileName is read when the workspace has no .clang-format
const AltConfigFileName = "_clang-format"

const (
	lockTimeout    = 5 * time.Second
	lockRetry      = 100 * time.Millisecond
	reloadDebounce = 100 * time.Millisecond
	configFileMode = 0o644
)

// ConfigActionManager performs the config file actions and is the only
// writer of CurrentConfig.
type ConfigActionManager struct {
	ctx    *Context
	life   context.Context
	cancel context.CancelFunc

	// copyText puts text on the clipboard
	copyText func(text string) error

	mu          sync.Mutex
	edited      bool
	lastWritten map[string]string
	reload      *time.Timer

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
	subs      []events.Subscription
}

// NewConfigActionManager creates an uninitialised manager
func NewConfigActionManager() *ConfigActionManager {
	return &ConfigActionManager{
		copyText:    clipboard.WriteAll,
		lastWritten: make(map[string]string),
	}
}

// Initialize implements Manager. The workspace watcher starts here; the
// startup load is left to the coordinator.
func (m *ConfigActionManager) Initialize(ctx context.Context, shared *Context) error {
	m.ctx = shared
	m.life, m.cancel = context.WithCancel(context.Background())
	m.subs = append(m.subs,
		events.On(shared.Bus, ConfigActionRequested, func(a ConfigAction) {
			_ = m.Run(m.life, a)
		}),
		events.On(shared.Bus, ConfigChanged, m.applyEdit),
	)

	if shared.Settings.GetWatchConfig() && shared.Workspace != "" {
		if err := m.startWatcher(); err != nil {
			log.Printf("[studio] config watcher disabled: %v", err)
		}
	}
	return nil
}

// Run performs one action. Failures are reported through recovery and
// returned; a cancelled file picker is not a failure worth reporting.
func (m *ConfigActionManager) Run(ctx context.Context, a ConfigAction) error {
	var (
		path string
		err  error
	)
	switch a.Action {
	case ActionLoad:
		path, err = m.load(ctx, a)
	case ActionSave:
		path, err = m.save(ctx, a)
	case ActionImport:
		path, err = m.importFile(ctx, a)
	case ActionExport:
		path, err = m.exportFile(ctx, a)
	case ActionReset:
		m.mu.Lock()
		m.edited = true
		m.mu.Unlock()
		m.updateConfigState(clangformat.DefaultConfig(), true, string(ActionReset), false)
	case ActionOpenAsText:
		path, err = m.openAsText(ctx, a)
	case ActionCopy:
		err = m.copy()
	default:
		err = fmt.Errorf("unknown config action %q", a.Action)
	}

	if err != nil && !errors.Is(err, host.ErrCancelled) {
		m.ctx.Recovery.Handle(err, recovery.Operation{
			Name:          string(a.Action) + " config",
			Category:      recovery.CategoryConfigIO,
			Path:          path,
			UserInitiated: !a.Silent,
		})
	}
	if err == nil {
		debugLog("config action %s done (%s)", a.Action, path)
	}
	events.Emit(m.ctx.Bus, ConfigActionCompleted, ActionResult{Action: a.Action, Path: path, Err: err})
	return err
}

// WorkspaceFile is the file load and save use: .clang-format, or
// _clang-format when only that one exists.
func (m *ConfigActionManager) WorkspaceFile() string {
	primary := m.ctx.ConfigPath()
	if _, err := os.Stat(primary); err == nil {
		return primary
	}
	alt := filepath.Join(m.ctx.Workspace, AltConfigFileName)
	if _, err := os.Stat(alt); err == nil {
		return alt
	}
	return primary
}

func (m *ConfigActionManager) load(ctx context.Context, a ConfigAction) (string, error) {
	path := m.WorkspaceFile()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && a.Silent {
			m.ctx.Host.SetStatus("No "+filepath.Base(path)+" in the workspace, using defaults", recovery.StatusTimeout)
			return path, nil
		}
		return path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := m.parse(ctx, string(data), path)
	if err != nil {
		return path, err
	}

	m.mu.Lock()
	m.edited = false
	m.mu.Unlock()
	m.updateConfigState(cfg, true, string(ActionLoad), false)
	if a.Silent {
		m.ctx.Host.SetStatus("Loaded "+filepath.Base(path), recovery.StatusTimeout)
	}
	return path, nil
}

func (m *ConfigActionManager) save(ctx context.Context, a ConfigAction) (string, error) {
	path := m.WorkspaceFile()
	cfg := m.ctx.State.Config()
	text := clangformat.Stringify(cfg)
	if err := m.write(ctx, path, text); err != nil {
		return path, err
	}

	// Edits made while the file was written stay dirty
	change, clean := m.ctx.State.UpdateIf("config."+string(ActionSave), func(cur state.VisualEditorState) (state.Patch, bool) {
		if !cur.CurrentConfig.Equal(cfg) {
			return state.Patch{}, false
		}
		m.mu.Lock()
		m.edited = false
		m.mu.Unlock()
		return state.Patch{ConfigDirty: state.Ptr(false)}, true
	})
	if !clean {
		m.ctx.Host.SetStatus("Saved "+path+"; newer edits are not saved yet", recovery.StatusTimeout)
		return path, nil
	}

	events.Emit(m.ctx.Bus, PostMessageToWebview, webview.MustMessage(webview.TypeConfigLoaded, webview.ConfigLoadedPayload{
		Config: change.State.CurrentConfig,
		Dirty:  change.State.ConfigDirty,
		Source: string(ActionSave),
	}))
	m.ctx.Host.SetStatus("Saved "+path, recovery.StatusTimeout)
	return path, nil
}

func (m *ConfigActionManager) importFile(ctx context.Context, a ConfigAction) (string, error) {
	path, err := m.resolvePath(ctx, a.Path, host.PickOptions{Title: "Import clang-format configuration"})
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return path, fmt.Errorf("read config: %w", err)
	}
	cfg, err := m.parse(ctx, string(data), path)
	if err != nil {
		return path, err
	}

	m.mu.Lock()
	m.edited = true
	m.mu.Unlock()
	m.updateConfigState(cfg, true, string(ActionImport), false)
	m.ctx.Host.ShowInfo("Imported " + path)
	return path, nil
}

func (m *ConfigActionManager) exportFile(ctx context.Context, a ConfigAction) (string, error) {
	path, err := m.resolvePath(ctx, a.Path, host.PickOptions{
		Title: "Export clang-format configuration",
		Save:  true,
	})
	if err != nil {
		return "", err
	}
	if err := m.write(ctx, path, clangformat.Stringify(m.ctx.State.Config())); err != nil {
		return path, err
	}
	m.ctx.Host.ShowInfo("Exported to " + path)
	return path, nil
}

func (m *ConfigActionManager) openAsText(ctx context.Context, a ConfigAction) (string, error) {
	path := m.WorkspaceFile()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if _, err := m.save(ctx, a); err != nil {
			return path, err
		}
	}
	if err := m.ctx.Host.OpenFile(ctx, path); err != nil {
		return path, fmt.Errorf("open %s: %w", path, err)
	}
	return path, nil
}

func (m *ConfigActionManager) copy() error {
	if err := m.copyText(clangformat.Stringify(m.ctx.State.Config())); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	m.ctx.Host.SetStatus("Configuration copied to the clipboard", recovery.StatusTimeout)
	return nil
}

// resolvePath expands ~ and makes relative paths workspace relative. An
// empty path asks the user.
func (m *ConfigActionManager) resolvePath(ctx context.Context, given string, opts host.PickOptions) (string, error) {
	if given == "" {
		picked, err := m.ctx.Host.PickFile(ctx, opts)
		if err != nil {
			return "", err
		}
		given = picked
	}
	path, err := homedir.Expand(given)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", given, err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.ctx.Workspace, path)
	}
	return path, nil
}

// parse reads a config file: YAML well-formedness, the line format, the
// catalogue types and, when clang-format is installed, clang-format itself.
func (m *ConfigActionManager) parse(ctx context.Context, text, path string) (clangformat.Config, error) {
	fail := func(err error) (clangformat.Config, error) {
		e := recovery.Classify(err, recovery.CategoryConfigParse)
		e.Path = path
		return nil, e
	}

	if err := clangformat.CheckDocument(text); err != nil {
		return fail(err)
	}
	cfg, err := clangformat.Parse(text)
	if err != nil {
		return fail(err)
	}
	if err := clangformat.Validate(cfg, m.ctx.Catalog); err != nil {
		return fail(err)
	}
	if m.ctx.Formatter.Available() {
		if err := m.ctx.Formatter.Validate(ctx, cfg); err != nil {
			return fail(fmt.Errorf("clang-format rejected the style: %w", err))
		}
	}
	return cfg, nil
}

// updateConfigState replaces the configuration, tells the page unless the
// change came from the page, and asks the preview to refresh.
func (m *ConfigActionManager) updateConfigState(cfg clangformat.Config, dirty bool, source string, echo bool) {
	change := m.ctx.State.Update(state.Patch{Config: cfg, ConfigDirty: &dirty}, "config."+source)
	current := change.State.CurrentConfig

	if !echo {
		events.Emit(m.ctx.Bus, PostMessageToWebview, webview.MustMessage(webview.TypeConfigLoaded, webview.ConfigLoadedPayload{
			Config: current,
			Dirty:  dirty,
			Source: source,
		}))
	}
	events.Emit(m.ctx.Bus, ConfigUpdatedForPreview, current)
}

// applyEdit patches one key from the control panel. The page already shows
// the value, so no configLoaded is echoed back.
func (m *ConfigActionManager) applyEdit(p webview.ConfigChangedPayload) {
	if p.Value.IsSet() {
		if err := clangformat.Validate(clangformat.Config{p.Key: p.Value}, m.ctx.Catalog); err != nil {
			log.Printf("[studio] rejected edit of %s: %v", p.Key, err)
			events.Emit(m.ctx.Bus, PostMessageToWebview, webview.MustMessage(webview.TypeError, webview.ErrorPayload{
				Code:    recovery.CodeValidation.String(),
				Message: err.Error(),
			}))
			return
		}
	}

	change := m.ctx.State.Update(state.Patch{
		ConfigEdits: clangformat.Config{p.Key: p.Value},
		ConfigDirty: state.Ptr(true),
	}, "config.edit")
	m.mu.Lock()
	m.edited = true
	m.mu.Unlock()
	events.Emit(m.ctx.Bus, ConfigUpdatedForPreview, change.State.CurrentConfig)
}

// Edited reports whether the page changed options since the last load or save
func (m *ConfigActionManager) Edited() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edited
}

// write saves text to path under a lock file, atomically
func (m *ConfigActionManager) write(ctx context.Context, path, text string) error {
	if err := withFileLock(ctx, path, func() error {
		return atomicWriteFile(path, []byte(text), configFileMode)
	}); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	m.mu.Lock()
	m.lastWritten[path] = text
	m.mu.Unlock()
	return nil
}

func withFileLock(ctx context.Context, path string, fn func() error) error {
	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock within timeout")
	}
	defer func() {
		fileLock.Unlock()
		os.Remove(lockPath)
	}()

	return fn()
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tempFile = nil

	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (m *ConfigActionManager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(m.ctx.Workspace); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", m.ctx.Workspace, err)
	}
	m.watcher = watcher
	m.watchDone = make(chan struct{})
	go m.watch(watcher)
	return nil
}

// watch reloads the workspace file when something else changes it
func (m *ConfigActionManager) watch(watcher *fsnotify.Watcher) {
	defer close(m.watchDone)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !m.isConfigFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				m.scheduleReload(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[studio] config watcher error: %v", err)
		}
	}
}

func (m *ConfigActionManager) isConfigFile(name string) bool {
	base := filepath.Base(name)
	return base == m.ctx.Settings.GetConfigFileName() || base == AltConfigFileName
}

// scheduleReload coalesces the bursts of events a single save produces
func (m *ConfigActionManager) scheduleReload(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reload != nil {
		m.reload.Stop()
	}
	m.reload = time.AfterFunc(reloadDebounce, func() { m.externalChange(path) })
}

func (m *ConfigActionManager) externalChange(path string) {
	if m.life.Err() != nil || path != m.WorkspaceFile() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	m.mu.Lock()
	own := m.lastWritten[path] == string(data)
	edited := m.edited
	m.mu.Unlock()

	if own {
		return
	}
	if edited {
		m.ctx.Host.SetStatus(filepath.Base(path)+" changed on disk; unsaved edits were kept", recovery.StatusTimeout)
		return
	}
	log.Printf("[studio] %s changed on disk, reloading", path)
	_ = m.Run(m.life, ConfigAction{Action: ActionLoad, Source: OriginWatcher, Silent: true})
}

// Dispose implements Manager
func (m *ConfigActionManager) Dispose() {
	for _, s := range m.subs {
		s.Unsubscribe()
	}
	m.subs = nil
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	if m.reload != nil {
		m.reload.Stop()
	}
	m.mu.Unlock()

	if m.watcher != nil {
		m.watcher.Close()
		<-m.watchDone
	}
}
