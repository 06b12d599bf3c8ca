package studio

import (
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/webview"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// Origins identify which panel or surface a request came from
const (
	OriginEditor      = "editor"
	OriginPlaceholder = "placeholder"
	OriginStartup     = "startup"
	OriginWatcher     = "watcher"
	OriginAPI         = "api"
)

// ActionKind names a config file action
type ActionKind string

const (
	ActionLoad       ActionKind = "load"
	ActionSave       ActionKind = "save"
	ActionImport     ActionKind = "import"
	ActionExport     ActionKind = "export"
	ActionReset      ActionKind = "reset"
	ActionOpenAsText ActionKind = "open-as-text"
	ActionCopy       ActionKind = "copy"
)

// ParseAction validates an action name
func ParseAction(s string) (ActionKind, bool) {
	switch k := ActionKind(s); k {
	case ActionLoad, ActionSave, ActionImport, ActionExport, ActionReset, ActionOpenAsText, ActionCopy:
		return k, true
	}
	return "", false
}

// ConfigAction requests a config file action. Path is only used by import
// and export; when empty the user is asked to pick a file.
type ConfigAction struct {
	Action ActionKind
	Path   string
	Source string
	// Silent actions report failures in the status bar only
	Silent bool
}

// ActionResult is emitted when a config action finished
type ActionResult struct {
	Action ActionKind
	Path   string
	Err    error
}

// Highlight marks an option in the preview. An empty Key clears.
type Highlight struct {
	Key    string
	Source string
}

// OpenRequest asks for the preview to be (re)opened
type OpenRequest struct {
	Source string
}

// PreviewInfo describes an opened preview
type PreviewInfo struct {
	URI    host.URI
	Editor host.EditorID
	Column host.ViewColumn
}

// PreviewClosedEvent reports a preview tab the user closed
type PreviewClosedEvent struct {
	URI    host.URI
	ByUser bool
}

// EditorClosedEvent ends the session. Source is the panel the user closed.
type EditorClosedEvent struct {
	Source string
}

// Every event of the visual editor besides state.Changed
var (
	WebviewReady            = events.NewTopic[string]("webview-ready")
	ConfigChanged           = events.NewTopic[webview.ConfigChangedPayload]("config-changed")
	ConfigActionRequested   = events.NewTopic[ConfigAction]("config-action-requested")
	ConfigActionCompleted   = events.NewTopic[ActionResult]("config-action-completed")
	MicroPreviewRequested   = events.NewTopic[webview.MicroPreviewRequest]("micro-preview-requested")
	MacroPreviewRequested   = events.NewTopic[webview.MacroPreviewRequest]("macro-preview-requested")
	OptionHighlighted       = events.NewTopic[Highlight]("option-highlighted")
	OpenPreviewRequested    = events.NewTopic[OpenRequest]("open-preview-requested")
	PreviewOpening          = events.NewTopic[host.URI]("preview-opening")
	PreviewOpened           = events.NewTopic[PreviewInfo]("preview-opened")
	PreviewClosed           = events.NewTopic[PreviewClosedEvent]("preview-closed")
	EditorVisibilityChanged = events.NewTopic[bool]("editor-visibility-changed")
	EditorClosed            = events.NewTopic[EditorClosedEvent]("editor-closed")
	TabsClosed              = events.NewTopic[[]host.URI]("tabs-closed")
	ConfigUpdatedForPreview = events.NewTopic[clangformat.Config]("config-updated-for-preview")
	PostMessageToWebview    = events.NewTopic[webview.Message]("post-message-to-webview")
	ThemeChanged            = events.NewTopic[host.Theme]("theme-changed")
)
