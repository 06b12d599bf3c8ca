package webhost

import (
	"encoding/json"

	"github.com/standardbeagle/clangfmt-studio/internal/host"
)

// Frame ops sent to the browser
const (
	opPanelCreate  = "panel.create"
	opPanelHTML    = "panel.html"
	opPanelPost    = "panel.post"
	opPanelReveal  = "panel.reveal"
	opPanelDispose = "panel.dispose"
	opDocShow      = "doc.show"
	opDocChanged   = "doc.changed"
	opDocClose     = "doc.close"
	opNotify       = "notify"
	opTheme        = "theme"
	opOpenFile     = "open.file"
	opPick         = "pick"
)

// Frame ops received from the browser
const (
	opPanelMessage = "panel.message"
	opPanelClosed  = "panel.closed"
	opPanelVisible = "panel.visible"
	opTabClosed    = "tab.closed"
	opPickResult   = "pick.result"
	// opTheme is also accepted from the browser
)

// frame is one websocket message in either direction
type frame struct {
	Op       string          `json:"op"`
	ID       string          `json:"id,omitempty"`
	ViewType string          `json:"viewType,omitempty"`
	Title    string          `json:"title,omitempty"`
	Column   host.ViewColumn `json:"column,omitempty"`
	HTML     string          `json:"html,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
	URI      string          `json:"uri,omitempty"`
	Editor   string          `json:"editor,omitempty"`
	Visible  *bool           `json:"visible,omitempty"`
	Level    string          `json:"level,omitempty"`
	Text     string          `json:"text,omitempty"`
	Theme    string          `json:"theme,omitempty"`
	Path     string          `json:"path,omitempty"`
	Save     bool            `json:"save,omitempty"`
}
