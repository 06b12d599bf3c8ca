// Package webview defines the JSON messages exchanged between the extension
// side and the pages rendered in panels. Every message is an envelope of the
// form {"type": ..., "payload": ...}.
package webview

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
)

// Type is the message discriminator
type Type string

// Page to extension
const (
	TypeWebviewReady        Type = "webviewReady"
	TypeConfigChanged       Type = "configChanged"
	TypeLoadWorkspaceConfig Type = "loadWorkspaceConfig"
	TypeSaveConfig          Type = "saveConfig"
	TypeImportConfig        Type = "importConfig"
	TypeExportConfig        Type = "exportConfig"
	TypeResetConfig         Type = "resetConfig"
	TypeOpenClangFormatFile Type = "openClangFormatFile"
	TypeCopyConfig          Type = "copyConfig"
	TypeGetMicroPreview     Type = "getMicroPreview"
	TypeGetMacroPreview     Type = "getMacroPreview"
	TypeConfigOptionHover   Type = "configOptionHover"
	TypeConfigOptionFocus   Type = "configOptionFocus"
	TypeClearHighlights     Type = "clearHighlights"
	TypeReopenPreview       Type = "reopenPreview"
)

// Extension to page. Initialize is also accepted from the page as a
// readiness signal from older page scripts.
const (
	TypeInitialize         Type = "initialize"
	TypeConfigLoaded       Type = "configLoaded"
	TypeUpdateMicroPreview Type = "updateMicroPreview"
	TypeMacroPreviewUpdate Type = "macroPreviewUpdate"
	TypeThemeChanged       Type = "themeChanged"
	TypeHighlightOption    Type = "highlightOption"
	TypeError              Type = "error"
)

// ErrMissingType is returned by Decode for envelopes without a type
var ErrMissingType = errors.New("message has no type")

// Message is the envelope
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope. A nil payload is omitted.
func NewMessage(t Type, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = data
	return msg, nil
}

// MustMessage is NewMessage for payloads that always encode
func MustMessage(t Type, payload any) Message {
	msg, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode parses an envelope. It fails on invalid JSON and on a missing type;
// the payload is left raw for DecodePayload.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}

// DecodePayload decodes the payload into v. An absent payload leaves v untouched.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Type, err)
	}
	return nil
}

// InitializePayload is sent in answer to webviewReady
type InitializePayload struct {
	Options    []clangformat.Option `json:"options"`
	Config     clangformat.Config   `json:"config"`
	Dirty      bool                 `json:"dirty"`
	Theme      string               `json:"theme"`
	ConfigPath string               `json:"configPath,omitempty"`
}

// ConfigChangedPayload carries a single option edit. An unset value or the
// "inherit" sentinel removes the key.
type ConfigChangedPayload struct {
	Key   string            `json:"key"`
	Value clangformat.Value `json:"value"`
}

// ConfigLoadedPayload carries a replaced configuration
type ConfigLoadedPayload struct {
	Config clangformat.Config `json:"config"`
	Dirty  bool               `json:"dirty"`
	Source string             `json:"source,omitempty"`
}

// FilePayload optionally names the file for import and export
type FilePayload struct {
	Path string `json:"path,omitempty"`
}

// MicroPreviewRequest asks for the snippet of one option rendered with value
type MicroPreviewRequest struct {
	Key   string            `json:"key"`
	Value clangformat.Value `json:"value"`
}

// MicroPreviewUpdate answers MicroPreviewRequest
type MicroPreviewUpdate struct {
	Key   string `json:"key"`
	Code  string `json:"code"`
	Error string `json:"error,omitempty"`
}

// MacroPreviewRequest asks for the full sample formatted with the current
// configuration, or with Config when given.
type MacroPreviewRequest struct {
	Config clangformat.Config `json:"config,omitempty"`
}

// MacroPreviewUpdate answers MacroPreviewRequest. Inserted and Deleted count
// characters changed relative to the unformatted sample.
type MacroPreviewUpdate struct {
	Code         string `json:"code"`
	Inserted     int    `json:"inserted"`
	Deleted      int    `json:"deleted"`
	ChangedLines int    `json:"changedLines"`
	Error        string `json:"error,omitempty"`
}

// OptionPayload names an option for hover and focus messages
type OptionPayload struct {
	Key string `json:"key"`
}

// HighlightPayload tells the page which option to highlight. An empty key
// clears highlights.
type HighlightPayload struct {
	Key    string `json:"key"`
	Source string `json:"source,omitempty"`
}

// ThemePayload carries the host theme
type ThemePayload struct {
	Theme string `json:"theme"`
}

// ErrorPayload reports a failure to the page
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
