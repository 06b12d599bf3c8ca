package studio

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/standardbeagle/clangfmt-studio/internal/webview"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// MessageHandler is the boundary between panel pages and the bus. Every
// inbound message is validated here; malformed ones are dropped.
type MessageHandler struct {
	bus     atomic.Pointer[events.Bus]
	handled atomic.Uint64
	dropped atomic.Uint64
}

// NewMessageHandler creates an uninitialised handler
func NewMessageHandler() *MessageHandler {
	return &MessageHandler{}
}

// Initialize implements Manager
func (h *MessageHandler) Initialize(ctx context.Context, shared *Context) error {
	h.bus.Store(shared.Bus)
	shared.Messages = h
	return nil
}

// Dispose implements Manager
func (h *MessageHandler) Dispose() {
	h.bus.Store(nil)
}

// Counts returns how many messages were dispatched and dropped
func (h *MessageHandler) Counts() (handled, dropped uint64) {
	return h.handled.Load(), h.dropped.Load()
}

// Handle decodes one message from the page in origin and emits the matching
// event. It reports whether the message was dispatched.
func (h *MessageHandler) Handle(raw []byte, origin string) bool {
	bus := h.bus.Load()
	if bus == nil {
		debugLog("message from %s after dispose ignored", origin)
		return false
	}

	msg, err := webview.Decode(raw)
	if err != nil {
		return h.drop(origin, "", err)
	}
	debugLog("message %s from %s", msg.Type, origin)

	switch msg.Type {
	case webview.TypeWebviewReady, webview.TypeInitialize:
		events.Emit(bus, WebviewReady, origin)

	case webview.TypeConfigChanged:
		var p webview.ConfigChangedPayload
		if err := msg.DecodePayload(&p); err != nil {
			return h.drop(origin, msg.Type, err)
		}
		if p.Key == "" {
			return h.drop(origin, msg.Type, errMissingKey)
		}
		events.Emit(bus, ConfigChanged, p)

	case webview.TypeLoadWorkspaceConfig:
		events.Emit(bus, ConfigActionRequested, ConfigAction{Action: ActionLoad, Source: origin})
	case webview.TypeSaveConfig:
		events.Emit(bus, ConfigActionRequested, ConfigAction{Action: ActionSave, Source: origin})
	case webview.TypeResetConfig:
		events.Emit(bus, ConfigActionRequested, ConfigAction{Action: ActionReset, Source: origin})
	case webview.TypeOpenClangFormatFile:
		events.Emit(bus, ConfigActionRequested, ConfigAction{Action: ActionOpenAsText, Source: origin})
	case webview.TypeCopyConfig:
		events.Emit(bus, ConfigActionRequested, ConfigAction{Action: ActionCopy, Source: origin})
	case webview.TypeImportConfig, webview.TypeExportConfig:
		var p webview.FilePayload
		if err := msg.DecodePayload(&p); err != nil {
			return h.drop(origin, msg.Type, err)
		}
		action := ActionImport
		if msg.Type == webview.TypeExportConfig {
			action = ActionExport
		}
		events.Emit(bus, ConfigActionRequested, ConfigAction{Action: action, Path: p.Path, Source: origin})

	case webview.TypeGetMicroPreview:
		var p webview.MicroPreviewRequest
		if err := msg.DecodePayload(&p); err != nil {
			return h.drop(origin, msg.Type, err)
		}
		if p.Key == "" {
			return h.drop(origin, msg.Type, errMissingKey)
		}
		events.Emit(bus, MicroPreviewRequested, p)

	case webview.TypeGetMacroPreview:
		var p webview.MacroPreviewRequest
		if err := msg.DecodePayload(&p); err != nil {
			return h.drop(origin, msg.Type, err)
		}
		events.Emit(bus, MacroPreviewRequested, p)

	case webview.TypeConfigOptionHover, webview.TypeConfigOptionFocus:
		var p webview.OptionPayload
		if err := msg.DecodePayload(&p); err != nil {
			return h.drop(origin, msg.Type, err)
		}
		source := "hover"
		if msg.Type == webview.TypeConfigOptionFocus {
			source = "focus"
		}
		events.Emit(bus, OptionHighlighted, Highlight{Key: p.Key, Source: source})

	case webview.TypeClearHighlights:
		events.Emit(bus, OptionHighlighted, Highlight{Source: "clear"})

	case webview.TypeReopenPreview:
		events.Emit(bus, OpenPreviewRequested, OpenRequest{Source: origin})

	default:
		return h.drop(origin, msg.Type, errUnknownType)
	}

	h.handled.Add(1)
	return true
}

func (h *MessageHandler) drop(origin string, t webview.Type, err error) bool {
	h.dropped.Add(1)
	if t == "" {
		log.Printf("[studio] warning: dropped message from %s: %v", origin, err)
	} else {
		log.Printf("[studio] warning: dropped %s message from %s: %v", t, origin, err)
	}
	return false
}
