package mcp

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/studio"
)

// Tool names
const (
	ToolState         = "studio_state"
	ToolShowEditor    = "studio_show_editor"
	ToolListOptions   = "studio_list_options"
	ToolSetOption     = "studio_set_option"
	ToolConfigAction  = "studio_config_action"
	ToolOpenPreview   = "studio_open_preview"
	ToolClosePreview  = "studio_close_preview"
	ToolPreviewText   = "studio_preview_text"
	ToolFormatSample  = "studio_format_sample"
	ToolRecentErrors  = "studio_recent_errors"
	ToolFormatterInfo = "studio_formatter_info"
)

const defaultErrorLimit = 10

var configActions = []string{
	string(studio.ActionLoad),
	string(studio.ActionSave),
	string(studio.ActionImport),
	string(studio.ActionExport),
	string(studio.ActionReset),
	string(studio.ActionOpenAsText),
	string(studio.ActionCopy),
}

type tool struct {
	def     mcplib.Tool
	handler func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error)
}

func (s *Server) tools() []tool {
	return []tool{
		{
			def: mcplib.NewTool(ToolState,
				mcplib.WithDescription(`Show the visual editor session state: whether the control panel is open and visible, the preview mode (closed, open, hidden, transitioning), the current clang-format options, whether they differ from the saved file, and the last handled error.`),
			),
			handler: s.handleState,
		},
		{
			def: mcplib.NewTool(ToolShowEditor,
				mcplib.WithDescription(`Open the clang-format control panel and its live preview, or bring an open panel to the front. The workspace .clang-format file is loaded the first time.`),
			),
			handler: s.handleShowEditor,
		},
		{
			def: mcplib.NewTool(ToolListOptions,
				mcplib.WithDescription(`List the clang-format options offered by the control panel with their type, allowed values and current setting.`),
				mcplib.WithString("category",
					mcplib.Description("Only list options in this category, for example Indentation or Braces"),
				),
			),
			handler: s.handleListOptions,
		},
		{
			def: mcplib.NewTool(ToolSetOption,
				mcplib.WithDescription(`Set one clang-format option in the current configuration. The value is written the way it appears in a .clang-format file, for example 4, true, Google or [a, b]. An empty value removes the option so it inherits from BasedOnStyle. The preview refreshes; the file is not saved.`),
				mcplib.WithString("key",
					mcplib.Required(),
					mcplib.Description("Option name, for example IndentWidth"),
				),
				mcplib.WithString("value",
					mcplib.Description("New value; omit or leave empty to remove the option"),
				),
			),
			handler: s.handleSetOption,
		},
		{
			def: mcplib.NewTool(ToolConfigAction,
				mcplib.WithDescription(`Run a configuration file action. load reads the workspace .clang-format, save writes it, import and export read or write the given path, reset restores the defaults, open-as-text opens the workspace file, copy puts the configuration on the clipboard.`),
				mcplib.WithString("action",
					mcplib.Required(),
					mcplib.Enum(configActions...),
					mcplib.Description("The action to run"),
				),
				mcplib.WithString("path",
					mcplib.Description("File for import and export"),
				),
			),
			handler: s.handleConfigAction,
		},
		{
			def: mcplib.NewTool(ToolOpenPreview,
				mcplib.WithDescription(`Open the formatted preview document, or reuse the open one.`),
			),
			handler: s.handleOpenPreview,
		},
		{
			def: mcplib.NewTool(ToolClosePreview,
				mcplib.WithDescription(`Close the formatted preview document.`),
			),
			handler: s.handleClosePreview,
		},
		{
			def: mcplib.NewTool(ToolPreviewText,
				mcplib.WithDescription(`Return the text of the preview document: a comment summary of the active options followed by the sample formatted with them.`),
			),
			handler: s.handlePreviewText,
		},
		{
			def: mcplib.NewTool(ToolFormatSample,
				mcplib.WithDescription(`Format the preview sample with the current options and report the result, the -style argument used and how much the formatting changed the sample.`),
			),
			handler: s.handleFormatSample,
		},
		{
			def: mcplib.NewTool(ToolRecentErrors,
				mcplib.WithDescription(`List recently handled errors, newest first, with their category and operation.`),
				mcplib.WithNumber("limit",
					mcplib.Description("Maximum number of errors to return (default 10)"),
				),
			),
			handler: s.handleRecentErrors,
		},
		{
			def: mcplib.NewTool(ToolFormatterInfo,
				mcplib.WithDescription(`Report the clang-format version in use and the formatter cache counters.`),
			),
			handler: s.handleFormatterInfo,
		},
	}
}

func (s *Server) registerTools() {
	for _, t := range s.tools() {
		handler := t.handler
		name := t.def.Name
		s.srv.AddTool(t.def, func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			if !studio.IsDebugEnabled() {
				return handler(ctx, request)
			}
			// Traces go to the log writer; stdout carries the protocol
			start := time.Now()
			res, err := handler(ctx, request)
			failed := err != nil || (res != nil && res.IsError)
			log.Printf("[MCP] tool call %s took %v (failed=%v)", name, time.Since(start).Round(time.Microsecond), failed)
			return res, err
		})
	}
}

func (s *Server) handleState(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	st := s.studio.State()
	return jsonResult(struct {
		state.VisualEditorState
		PreviewURI string `json:"previewUri,omitempty"`
		Style      string `json:"style"`
	}{
		VisualEditorState: st,
		PreviewURI:        st.PreviewURI.String(),
		Style:             clangformat.StyleString(st.CurrentConfig),
	})
}

func (s *Server) handleShowEditor(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if err := s.studio.ShowEditor(ctx); err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Failed to show editor: %v", err)), nil
	}
	return textResult("Control panel and preview are open"), nil
}

type optionInfo struct {
	clangformat.Option
	Current *clangformat.Value `json:"current,omitempty"`
}

func (s *Server) handleListOptions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	category := request.GetString("category", "")
	cfg := s.studio.State().CurrentConfig

	options := []optionInfo{}
	for _, opt := range s.catalog.Options() {
		if category != "" && !strings.EqualFold(opt.Category, category) {
			continue
		}
		info := optionInfo{Option: opt}
		if v, ok := cfg[opt.Key]; ok {
			info.Current = &v
		}
		options = append(options, info)
	}
	return jsonResult(options)
}

func (s *Server) handleSetOption(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return mcplib.NewToolResultError("key must not be empty"), nil
	}

	value := clangformat.ParseValue(request.GetString("value", ""))
	if err := s.studio.SetOption(ctx, key, value); err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Failed to set %s: %v", key, err)), nil
	}
	if !value.IsSet() {
		return textResult(fmt.Sprintf("Removed %s; it now inherits from the base style", key)), nil
	}
	return textResult(fmt.Sprintf("Set %s: %s", key, clangformat.FormatValue(value))), nil
}

func (s *Server) handleConfigAction(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	valid := false
	for _, a := range configActions {
		if a == action {
			valid = true
			break
		}
	}
	if !valid {
		return mcplib.NewToolResultError(fmt.Sprintf("unknown action %q, expected one of %s", action, strings.Join(configActions, ", "))), nil
	}

	a := studio.ConfigAction{
		Action: studio.ActionKind(action),
		Path:   request.GetString("path", ""),
		Source: studio.OriginAPI,
	}
	if err := s.studio.RunConfigAction(ctx, a); err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Config action %s failed: %v", action, err)), nil
	}
	return textResult(fmt.Sprintf("Config action %s completed", action)), nil
}

func (s *Server) handleOpenPreview(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := s.studio.OpenPreview(ctx)
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Failed to open preview: %v", err)), nil
	}
	return textResult(fmt.Sprintf("Preview open in editor %s", id)), nil
}

func (s *Server) handleClosePreview(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if err := s.studio.ClosePreview(ctx); err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Failed to close preview: %v", err)), nil
	}
	return textResult("Preview closed"), nil
}

func (s *Server) handlePreviewText(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text, ok := s.studio.PreviewText()
	if !ok {
		return mcplib.NewToolResultError("No preview is open; call " + ToolOpenPreview + " first"), nil
	}
	return textResult(text), nil
}

func (s *Server) handleFormatSample(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	res, changes := s.studio.FormatSample(ctx)
	return jsonResult(struct {
		formatter.Result
		Style   string            `json:"style"`
		Changes formatter.Changes `json:"changes"`
	}{
		Result:  res,
		Style:   clangformat.StyleString(s.studio.State().CurrentConfig),
		Changes: changes,
	})
}

type errorInfo struct {
	Code      string `json:"code"`
	Category  string `json:"category"`
	Operation string `json:"operation"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleRecentErrors(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", defaultErrorLimit)
	if limit <= 0 {
		limit = defaultErrorLimit
	}

	out := []errorInfo{}
	for _, e := range s.studio.RecentErrors(limit) {
		msg := e.Operation
		if e.Underlying != nil {
			msg = e.Underlying.Error()
		}
		out = append(out, errorInfo{
			Code:      e.Code.String(),
			Category:  string(e.Category),
			Operation: e.Operation,
			Path:      e.Path,
			Message:   msg,
			Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return jsonResult(out)
}

func (s *Server) handleFormatterInfo(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	info := struct {
		Version string          `json:"version,omitempty"`
		Error   string          `json:"error,omitempty"`
		Cache   formatter.Stats `json:"cache"`
	}{
		Cache: s.studio.FormatterStats(),
	}
	version, err := s.studio.FormatterVersion(ctx)
	if err != nil {
		info.Error = err.Error()
	} else {
		info.Version = version
	}
	return jsonResult(info)
}
