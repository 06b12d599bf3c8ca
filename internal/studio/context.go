// Package studio implements the visual editor session: the managers that
// keep the control panel, the live preview and the placeholder pane in sync
// with the shared state, and the Coordinator that wires them together.
package studio

import (
	"context"
	"path/filepath"

	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/config"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/registry"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/pkg/events"
)

// Context is handed to every manager at initialisation. It replaces
// package level singletons: there is one of each service per session.
type Context struct {
	Bus       *events.Bus
	State     *state.Manager
	Recovery  *recovery.Manager
	Host      host.Host
	Docs      *DocumentStore
	Formatter *formatter.Service
	Settings  *config.Config
	Catalog   clangformat.Catalog
	// Workspace is the directory holding the .clang-format file
	Workspace string
	// Sample is the source rendered in the preview
	Sample   string
	Messages *MessageHandler
}

// Manager is a session component with a lifecycle
type Manager = registry.Manager[*Context]

// ConfigPath is the workspace configuration file
func (c *Context) ConfigPath() string {
	return filepath.Join(c.Workspace, c.Settings.GetConfigFileName())
}

// SampleFilename is passed to clang-format to select the language
func (c *Context) SampleFilename() string {
	return c.Settings.GetPreviewFilename()
}

// formatSample runs the formatter over the preview sample
func (c *Context) formatSample(ctx context.Context, cfg clangformat.Config) formatter.Result {
	return c.Formatter.FormatAs(ctx, c.Sample, cfg, c.SampleFilename())
}
