package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/standardbeagle/clangfmt-studio/internal/config"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/host/memhost"
	"github.com/standardbeagle/clangfmt-studio/internal/mcp"
	"github.com/standardbeagle/clangfmt-studio/internal/studio"
	"github.com/standardbeagle/clangfmt-studio/internal/tui"
	"github.com/standardbeagle/clangfmt-studio/internal/webhost"
)

var (
	// Version is set at build time
	Version = "dev"

	workDir       string
	port          int
	formatterPath string
	debounceMS    int
	headless      bool
	mcpMode       bool
	tuiMode       bool
	debugMode     bool
	showVersion   bool
	showSettings  bool
)

const (
	listenHost      = "127.0.0.1"
	shutdownTimeout = 5 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "clangfmt-studio",
	Short: "A visual editor for .clang-format files with a live formatting preview",
	Long: `clangfmt-studio edits the .clang-format file of a workspace in a browser
control panel. Every change is applied to a sample source file and shown in a
formatted preview next to the panel.

Basic Usage:
  clangfmt-studio                    # Serve the editor for the current directory
  clangfmt-studio -d ../project      # Edit ../project/.clang-format
  clangfmt-studio --tui              # Also show a terminal dashboard
  clangfmt-studio -p 9000            # Serve on port 9000 (default: 7788)

Agent Integration:
  clangfmt-studio --mcp              # Serve MCP tools over stdio
  clangfmt-studio --mcp --headless   # MCP tools without the browser host

Settings are read from .clangfmt-studio.toml in the workspace, its parents and
the home directory. Flags override them.`,
	Args: cobra.NoArgs,
	RunE: runApp,
}

func init() {
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")
	rootCmd.Flags().BoolVar(&showSettings, "settings", false, "Show current settings with their source files")

	rootCmd.Flags().StringVarP(&workDir, "dir", "d", ".", "Workspace directory holding .clang-format")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Browser host port (default from settings, 7788)")
	rootCmd.Flags().StringVar(&formatterPath, "formatter", "", "clang-format executable")
	rootCmd.Flags().IntVar(&debounceMS, "debounce", 0, "Preview close/reopen debounce in milliseconds")

	rootCmd.Flags().BoolVar(&headless, "headless", false, "Run without the browser host")
	rootCmd.Flags().BoolVar(&mcpMode, "mcp", false, "Serve MCP tools over stdio")
	rootCmd.Flags().BoolVar(&tuiMode, "tui", false, "Show the terminal dashboard")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.Version = Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("clangfmt-studio version %s\n", Version)
		return nil
	}

	dir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", dir)
	}

	settings, err := loadSettings(dir, config.Override{
		FormatterPath: formatterPath,
		Port:          port,
		DebounceMS:    debounceMS,
		Debug:         debugMode,
	})
	if err != nil {
		return err
	}
	if showSettings {
		fmt.Print(settings.DisplaySettings())
		return nil
	}
	if settings.GetDebug() {
		studio.SetDebugEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(sessionOptions{
		Dir:      dir,
		Settings: settings,
		Headless: headless,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if mcpMode {
		return runMCP(sess)
	}
	return runInteractive(ctx, sess)
}

// loadSettings reads the settings files for dir and applies flag overrides
func loadSettings(dir string, o config.Override) (*config.Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		home = ""
	}
	settings, err := config.LoadFrom(dir, home)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings.Apply(o)
	return settings, nil
}

type sessionOptions struct {
	Dir      string
	Settings *config.Config
	Headless bool
}

// session is a coordinator bound to its host
type session struct {
	coord *studio.Coordinator
	web   *webhost.Host
	url   string
}

func openSession(opts sessionOptions) (*session, error) {
	s := &session{}
	var h host.Host
	if opts.Headless {
		h = memhost.New()
	} else {
		s.web = webhost.New()
		url, err := s.web.Start(listenHost, opts.Settings.GetPort())
		if err != nil {
			return nil, fmt.Errorf("start browser host: %w", err)
		}
		s.url = url
		h = s.web
	}

	coord, err := studio.New(studio.Options{
		Host:      h,
		Settings:  opts.Settings,
		Workspace: opts.Dir,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.coord = coord
	return s, nil
}

// Close disposes the session and stops the browser host
func (s *session) Close() {
	if s.coord != nil {
		s.coord.Dispose()
	}
	if s.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.web.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down browser host: %v", err)
		}
	}
}

func runMCP(sess *session) error {
	if isTerminal() {
		fmt.Fprintln(os.Stderr, "Serving MCP tools over stdio. Configure your MCP client to launch:")
		fmt.Fprintf(os.Stderr, "  clangfmt-studio --mcp -d %s\n", workDir)
	}
	if sess.url != "" {
		log.Printf("Control panel: %s", sess.url)
	}
	return mcp.NewServer(sess.coord, nil, Version).ServeStdio()
}

func runInteractive(ctx context.Context, sess *session) error {
	if err := sess.coord.ShowEditor(ctx); err != nil {
		log.Printf("Error showing editor: %v", err)
	}

	if tuiMode {
		if !isTerminal() {
			return fmt.Errorf("--tui needs a terminal")
		}
		if sess.url != "" {
			fmt.Printf("Control panel: %s\n", sess.url)
		}
		// Log lines would tear the dashboard
		log.SetOutput(io.Discard)
		return tui.Run(ctx, sess.coord)
	}

	if sess.url != "" {
		fmt.Printf("Control panel: %s\n", sess.url)
	} else {
		fmt.Println("Running headless; press Ctrl+C to stop")
	}
	<-ctx.Done()
	return nil
}

// isTerminal checks if stdin and stdout are connected to a terminal. This is
// false when an MCP client launches the process.
func isTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}
