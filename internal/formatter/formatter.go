// Package formatter runs the clang-format executable as a black box: the
// style goes on the command line, code goes in on stdin and formatted code
// comes back on stdout.
package formatter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/process"
)

// ErrNotFound is reported when the executable cannot be located
var ErrNotFound = errors.New("clang-format not found")

const (
	DefaultBinary         = "clang-format"
	DefaultAssumeFilename = "preview.cpp"
	DefaultCacheSize      = 64
)

// Result of a format call. On failure FormattedCode is the input unchanged.
type Result struct {
	Success       bool   `json:"success"`
	FormattedCode string `json:"formattedCode"`
	Error         string `json:"error,omitempty"`
	Cached        bool   `json:"cached,omitempty"`
}

// Options configures a Service
type Options struct {
	// Path is the executable name or path, DefaultBinary when empty
	Path           string
	Timeout        time.Duration
	AssumeFilename string
	CacheSize      int
}

// Service formats code. It is safe for concurrent use.
type Service struct {
	path   string
	assume string
	runner *process.Runner
	cache  gcache.Cache

	calls  atomic.Uint64
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a formatter service
func New(opts Options) *Service {
	if opts.Path == "" {
		opts.Path = DefaultBinary
	}
	if opts.AssumeFilename == "" {
		opts.AssumeFilename = DefaultAssumeFilename
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	return &Service{
		path:   opts.Path,
		assume: opts.AssumeFilename,
		runner: process.NewRunner(opts.Timeout),
		cache:  gcache.New(opts.CacheSize).LRU().Build(),
	}
}

// Path returns the configured executable
func (s *Service) Path() string {
	return s.path
}

// Runner exposes the underlying process runner for diagnostics
func (s *Service) Runner() *process.Runner {
	return s.runner
}

// Resolve locates the executable
func (s *Service) Resolve() (string, error) {
	resolved, err := exec.LookPath(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %s (%v)", ErrNotFound, s.path, err)
	}
	return resolved, nil
}

// Available reports whether the executable can be found
func (s *Service) Available() bool {
	_, err := s.Resolve()
	return err == nil
}

// Format formats code with cfg. It never returns an error: every failure is
// reported in the Result with the original code as FormattedCode.
func (s *Service) Format(ctx context.Context, code string, cfg clangformat.Config) Result {
	return s.FormatAs(ctx, code, cfg, s.assume)
}

// FormatAs is Format with an explicit --assume-filename, which selects the
// language clang-format parses the input as.
func (s *Service) FormatAs(ctx context.Context, code string, cfg clangformat.Config, filename string) Result {
	s.calls.Add(1)
	style := clangformat.StyleString(cfg)
	if filename == "" {
		filename = s.assume
	}

	key := cacheKey(style, filename, code)
	if v, err := s.cache.Get(key); err == nil {
		s.hits.Add(1)
		res := v.(Result)
		res.Cached = true
		return res
	}
	s.misses.Add(1)

	bin, err := s.Resolve()
	if err != nil {
		return failure(code, err.Error())
	}

	res, err := s.runner.Run(ctx, process.Spec{
		Name:  bin,
		Args:  []string{"-style=" + style, "--assume-filename=" + filename},
		Stdin: code,
	})
	if err != nil {
		return failure(code, err.Error())
	}
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		return failure(code, stderr)
	}
	if res.ExitCode != 0 {
		return failure(code, fmt.Sprintf("clang-format exited with status %d", res.ExitCode))
	}

	out := Result{Success: true, FormattedCode: res.Stdout}
	_ = s.cache.Set(key, out)
	return out
}

// Validate checks that clang-format accepts the style by formatting an
// empty input.
func (s *Service) Validate(ctx context.Context, cfg clangformat.Config) error {
	res := s.Format(ctx, "", cfg)
	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

// Version returns the first line of clang-format --version
func (s *Service) Version(ctx context.Context) (string, error) {
	bin, err := s.Resolve()
	if err != nil {
		return "", err
	}
	res, err := s.runner.Run(ctx, process.Spec{Name: bin, Args: []string{"--version"}})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("clang-format --version exited with status %d", res.ExitCode)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return line, nil
}

// Stats describes cache effectiveness
type Stats struct {
	Calls  uint64 `json:"calls"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Cached int    `json:"cached"`
}

// Stats returns counters
func (s *Service) Stats() Stats {
	return Stats{
		Calls:  s.calls.Load(),
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Cached: s.cache.Len(false),
	}
}

// Purge empties the result cache
func (s *Service) Purge() {
	s.cache.Purge()
}

func failure(code, msg string) Result {
	return Result{Success: false, FormattedCode: code, Error: msg}
}

func cacheKey(style, filename, code string) string {
	h := sha256.New()
	h.Write([]byte(style))
	h.Write([]byte{0})
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return hex.EncodeToString(h.Sum(nil))
}
