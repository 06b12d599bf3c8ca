package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
)

// FileName is the settings file looked up in the working directory, its
// parents and the home directory
const FileName = ".clangfmt-studio.toml"

type Config struct {
	FormatterPath        *string `toml:"formatter_path,omitempty"`
	FormatTimeoutSeconds *int    `toml:"format_timeout_seconds,omitempty"`
	DebounceMS           *int    `toml:"debounce_ms,omitempty"`
	Port                 *int    `toml:"port,omitempty"`
	PreviewSample        *string `toml:"preview_sample,omitempty"`
	PreviewFilename      *string `toml:"preview_filename,omitempty"`
	AutoLoad             *bool   `toml:"auto_load,omitempty"`
	WatchConfig          *bool   `toml:"watch_config,omitempty"`
	CacheSize            *int    `toml:"cache_size,omitempty"`
	ConfigFileName       *string `toml:"config_file_name,omitempty"`
	Debug                *bool   `toml:"debug,omitempty"`

	// Sources lists the files that were merged, farthest first
	Sources []string `toml:"-"`
}

// Load reads settings for the current directory
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return &Config{}, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		home = ""
	}
	return LoadFrom(cwd, home)
}

// LoadFrom merges the settings files found in home and in dir and each of
// its parents. Nearer files override farther ones; home has the lowest
// priority. An empty home skips it.
func LoadFrom(dir, home string) (*Config, error) {
	var paths []string
	for d := filepath.Clean(dir); ; {
		paths = append(paths, filepath.Join(d, FileName))
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if home != "" {
		homeFile := filepath.Join(home, FileName)
		seen := false
		for _, p := range paths {
			if p == homeFile {
				seen = true
				break
			}
		}
		if !seen {
			paths = append(paths, homeFile)
		}
	}

	cfg := &Config{}
	for i := len(paths) - 1; i >= 0; i-- {
		path := paths[i]
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var layer Config
		if _, err := toml.DecodeFile(path, &layer); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.merge(&layer)
		cfg.Sources = append(cfg.Sources, path)
	}
	return cfg, nil
}

// merge copies every field set in other
func (c *Config) merge(other *Config) {
	if other.FormatterPath != nil {
		c.FormatterPath = other.FormatterPath
	}
	if other.FormatTimeoutSeconds != nil {
		c.FormatTimeoutSeconds = other.FormatTimeoutSeconds
	}
	if other.DebounceMS != nil {
		c.DebounceMS = other.DebounceMS
	}
	if other.Port != nil {
		c.Port = other.Port
	}
	if other.PreviewSample != nil {
		c.PreviewSample = other.PreviewSample
	}
	if other.PreviewFilename != nil {
		c.PreviewFilename = other.PreviewFilename
	}
	if other.AutoLoad != nil {
		c.AutoLoad = other.AutoLoad
	}
	if other.WatchConfig != nil {
		c.WatchConfig = other.WatchConfig
	}
	if other.CacheSize != nil {
		c.CacheSize = other.CacheSize
	}
	if other.ConfigFileName != nil {
		c.ConfigFileName = other.ConfigFileName
	}
	if other.Debug != nil {
		c.Debug = other.Debug
	}
}

// Save writes the settings as TOML
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("# clangfmt-studio settings\n"); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(c)
}

// Helper methods to get values with defaults

func (c *Config) GetFormatterPath() string {
	if c == nil || c.FormatterPath == nil || *c.FormatterPath == "" {
		return "clang-format"
	}
	return expand(*c.FormatterPath)
}

func (c *Config) GetFormatTimeout() time.Duration {
	if c == nil || c.FormatTimeoutSeconds == nil || *c.FormatTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(*c.FormatTimeoutSeconds) * time.Second
}

func (c *Config) GetDebounce() time.Duration {
	if c == nil || c.DebounceMS == nil || *c.DebounceMS < 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(*c.DebounceMS) * time.Millisecond
}

func (c *Config) GetPort() int {
	if c == nil || c.Port == nil {
		return 7788
	}
	return *c.Port
}

// GetPreviewSample returns the sample file path, empty for the built-in sample
func (c *Config) GetPreviewSample() string {
	if c == nil || c.PreviewSample == nil {
		return ""
	}
	return expand(*c.PreviewSample)
}

func (c *Config) GetPreviewFilename() string {
	if c == nil || c.PreviewFilename == nil || *c.PreviewFilename == "" {
		if sample := c.GetPreviewSample(); sample != "" {
			return filepath.Base(sample)
		}
		return "preview.cpp"
	}
	return *c.PreviewFilename
}

func (c *Config) GetAutoLoad() bool {
	if c == nil || c.AutoLoad == nil {
		return true
	}
	return *c.AutoLoad
}

func (c *Config) GetWatchConfig() bool {
	if c == nil || c.WatchConfig == nil {
		return true
	}
	return *c.WatchConfig
}

func (c *Config) GetCacheSize() int {
	if c == nil || c.CacheSize == nil || *c.CacheSize <= 0 {
		return 64
	}
	return *c.CacheSize
}

func (c *Config) GetConfigFileName() string {
	if c == nil || c.ConfigFileName == nil || *c.ConfigFileName == "" {
		return ".clang-format"
	}
	return *c.ConfigFileName
}

func (c *Config) GetDebug() bool {
	if c == nil || c.Debug == nil {
		return false
	}
	return *c.Debug
}

// ReadPreviewSample returns the preview source: the configured sample file,
// or the built-in C++ sample.
func (c *Config) ReadPreviewSample() (string, error) {
	path := c.GetPreviewSample()
	if path == "" {
		return clangformat.DefaultSample, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return clangformat.DefaultSample, fmt.Errorf("read preview sample: %w", err)
	}
	return string(data), nil
}

func expand(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

func stringPtr(s string) *string { return &s }
func intPtr(i int) *int          { return &i }
func boolPtr(b bool) *bool       { return &b }

// Override is applied on top of loaded settings, typically from CLI flags.
// Zero fields are ignored.
type Override struct {
	FormatterPath string
	Port          int
	DebounceMS    int
	Debug         bool
}

// Apply copies the set fields of o into c
func (c *Config) Apply(o Override) {
	if o.FormatterPath != "" {
		c.FormatterPath = stringPtr(o.FormatterPath)
	}
	if o.Port != 0 {
		c.Port = intPtr(o.Port)
	}
	if o.DebounceMS != 0 {
		c.DebounceMS = intPtr(o.DebounceMS)
	}
	if o.Debug {
		c.Debug = boolPtr(true)
	}
}

// DisplaySettings renders the effective settings and the files they came from
func (c *Config) DisplaySettings() string {
	var b strings.Builder
	b.WriteString("Settings files (lowest priority first):\n")
	if len(c.Sources) == 0 {
		b.WriteString("  (none, using defaults)\n")
	}
	for _, src := range c.Sources {
		fmt.Fprintf(&b, "  %s\n", src)
	}

	b.WriteString("\nEffective settings:\n")
	rows := []struct {
		key   string
		value interface{}
	}{
		{"formatter_path", c.GetFormatterPath()},
		{"format_timeout_seconds", int(c.GetFormatTimeout() / time.Second)},
		{"debounce_ms", c.GetDebounce().Milliseconds()},
		{"port", c.GetPort()},
		{"preview_sample", c.GetPreviewSample()},
		{"preview_filename", c.GetPreviewFilename()},
		{"auto_load", c.GetAutoLoad()},
		{"watch_config", c.GetWatchConfig()},
		{"cache_size", c.GetCacheSize()},
		{"config_file_name", c.GetConfigFileName()},
		{"debug", c.GetDebug()},
	}
	for _, r := range rows {
		value := fmt.Sprint(r.value)
		if value == "" {
			value = "(built-in)"
		}
		fmt.Fprintf(&b, "  %-24s %s\n", r.key, value)
	}
	return b.String()
}
