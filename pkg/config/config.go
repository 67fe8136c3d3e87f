package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration options for symreach.
type Config struct {
	// Graph building settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Which symbol provider answers queries
	Provider ProviderConfig `koanf:"provider" toml:"provider"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Log settings
	Log LogConfig `koanf:"log" toml:"log"`
}

// AnalysisConfig controls graph building.
type AnalysisConfig struct {
	Concurrency          int      `koanf:"concurrency" toml:"concurrency"`
	QueryTimeoutMS       int      `koanf:"query_timeout_ms" toml:"query_timeout_ms"`
	EnumerationTimeoutMS int      `koanf:"enumeration_timeout_ms" toml:"enumeration_timeout_ms"`
	EnumerationQuery     string   `koanf:"enumeration_query" toml:"enumeration_query"`
	MaxFileSize          int64    `koanf:"max_file_size" toml:"max_file_size"`
	Kinds                []string `koanf:"kinds" toml:"kinds"`
}

// QueryTimeout returns the per-query timeout as a duration.
func (a AnalysisConfig) QueryTimeout() time.Duration {
	return time.Duration(a.QueryTimeoutMS) * time.Millisecond
}

// EnumerationTimeout returns the workspace symbol listing timeout.
func (a AnalysisConfig) EnumerationTimeout() time.Duration {
	return time.Duration(a.EnumerationTimeoutMS) * time.Millisecond
}

// ProviderConfig selects and configures the symbol provider.
type ProviderConfig struct {
	Kind          string   `koanf:"kind" toml:"kind"` // treesitter, lsp
	Command       []string `koanf:"command" toml:"command"`
	LanguageID    string   `koanf:"language_id" toml:"language_id"`
	InitTimeoutMS int      `koanf:"init_timeout_ms" toml:"init_timeout_ms"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns   []string `koanf:"patterns" toml:"patterns"`
	Extensions []string `koanf:"extensions" toml:"extensions"`
	Dirs       []string `koanf:"dirs" toml:"dirs"`
	Gitignore  bool     `koanf:"gitignore" toml:"gitignore"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, markdown, toon, yaml
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level"`
	Pretty bool   `koanf:"pretty" toml:"pretty"`
}

// Provider kinds.
const (
	ProviderTreeSitter = "treesitter"
	ProviderLSP        = "lsp"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Concurrency:          8,
			QueryTimeoutMS:       5000,
			EnumerationTimeoutMS: 120000,
			MaxFileSize:          1 << 20,
		},
		Provider: ProviderConfig{
			Kind:          ProviderTreeSitter,
			InitTimeoutMS: 30000,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*.min.js",
				"*.generated.*",
			},
			Extensions: []string{
				".lock",
				".sum",
			},
			Dirs: []string{
				"vendor",
				"node_modules",
				".git",
				".symreach",
				"dist",
				"build",
				"target",
				"__pycache__",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".symreach/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	var problems []string
	if c.Analysis.Concurrency < 1 {
		problems = append(problems, "analysis.concurrency must be at least 1")
	}
	if c.Analysis.QueryTimeoutMS < 1 {
		problems = append(problems, "analysis.query_timeout_ms must be positive")
	}
	if c.Analysis.EnumerationTimeoutMS < 1 {
		problems = append(problems, "analysis.enumeration_timeout_ms must be positive")
	}
	switch c.Provider.Kind {
	case ProviderTreeSitter:
	case ProviderLSP:
		if len(c.Provider.Command) == 0 {
			problems = append(problems, "provider.command is required for the lsp provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("provider.kind %q is not one of treesitter, lsp", c.Provider.Kind))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// parserFor picks a koanf parser from the file extension, defaulting to TOML.
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	default:
		return toml.Parser()
	}
}

// Load loads configuration from a file, layered over the defaults. The
// file's raw contents are validated against the configuration schema.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if err := validateRaw(k.Raw()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// configNames are searched in order in each search directory.
var configNames = []string{
	"symreach.toml",
	"symreach.yaml",
	"symreach.yml",
	"symreach.json",
	".symreach.toml",
	".symreach.yaml",
	".symreach.yml",
	".symreach.json",
}

// LoadResult is a loaded configuration and the file it came from.
type LoadResult struct {
	Config *Config
	// Source is empty when no file was found and defaults apply.
	Source string
}

type loadOptions struct {
	path string
	dirs []string
}

// LoadOption customizes LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads exactly this file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// WithSearchDirs overrides the directories searched for a config file.
func WithSearchDirs(dirs ...string) LoadOption {
	return func(o *loadOptions) { o.dirs = dirs }
}

// LoadConfig loads an explicit file or the first config found in the search
// directories. With no file the defaults are returned.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := loadOptions{dirs: []string{".", ".symreach"}}
	for _, opt := range opts {
		opt(&o)
	}

	if o.path != "" {
		cfg, err := Load(o.path)
		if err != nil {
			return nil, err
		}
		return &LoadResult{Config: cfg, Source: o.path}, nil
	}

	for _, dir := range o.dirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				return nil, err
			}
			return &LoadResult{Config: cfg, Source: path}, nil
		}
	}

	return &LoadResult{Config: DefaultConfig()}, nil
}

// LoadOrDefault tries to load config from standard locations or returns
// defaults when none is found or it fails to load.
func LoadOrDefault() *Config {
	result, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return result.Config
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	sep := string(filepath.Separator)
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, sep+dir+sep) || strings.HasPrefix(path, dir+sep) {
			return true
		}
	}

	ext := filepath.Ext(path)
	for _, excludeExt := range c.Exclude.Extensions {
		if ext == excludeExt {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}
