// Package config loads fusesearch configuration from defaults, the user's
// config file, the project's config file and FUSESEARCH_* environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// Backend identifiers used as keys of Config.Backends.
const (
	BackendExact    = "exact"
	BackendFullText = "fulltext"
	BackendTermFreq = "termfreq"
	BackendSemantic = "semantic"
)

// Config represents the complete fusesearch configuration.
type Config struct {
	Version    int                      `yaml:"version" toml:"version" json:"version"`
	Paths      PathsConfig              `yaml:"paths" toml:"paths" json:"paths"`
	Search     SearchConfig             `yaml:"search" toml:"search" json:"search"`
	Backends   map[string]BackendConfig `yaml:"backends" toml:"backends" json:"backends"`
	Breaker    BreakerConfig            `yaml:"breaker" toml:"breaker" json:"breaker"`
	Fusion     FusionConfig             `yaml:"fusion" toml:"fusion" json:"fusion"`
	Cache      CacheConfig              `yaml:"cache" toml:"cache" json:"cache"`
	Chunk      ChunkConfig              `yaml:"chunk" toml:"chunk" json:"chunk"`
	Embeddings EmbeddingsConfig         `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Watcher    WatcherConfig            `yaml:"watcher" toml:"watcher" json:"watcher"`
	Logging    LoggingConfig            `yaml:"logging" toml:"logging" json:"logging"`

	// explicit holds the backend fields a decoded file spelled out, so that
	// an explicit zero weight or priority overrides the default.
	explicit map[string]backendFields
}

// backendFields captures which zero-able backend fields a file set.
type backendFields struct {
	Weight   *float64 `yaml:"weight" toml:"weight"`
	Priority *int     `yaml:"priority" toml:"priority"`
}

// PathsConfig configures which paths are excluded from indexing and exact matching.
type PathsConfig struct {
	Exclude []string `yaml:"exclude" toml:"exclude" json:"exclude"`
}

// SearchConfig configures query handling.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit" toml:"default_limit" json:"default_limit"`
	MaxLimit       int `yaml:"max_limit" toml:"max_limit" json:"max_limit"`
	MaxQueryLength int `yaml:"max_query_length" toml:"max_query_length" json:"max_query_length"`

	// JoinOverhead is added to the longest backend timeout to bound the
	// coordinator's wait for all backends.
	JoinOverhead Duration `yaml:"join_overhead" toml:"join_overhead" json:"join_overhead"`

	// Workers caps concurrently running backend calls across all queries.
	Workers int `yaml:"workers" toml:"workers" json:"workers"`
}

// BackendConfig is one row of the backend table.
type BackendConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	Weight   float64  `yaml:"weight" toml:"weight" json:"weight"`
	Timeout  Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	Priority int      `yaml:"priority" toml:"priority" json:"priority"`

	// RatePerSec limits calls into the backend; zero disables limiting.
	RatePerSec float64 `yaml:"rate_per_sec" toml:"rate_per_sec" json:"rate_per_sec"`
	Burst      int     `yaml:"burst" toml:"burst" json:"burst"`
}

// IsEnabled reports whether the backend is enabled. Unset means enabled.
func (b BackendConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// BreakerConfig configures the per-backend circuit breakers.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold" toml:"failure_threshold" json:"failure_threshold"`
	Window           Duration `yaml:"window" toml:"window" json:"window"`
	Cooldown         Duration `yaml:"cooldown" toml:"cooldown" json:"cooldown"`
}

// FusionConfig configures ranking heuristics applied after score fusion.
type FusionConfig struct {
	ContainmentBoost   float64 `yaml:"containment_boost" toml:"containment_boost" json:"containment_boost"`
	PositionBoost      float64 `yaml:"position_boost" toml:"position_boost" json:"position_boost"`
	PositionLines      int     `yaml:"position_lines" toml:"position_lines" json:"position_lines"`
	SizePenalty        float64 `yaml:"size_penalty" toml:"size_penalty" json:"size_penalty"`
	SizeThresholdLines int     `yaml:"size_threshold_lines" toml:"size_threshold_lines" json:"size_threshold_lines"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Enabled  *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	Capacity int   `yaml:"capacity" toml:"capacity" json:"capacity"`
}

// IsEnabled reports whether caching is enabled. Unset means enabled.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ChunkConfig configures fixed-size chunking.
type ChunkConfig struct {
	Lines       int   `yaml:"lines" toml:"lines" json:"lines"`
	MaxFileSize int64 `yaml:"max_file_size" toml:"max_file_size" json:"max_file_size"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	Dimensions int `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	CacheSize  int `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
}

// WatcherConfig configures file watching in serve mode.
type WatcherConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce" json:"debounce"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude: []string{
				"**/node_modules/**",
				"**/.git/**",
				"**/vendor/**",
				"**/.fusesearch/**",
				"**/dist/**",
				"**/build/**",
			},
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxLimit:       100,
			MaxQueryLength: 1000,
			JoinOverhead:   Duration(500 * time.Millisecond),
			Workers:        16,
		},
		Backends: DefaultBackends(),
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Window:           Duration(60 * time.Second),
			Cooldown:         Duration(30 * time.Second),
		},
		Fusion: FusionConfig{
			ContainmentBoost:   1.2,
			PositionBoost:      1.1,
			PositionLines:      3,
			SizePenalty:        0.95,
			SizeThresholdLines: 100,
		},
		Cache: CacheConfig{
			Capacity: 256,
		},
		Chunk: ChunkConfig{
			Lines:       40,
			MaxFileSize: 1 << 20,
		},
		Embeddings: EmbeddingsConfig{
			Dimensions: 256,
			CacheSize:  1000,
		},
		Watcher: WatcherConfig{
			Debounce: Duration(200 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultBackends returns the default backend table.
func DefaultBackends() map[string]BackendConfig {
	return map[string]BackendConfig{
		BackendExact:    {Weight: 1.0, Timeout: Duration(2 * time.Second), Priority: 0},
		BackendFullText: {Weight: 0.9, Timeout: Duration(1 * time.Second), Priority: 1},
		BackendTermFreq: {Weight: 0.9, Timeout: Duration(1 * time.Second), Priority: 2},
		BackendSemantic: {Weight: 0.8, Timeout: Duration(3 * time.Second), Priority: 3},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/fusesearch/config.yaml, or ~/.config/fusesearch/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fusesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "fusesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "fusesearch", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	var parsed Config
	if err := decodeFile(path, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load loads configuration for the project rooted at dir.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/fusesearch/config.yaml)
//  3. Project config (.fusesearch.yaml, .fusesearch.yml or .fusesearch.toml)
//  4. Environment variables (FUSESEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit config file,
// then applies environment overrides and validates.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	var parsed Config
	if err := decodeFile(path, &parsed); err != nil {
		return nil, err
	}
	cfg.mergeWith(&parsed)
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// projectFiles lists project config names in lookup order.
var projectFiles = []string{".fusesearch.yaml", ".fusesearch.yml", ".fusesearch.toml"}

// loadFromDir merges the first project config file found in dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range projectFiles {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := decodeFile(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

// decodeFile parses a YAML or TOML file into out, chosen by extension.
func decodeFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ferrors.New(ferrors.ErrCodeConfigParse, "failed to read config file "+path, err)
	}

	var fields struct {
		Backends map[string]backendFields `yaml:"backends" toml:"backends"`
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err = toml.Unmarshal(data, out); err == nil {
			err = toml.Unmarshal(data, &fields)
		}
	} else {
		if err = yaml.Unmarshal(data, out); err == nil {
			err = yaml.Unmarshal(data, &fields)
		}
	}
	if err != nil {
		return ferrors.New(ferrors.ErrCodeConfigParse, "failed to parse config file "+path, err)
	}
	out.explicit = fields.Backends
	return nil
}

// mergeWith merges non-zero values from other into c. A backend weight or
// priority other's file set explicitly is merged even when zero.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Search.DefaultLimit > 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit > 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.MaxQueryLength > 0 {
		c.Search.MaxQueryLength = other.Search.MaxQueryLength
	}
	if other.Search.JoinOverhead > 0 {
		c.Search.JoinOverhead = other.Search.JoinOverhead
	}
	if other.Search.Workers > 0 {
		c.Search.Workers = other.Search.Workers
	}

	if c.Backends == nil {
		c.Backends = make(map[string]BackendConfig)
	}
	for name, ob := range other.Backends {
		b := c.Backends[name]
		if ob.Enabled != nil {
			enabled := *ob.Enabled
			b.Enabled = &enabled
		}
		set := other.explicit[name]
		if ob.Weight != 0 || set.Weight != nil {
			b.Weight = ob.Weight
		}
		if ob.Timeout > 0 {
			b.Timeout = ob.Timeout
		}
		if ob.Priority != 0 || set.Priority != nil {
			b.Priority = ob.Priority
		}
		if ob.RatePerSec > 0 {
			b.RatePerSec = ob.RatePerSec
		}
		if ob.Burst > 0 {
			b.Burst = ob.Burst
		}
		c.Backends[name] = b
	}

	if other.Breaker.FailureThreshold > 0 {
		c.Breaker.FailureThreshold = other.Breaker.FailureThreshold
	}
	if other.Breaker.Window > 0 {
		c.Breaker.Window = other.Breaker.Window
	}
	if other.Breaker.Cooldown > 0 {
		c.Breaker.Cooldown = other.Breaker.Cooldown
	}

	if other.Fusion.ContainmentBoost != 0 {
		c.Fusion.ContainmentBoost = other.Fusion.ContainmentBoost
	}
	if other.Fusion.PositionBoost != 0 {
		c.Fusion.PositionBoost = other.Fusion.PositionBoost
	}
	if other.Fusion.PositionLines > 0 {
		c.Fusion.PositionLines = other.Fusion.PositionLines
	}
	if other.Fusion.SizePenalty != 0 {
		c.Fusion.SizePenalty = other.Fusion.SizePenalty
	}
	if other.Fusion.SizeThresholdLines > 0 {
		c.Fusion.SizeThresholdLines = other.Fusion.SizeThresholdLines
	}

	if other.Cache.Enabled != nil {
		enabled := *other.Cache.Enabled
		c.Cache.Enabled = &enabled
	}
	if other.Cache.Capacity > 0 {
		c.Cache.Capacity = other.Cache.Capacity
	}

	if other.Chunk.Lines > 0 {
		c.Chunk.Lines = other.Chunk.Lines
	}
	if other.Chunk.MaxFileSize > 0 {
		c.Chunk.MaxFileSize = other.Chunk.MaxFileSize
	}

	if other.Embeddings.Dimensions > 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.CacheSize > 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Watcher.Debounce > 0 {
		c.Watcher.Debounce = other.Watcher.Debounce
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB > 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles > 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies FUSESEARCH_* environment variable overrides.
// Per-backend settings use FUSESEARCH_<BACKEND>_{ENABLED,WEIGHT,TIMEOUT}.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FUSESEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FUSESEARCH_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("FUSESEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.Workers = n
		}
	}
	if v := os.Getenv("FUSESEARCH_CACHE_ENABLED"); v != "" {
		enabled := parseBool(v)
		c.Cache.Enabled = &enabled
	}
	if v := os.Getenv("FUSESEARCH_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.Capacity = n
		}
	}
	if v := os.Getenv("FUSESEARCH_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Breaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("FUSESEARCH_BREAKER_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Breaker.Cooldown = Duration(d)
		}
	}

	for name, b := range c.Backends {
		prefix := "FUSESEARCH_" + strings.ToUpper(name) + "_"
		if v := os.Getenv(prefix + "ENABLED"); v != "" {
			enabled := parseBool(v)
			b.Enabled = &enabled
		}
		if v := os.Getenv(prefix + "WEIGHT"); v != "" {
			if w, err := parseFloat64(v); err == nil && w >= 0 {
				b.Weight = w
			}
		}
		if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				b.Timeout = Duration(d)
			}
		}
		c.Backends[name] = b
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return ferrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Search.DefaultLimit <= 0 {
		return invalid("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return invalid("search.max_limit (%d) must be >= search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.Workers <= 0 {
		return invalid("search.workers must be positive, got %d", c.Search.Workers)
	}

	if len(c.Backends) == 0 {
		return invalid("at least one backend must be configured")
	}
	enabled := 0
	for _, name := range c.BackendNames() {
		b := c.Backends[name]
		if !knownBackends[name] {
			return invalid("unknown backend %q", name)
		}
		if b.Weight < 0 {
			return invalid("backends.%s.weight must be non-negative, got %f", name, b.Weight)
		}
		if b.Timeout <= 0 {
			return invalid("backends.%s.timeout must be positive", name)
		}
		if b.RatePerSec < 0 {
			return invalid("backends.%s.rate_per_sec must be non-negative", name)
		}
		if b.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return invalid("all backends are disabled")
	}

	if c.Breaker.FailureThreshold <= 0 {
		return invalid("breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.Cooldown <= 0 {
		return invalid("breaker.cooldown must be positive")
	}

	for name, f := range map[string]float64{
		"containment_boost": c.Fusion.ContainmentBoost,
		"position_boost":    c.Fusion.PositionBoost,
		"size_penalty":      c.Fusion.SizePenalty,
	} {
		if f <= 0 {
			return invalid("fusion.%s must be positive, got %f", name, f)
		}
	}

	if c.Cache.Capacity <= 0 {
		return invalid("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Chunk.Lines <= 0 {
		return invalid("chunk.lines must be positive, got %d", c.Chunk.Lines)
	}
	if c.Embeddings.Dimensions <= 0 {
		return invalid("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

var knownBackends = map[string]bool{
	BackendExact:    true,
	BackendFullText: true,
	BackendTermFreq: true,
	BackendSemantic: true,
}

// BackendNames returns configured backend names ordered by priority, then name.
func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := c.Backends[names[i]].Priority, c.Backends[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FindProjectRoot walks up from startDir to the nearest directory holding
// .git, a .fusesearch index or a project config file. Without one it
// returns startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	for dir := absDir; ; {
		if dirExists(filepath.Join(dir, ".git")) || dirExists(filepath.Join(dir, ".fusesearch")) {
			return dir, nil
		}
		for _, name := range projectFiles {
			if fileExists(filepath.Join(dir, name)) {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
