// Package config loads and validates Shebe configuration.
//
// Precedence, lowest to highest: hardcoded defaults, user config
// (~/.config/shebe/config.yaml), project config (.shebe.yaml), and
// SHEBE_* environment variables. The final result is validated before
// it reaches the core; out-of-range values fail with the invalid-config
// code rather than being silently clamped.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

// Documented bounds for the tunable knobs.
const (
	MinChunkSize = 200
	MaxChunkSize = 16384
	MaxMaxK      = 500
)

// Config is the complete Shebe configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Server  ServerConfig  `yaml:"server" json:"server"`
}

// StorageConfig configures the session storage root.
type StorageConfig struct {
	// Root is the directory holding one subdirectory per session.
	Root string `yaml:"root" json:"root"`
}

// IndexConfig configures ingestion and chunking.
type IndexConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the exact character overlap between consecutive chunks.
	// Must satisfy 0 <= overlap < chunk_size.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// MaxFileSize is the largest file (bytes) eligible for indexing.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
	// Workers is the chunking/indexing parallelism (0 = NumCPU).
	Workers int `yaml:"workers" json:"workers"`
	// Exclude lists extra path patterns to skip on top of the defaults.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// DefaultK is the result count when the caller does not pass one.
	DefaultK int `yaml:"default_k" json:"default_k"`
	// MaxK is the hard upper bound on requested result counts.
	MaxK int `yaml:"max_k" json:"max_k"`
	// ContextLines is the number of surrounding lines in a rendered snippet.
	ContextLines int `yaml:"context_lines" json:"context_lines"`
	// Timeout bounds a single query; exceeding it aborts with no results.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ServerConfig configures the transport adapters.
type ServerConfig struct {
	// SocketPath is the unix socket for the daemon process.
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root: defaultStorageRoot(),
		},
		Index: IndexConfig{
			ChunkSize:    1500,
			ChunkOverlap: 200,
			MaxFileSize:  2 * 1024 * 1024,
			Workers:      runtime.NumCPU(),
		},
		Search: SearchConfig{
			DefaultK:     10,
			MaxK:         100,
			ContextLines: 2,
			Timeout:      5 * time.Second,
		},
		Server: ServerConfig{
			SocketPath: defaultSocketPath(),
			LogLevel:   "info",
		},
	}
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shebe", "sessions")
	}
	return filepath.Join(home, ".shebe", "sessions")
}

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shebe", "daemon.sock")
	}
	return filepath.Join(home, ".shebe", "daemon.sock")
}

// UserConfigPath returns the user/global configuration file path,
// honoring XDG_CONFIG_HOME.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shebe", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "shebe", "config.yaml")
	}
	return filepath.Join(home, ".config", "shebe", "config.yaml")
}

// Load builds the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := New()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if path := filepath.Join(dir, ".shebe.yaml"); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges non-zero values from a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sherr.Wrap(sherr.ErrCodeConfigNotFound, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return sherr.Newf(sherr.ErrCodeInvalidConfig, "failed to parse %s: %v", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Storage.Root != "" {
		c.Storage.Root = other.Storage.Root
	}
	if other.Index.ChunkSize != 0 {
		c.Index.ChunkSize = other.Index.ChunkSize
	}
	if other.Index.ChunkOverlap != 0 {
		c.Index.ChunkOverlap = other.Index.ChunkOverlap
	}
	if other.Index.MaxFileSize != 0 {
		c.Index.MaxFileSize = other.Index.MaxFileSize
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if len(other.Index.Exclude) > 0 {
		c.Index.Exclude = append(c.Index.Exclude, other.Index.Exclude...)
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}
	if other.Search.MaxK != 0 {
		c.Search.MaxK = other.Search.MaxK
	}
	if other.Search.ContextLines != 0 {
		c.Search.ContextLines = other.Search.ContextLines
	}
	if other.Search.Timeout != 0 {
		c.Search.Timeout = other.Search.Timeout
	}
	if other.Server.SocketPath != "" {
		c.Server.SocketPath = other.Server.SocketPath
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies SHEBE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHEBE_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("SHEBE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.ChunkSize = n
		}
	}
	if v := os.Getenv("SHEBE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.ChunkOverlap = n
		}
	}
	if v := os.Getenv("SHEBE_MAX_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.MaxK = n
		}
	}
	if v := os.Getenv("SHEBE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("SHEBE_SOCKET_PATH"); v != "" {
		c.Server.SocketPath = v
	}
}

// Validate checks the configuration against the documented ranges.
func (c *Config) Validate() error {
	if c.Index.ChunkSize < MinChunkSize || c.Index.ChunkSize > MaxChunkSize {
		return sherr.Newf(sherr.ErrCodeInvalidConfig,
			"chunk_size must be in [%d, %d], got %d", MinChunkSize, MaxChunkSize, c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return sherr.Newf(sherr.ErrCodeInvalidConfig,
			"chunk_overlap must satisfy 0 <= overlap < chunk_size (%d), got %d", c.Index.ChunkSize, c.Index.ChunkOverlap)
	}
	if c.Index.MaxFileSize <= 0 {
		return sherr.Newf(sherr.ErrCodeInvalidConfig,
			"max_file_size must be positive, got %d", c.Index.MaxFileSize)
	}
	if c.Search.MaxK < 1 || c.Search.MaxK > MaxMaxK {
		return sherr.Newf(sherr.ErrCodeInvalidConfig,
			"max_k must be in [1, %d], got %d", MaxMaxK, c.Search.MaxK)
	}
	if c.Search.DefaultK < 1 || c.Search.DefaultK > c.Search.MaxK {
		return sherr.Newf(sherr.ErrCodeInvalidConfig,
			"default_k must be in [1, max_k=%d], got %d", c.Search.MaxK, c.Search.DefaultK)
	}
	if c.Search.Timeout <= 0 {
		return sherr.Newf(sherr.ErrCodeInvalidConfig,
			"search timeout must be positive, got %s", c.Search.Timeout)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return sherr.Wrap(sherr.ErrCodeInternal, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return sherr.IOFailure("failed to write config file", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
