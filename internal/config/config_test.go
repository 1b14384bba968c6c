package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 1500, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, int64(2*1024*1024), cfg.Index.MaxFileSize)
	assert.Equal(t, 10, cfg.Search.DefaultK)
	assert.Equal(t, 100, cfg.Search.MaxK)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadProjectOverridesDefaults(t *testing.T) {
	// Given a project config overriding chunking knobs
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	yaml := `
index:
  chunk_size: 800
  chunk_overlap: 100
search:
  default_k: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".shebe.yaml"), []byte(yaml), 0o644))

	// When loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then overridden values apply and untouched fields keep defaults
	assert.Equal(t, 800, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.Equal(t, 5, cfg.Search.DefaultK)
	assert.Equal(t, 100, cfg.Search.MaxK)
}

func TestEnvOverridesProjectConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	yaml := "index:\n  chunk_size: 800\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".shebe.yaml"), []byte(yaml), 0o644))
	t.Setenv("SHEBE_CHUNK_SIZE", "1000")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Index.ChunkSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".shebe.yaml"), []byte("index: [not: a map"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, sherr.ErrCodeInvalidConfig, sherr.GetCode(err))
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk size below minimum", func(c *Config) { c.Index.ChunkSize = 10 }},
		{"chunk size above maximum", func(c *Config) { c.Index.ChunkSize = 1 << 20 }},
		{"overlap equals chunk size", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Index.ChunkOverlap = -1 }},
		{"zero max file size", func(c *Config) { c.Index.MaxFileSize = 0 }},
		{"max_k above cap", func(c *Config) { c.Search.MaxK = MaxMaxK + 1 }},
		{"default_k above max_k", func(c *Config) { c.Search.DefaultK = c.Search.MaxK + 1 }},
		{"zero timeout", func(c *Config) { c.Search.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, sherr.ErrCodeInvalidConfig, sherr.GetCode(err))
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, ".shebe.yaml")

	cfg := New()
	cfg.Index.ChunkSize = 900
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 900, loaded.Index.ChunkSize)
}
