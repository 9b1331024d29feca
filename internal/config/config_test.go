package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transhub.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[worker]
batch_size = 8
max_attempts = 5

[ratelimit]
refill_per_second = 2.5
capacity = 4

[engine]
name = "http"
base_url = "http://localhost:9000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Worker.BatchSize)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	// untouched section keeps its default
	assert.Equal(t, time.Second, cfg.Worker.InitialBackoff)
	assert.Equal(t, 2.5, cfg.RateLimit.RefillPerSecond)
	assert.Equal(t, "http", cfg.Engine.Name)
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not toml ["), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
