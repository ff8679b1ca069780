package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: file\n  redis:\n    addr: cache:6379\n"), 0o600))

	c := New()
	c.SetDefault("store.dir", "./data")
	assert.False(t, c.IsSet("logging"))
	require.NoError(t, c.LoadFile(path))
	assert.True(t, c.IsSet("store.backend"))
	assert.True(t, c.IsSet("store.dir"))
	assert.False(t, c.IsSet("logging"))

	var redis struct {
		Addr string `mapstructure:"addr"`
	}
	require.NoError(t, c.UnmarshalKey("store.redis", &redis))
	assert.Equal(t, "cache:6379", redis.Addr)

	t.Setenv("SCENEKEEP_STORE_BACKEND", "redis")
	c.BindEnvPrefix("SCENEKEEP")
	var settings struct {
		Store struct {
			Backend string `mapstructure:"backend"`
			Dir     string `mapstructure:"dir"`
		} `mapstructure:"store"`
	}
	require.NoError(t, c.Unmarshal(&settings))
	assert.Equal(t, "redis", settings.Store.Backend)
	assert.Equal(t, "./data", settings.Store.Dir)

	assert.Error(t, New().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	var zero Config
	assert.False(t, zero.IsSet("store"))
	assert.NoError(t, zero.Unmarshal(&settings))
}
