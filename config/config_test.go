package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, ":8080", c.Listen)
	assert.Equal(t, 24*time.Hour, c.Cache.TTL)
	assert.Equal(t, 50, c.Optimizer.MaxNodes)
	assert.Equal(t, 0.55, c.Optimizer.SimilarityEdgeMin)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	c, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, Default().Listen, c.Listen)
}

func TestLoadYAMLWithPartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listen: \":9090\"\nredis:\n  addr: localhost:6379\noptimizer:\n  max_nodes: 20\n")
	assert.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, ":9090", c.Listen)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, 20, c.Optimizer.MaxNodes)
	// Untouched fields keep their defaults.
	assert.Equal(t, 24*time.Hour, c.Cache.TTL)
	assert.Equal(t, 120*time.Second, c.Optimizer.ProviderTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPECTYRA_LISTEN", ":7070")
	t.Setenv("SPECTYRA_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("SPECTYRA_LOG_LEVEL", "debug")

	c, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, ":7070", c.Listen)
	assert.Equal(t, "redis.internal:6379", c.Redis.Addr)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
