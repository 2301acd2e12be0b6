package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	v := viper.New()
	require.NoError(t, Load(context.Background(), v))
	c := FromViper(v)

	assert.Equal(t, "round_robin", c.Balancer)
	assert.Equal(t, "none", c.Scheduler)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, "json", c.Codec)
	assert.Equal(t, "info", c.Log.Level)
	assert.False(t, c.Async)
}

func TestPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rxcall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://file.example
async: true
timeout: 5s
scheduler:
  kind: pool
  workers: 8
`), 0o600))
	t.Setenv("RXCALL_BASE_URL", "http://env.example")
	t.Setenv("RXCALL_REGISTRY_ENDPOINTS", "a:2379, b:2379")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, Load(context.Background(), v))
	c := FromViper(v)

	assert.Equal(t, "http://env.example", c.BaseURL)
	assert.True(t, c.Async)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "pool:8", c.SchedulerName())
	assert.Equal(t, []string{"a:2379", "b:2379"}, c.Registry.Endpoints)
}

func TestMissingExplicitFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, Load(context.Background(), v))
}

func TestCheckConfigValidityValid(t *testing.T) {
	v := viper.New()
	applyDefaults(v)
	v.Set("base_url", "http://localhost:8080")

	assert.NoError(t, CheckConfigValidity(v))
}

func TestCheckConfigValidityInvalid(t *testing.T) {
	v := viper.New()
	applyDefaults(v)
	v.Set("service", "users")
	v.Set("registry.kind", "consul")
	v.Set("balancer", "random")
	v.Set("scheduler.kind", "fiber")
	v.Set("codec", "xml")
	v.Set("timeout", "-1s")
	v.Set("rate_limit.rps", 10)
	v.Set("rate_limit.burst", 0)
	v.Set("log.level", "loud")

	err := CheckConfigValidity(v)
	require.Error(t, err)
	for _, want := range []string{
		`registry.kind "consul"`,
		"random",
		"fiber",
		"xml",
		"timeout must not be negative",
		"rate_limit.burst must be greater than 0",
		"log.level",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestEveryOptionHasAComment(t *testing.T) {
	seen := map[string]bool{}
	for _, o := range Options() {
		assert.NotEmpty(t, o.Comment, o.Key)
		assert.False(t, seen[o.Key], "duplicate key %s", o.Key)
		seen[o.Key] = true
	}
}
