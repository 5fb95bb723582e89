package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithLookup(env(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, 10000, cfg.Buffer.Capacity)
	assert.Equal(t, "fifo", cfg.Buffer.Policy)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Log.OutputPaths)
	assert.Empty(t, cfg.Registry.Path)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yarl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
  read_header_timeout: 2s
buffer:
  capacity: 256
  policy: freshness
registry:
  path: /tmp/reports.db
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithLookup(env(map[string]string{
			"YARL_BUFFER_CAPACITY":     "512",
			"YARL_LOG_OUTPUT_PATHS":    "stdout, /tmp/yarl.log",
			"YARL_WORKER_BACKOFF":      "1s",
			"YARL_WORKER_SEED":         "9",
			"YARL_BUFFER_AGENT_CONFIG": "configs/ppo_agent_for_cartpole.yaml",
		})).
		Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, 512, cfg.Buffer.Capacity, "env overrides the file")
	assert.Equal(t, "freshness", cfg.Buffer.Policy)
	assert.Equal(t, "/tmp/reports.db", cfg.Registry.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/tmp/yarl.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, time.Second, cfg.Worker.Backoff)
	assert.Equal(t, int64(9), cfg.Worker.Seed)
	assert.Equal(t, "configs/ppo_agent_for_cartpole.yaml", cfg.Buffer.AgentConfig)
}

func TestLoadCustomPrefix(t *testing.T) {
	cfg, err := NewLoader().
		WithEnvPrefix("RB").
		WithLookup(env(map[string]string{"RB_BUFFER_POLICY": "freshness", "YARL_BUFFER_POLICY": "bogus"})).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "freshness", cfg.Buffer.Policy)
}

func TestLoadBadEnvValue(t *testing.T) {
	_, err := NewLoader().
		WithLookup(env(map[string]string{"YARL_BUFFER_CAPACITY": "lots", "YARL_WORKER_BACKOFF": "soon"})).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YARL_BUFFER_CAPACITY")
	assert.Contains(t, err.Error(), "YARL_WORKER_BACKOFF")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateAggregates(t *testing.T) {
	cfg := Default()
	cfg.Buffer.Capacity = 0
	cfg.Buffer.Policy = "lifo"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.Len(t, multierr.Errors(err), 3)
}
