package internal

import (
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkhmaladze/BufferManagerDB/internal/bufferpool"
	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfigFs(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.Equal(t, "bufmgr", cfg.AppName)
	assert.Equal(t, bufferpool.DefaultCapacity, cfg.BufferPool.Size)
	assert.Equal(t, bufferpool.PolicyClock, cfg.BufferPool.Policy)
	assert.Equal(t, uint64(1), cfg.BufferPool.Seed)
	assert.Equal(t, uint32(storage.DefaultFileCapacity), cfg.Storage.FileCapacity)
	assert.Equal(t, storage.DefaultMaxOpenFiles, cfg.Storage.MaxOpenFiles)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	policies, err := cfg.BenchPolicies()
	require.NoError(t, err)
	assert.Equal(t, []bufferpool.PolicyType{bufferpool.PolicyClock, bufferpool.PolicyRandom}, policies)
	assert.Equal(t, "random", cfg.Bench.Workload)
}

func TestLoadConfig_YAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/bufmgr.yaml", []byte(`
app_name: bench
buffer_pool:
  size: 32
  policy: random
  seed: 7
storage:
  in_memory: true
  file_capacity: 256
log:
  level: debug
`), 0o644))

	cfg, err := LoadConfigFs(fs, "/etc/bufmgr.yaml")
	require.NoError(t, err)

	assert.Equal(t, "bench", cfg.AppName)
	assert.Equal(t, bufferpool.Options{Size: 32, Policy: bufferpool.PolicyRandom, Seed: 7}, cfg.PoolOptions())
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, storage.DiskOptions{FileCapacity: 256, MaxOpenFiles: storage.DefaultMaxOpenFiles}, cfg.DiskOptions())

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BUFMGR_BUFFER_POOL_POLICY", "random")
	t.Setenv("BUFMGR_BUFFER_POOL_SIZE", "16")
	t.Setenv("BUFMGR_BENCH_POLICIES", "random,clock")

	cfg, err := LoadConfigFs(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, bufferpool.PolicyRandom, cfg.BufferPool.Policy)
	assert.Equal(t, 16, cfg.BufferPool.Size)
	assert.Equal(t, []string{"random", "clock"}, cfg.Bench.Policies)
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown policy": "buffer_pool:\n  policy: fifo\n",
		"negative size":  "buffer_pool:\n  size: -1\n",
		"bad log level":  "log:\n  level: loud\n",
		"huge file":      "storage:\n  file_capacity: 1000000\n",
		"bench policy":   "bench:\n  policies: [clock, lru2]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "c.yaml", []byte(body), 0o644))

			_, err := LoadConfigFs(fs, "c.yaml")
			require.Error(t, err)
		})
	}

	_, err := LoadConfigFs(afero.NewMemMapFs(), "missing.yaml")
	require.Error(t, err)
}
