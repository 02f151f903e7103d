package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, Duration(time.Second), cfg.Timeouts.Startup)
	assert.NotEmpty(t, cfg.MemberID, "member id falls back to the hostname")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  address: coord-1:6379
  prefix: "scion:"
namespace:
  isd: 7
  as: 42
  service: ps
member_id: ps-7-42-1
timeouts:
  startup: 2s
  conn: 15s
  lock: 30s
cache:
  path: pcb
  max_age: 90s
debug_addr: ":9100"
log_level: debug
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "coord-1:6379", cfg.Redis.Address)
	assert.Equal(t, "scion:", cfg.Redis.Prefix)
	assert.Equal(t, 7, cfg.Namespace.ISD)
	assert.Equal(t, 42, cfg.Namespace.AS)
	assert.Equal(t, "ps", cfg.Namespace.Service)
	assert.Equal(t, "ps-7-42-1", cfg.MemberID)
	assert.Equal(t, Duration(2*time.Second), cfg.Timeouts.Startup)
	assert.Equal(t, Duration(15*time.Second), cfg.Timeouts.Conn)
	assert.Equal(t, Duration(90*time.Second), cfg.Cache.MaxAge)
	assert.Equal(t, ":9100", cfg.DebugAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yml")
	require.NoError(t, os.WriteFile(path, []byte("timeouts:\n  conn: soon\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
