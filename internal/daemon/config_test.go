package daemon

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.SocketPath)
	assert.NotEmpty(t, cfg.PIDPath)
	assert.Contains(t, cfg.SocketPath, "daemon.sock")
	assert.Contains(t, cfg.PIDPath, "daemon.pid")
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.False(t, cfg.AutoStart)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty socket path", func(c *Config) { c.SocketPath = "" }, "socket path"},
		{"empty pid path", func(c *Config) { c.PIDPath = "" }, "PID path"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"zero grace period", func(c *Config) { c.ShutdownGracePeriod = 0 }, "grace period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigEnsureDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SocketPath:          filepath.Join(dir, "sockets", "daemon.sock"),
		PIDPath:             filepath.Join(dir, "pids", "daemon.pid"),
		Timeout:             time.Second,
		ShutdownGracePeriod: time.Second,
	}

	require.NoError(t, cfg.EnsureDir())
	assert.DirExists(t, filepath.Join(dir, "sockets"))
	assert.DirExists(t, filepath.Join(dir, "pids"))
}
