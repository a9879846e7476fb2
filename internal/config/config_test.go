package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "download:\n  root_dir: /data/media\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.MaxConcurrency)
	assert.Equal(t, 2*time.Second, cfg.Queue.GetStartupGrace())
	assert.True(t, cfg.Queue.AsyncEvents)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join("/data/media", ".threadfetch", "queue.json"), cfg.Storage.GetPath(cfg.Download.RootDir))
	assert.Equal(t, 256*1024, cfg.Download.GetBufferSize())
	assert.Equal(t, 250*time.Millisecond, cfg.Download.GetProgressInterval())
	assert.Equal(t, 72*time.Hour, cfg.Maintenance.GetTempFileMaxAge())
	assert.Equal(t, "127.0.0.1:8090", cfg.HTTP.BindAddr)
	assert.False(t, cfg.HTTP.AuthEnabled())
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("THREADFETCH_QUEUE_MAX_CONCURRENCY", "8")

	cfg, err := Load(writeConfig(t, `
queue:
  max_concurrency: 5
  startup_grace: 0s
storage:
  backend: sqlite
download:
  root_dir: /data/media
http:
  admin_username: admin
  admin_password: secret
logging:
  level: debug
  format: text
`))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Queue.MaxConcurrency)
	assert.Zero(t, cfg.Queue.GetStartupGrace())
	assert.Equal(t, filepath.Join("/data/media", ".threadfetch", "queue.db"), cfg.Storage.GetPath(cfg.Download.RootDir))
	assert.True(t, cfg.HTTP.AuthEnabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Queue:    QueueConfig{MaxConcurrency: 3, StartupGrace: "2s", InboxSize: 16},
			Storage:  StorageConfig{Backend: BackendJSON},
			Download: DownloadConfig{RootDir: "/data"},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.Queue.MaxConcurrency = 0 }, wantErr: true},
		{name: "too much concurrency", mutate: func(c *Config) { c.Queue.MaxConcurrency = 33 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "bolt" }, wantErr: true},
		{name: "missing root", mutate: func(c *Config) { c.Download.RootDir = "" }, wantErr: true},
		{name: "bad duration", mutate: func(c *Config) { c.Maintenance.CheckpointInterval = "soon" }, wantErr: true},
		{name: "username without password", mutate: func(c *Config) { c.HTTP.AdminUsername = "admin" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
