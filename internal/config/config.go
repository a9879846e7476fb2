package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Queue       QueueConfig       `mapstructure:"queue"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Download    DownloadConfig    `mapstructure:"download"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// QueueConfig contains download queue settings
type QueueConfig struct {
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	StartupGrace   string `mapstructure:"startup_grace"`
	InboxSize      int    `mapstructure:"inbox_size"`
	AsyncEvents    bool   `mapstructure:"async_events"`
}

// StorageConfig selects where the queue is persisted
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// DownloadConfig contains transfer and local file settings
type DownloadConfig struct {
	RootDir               string `mapstructure:"root_dir"`
	TempDir               string `mapstructure:"temp_dir"`
	BufferSizeKB          int    `mapstructure:"buffer_size_kb"`
	ProgressInterval      string `mapstructure:"progress_interval"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	UserAgent             string `mapstructure:"user_agent"`
}

// MaintenanceConfig contains periodic housekeeping settings
type MaintenanceConfig struct {
	CleanupInterval    string `mapstructure:"cleanup_interval"`
	TempFileMaxAge     string `mapstructure:"temp_file_max_age"`
	CheckpointInterval string `mapstructure:"checkpoint_interval"`
}

// HTTPConfig contains control API server configuration
type HTTPConfig struct {
	BindAddr      string `mapstructure:"bind_addr"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	ReadTimeout   string `mapstructure:"read_timeout"`
	WriteTimeout  string `mapstructure:"write_timeout"`
	IdleTimeout   string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Storage backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Load loads configuration from the specified file path. Every key can be
// overridden from the environment, e.g. THREADFETCH_QUEUE_MAX_CONCURRENCY.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("THREADFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.max_concurrency", 3)
	v.SetDefault("queue.startup_grace", "2s")
	v.SetDefault("queue.inbox_size", 1024)
	v.SetDefault("queue.async_events", true)
	v.SetDefault("storage.backend", BackendJSON)
	v.SetDefault("storage.path", "")
	v.SetDefault("download.root_dir", "/var/lib/threadfetch/media")
	v.SetDefault("download.temp_dir", "")
	v.SetDefault("download.buffer_size_kb", 256)
	v.SetDefault("download.progress_interval", "250ms")
	v.SetDefault("download.response_header_timeout", "30s")
	v.SetDefault("download.user_agent", "threadfetch/0.1")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "72h")
	v.SetDefault("maintenance.checkpoint_interval", "5m")
	v.SetDefault("http.bind_addr", "127.0.0.1:8090")
	v.SetDefault("http.admin_username", "")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "threadfetch")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrency < 1 || c.Queue.MaxConcurrency > 32 {
		return fmt.Errorf("queue.max_concurrency must be between 1 and 32")
	}
	if c.Queue.InboxSize < 1 {
		return fmt.Errorf("queue.inbox_size must be positive")
	}

	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend)
	}

	if c.Download.RootDir == "" {
		return fmt.Errorf("download.root_dir is required")
	}
	if c.Download.BufferSizeKB < 0 {
		return fmt.Errorf("download.buffer_size_kb must not be negative")
	}

	durations := map[string]string{
		"queue.startup_grace":              c.Queue.StartupGrace,
		"download.progress_interval":       c.Download.ProgressInterval,
		"download.response_header_timeout": c.Download.ResponseHeaderTimeout,
		"maintenance.cleanup_interval":     c.Maintenance.CleanupInterval,
		"maintenance.temp_file_max_age":    c.Maintenance.TempFileMaxAge,
		"maintenance.checkpoint_interval":  c.Maintenance.CheckpointInterval,
		"http.read_timeout":                c.HTTP.ReadTimeout,
		"http.write_timeout":               c.HTTP.WriteTimeout,
		"http.idle_timeout":                c.HTTP.IdleTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if (c.HTTP.AdminUsername == "") != (c.HTTP.AdminPassword == "") {
		return fmt.Errorf("http.admin_username and http.admin_password must be set together")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}

// GetStartupGrace returns the startup grace period. Zero is honoured.
func (c *QueueConfig) GetStartupGrace() time.Duration {
	d, err := time.ParseDuration(c.StartupGrace)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetPath returns the queue file location, derived from the download root when unset
func (c *StorageConfig) GetPath(rootDir string) string {
	if c.Path != "" {
		return c.Path
	}
	name := "queue.json"
	if c.Backend == BackendSQLite {
		name = "queue.db"
	}
	return filepath.Join(rootDir, ".threadfetch", name)
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 256 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetProgressInterval returns the minimum time between progress reports
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	return parseDuration(c.ProgressInterval, 250*time.Millisecond)
}

// GetResponseHeaderTimeout returns how long to wait for response headers
func (c *DownloadConfig) GetResponseHeaderTimeout() time.Duration {
	return parseDuration(c.ResponseHeaderTimeout, 30*time.Second)
}

// GetCleanupInterval returns the orphaned partial file sweep interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseDuration(c.CleanupInterval, time.Hour)
}

// GetTempFileMaxAge returns the minimum age of a removable partial file
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	return parseDuration(c.TempFileMaxAge, 72*time.Hour)
}

// GetCheckpointInterval returns the periodic save interval
func (c *MaintenanceConfig) GetCheckpointInterval() time.Duration {
	return parseDuration(c.CheckpointInterval, 5*time.Minute)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 60*time.Second)
}

// AuthEnabled reports whether basic auth protects the API
func (c *HTTPConfig) AuthEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}
