package shared

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// SecretKeyEnv overrides [SecurityConfig.SecretKey] when set.
const SecretKeyEnv = "IMMPORT_SECRET_KEY"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LogLevel string         `toml:"log_level"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Queue    QueueConfig    `toml:"queue"`
	Security SecurityConfig `toml:"security"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Source   SourceConfig   `toml:"source"`
	Target   TargetConfig   `toml:"target"`
	Archive  ArchiveConfig  `toml:"archive"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig contains the connection settings for the work queue broker.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// QueueConfig contains work queue settings.
//
// Timeout is the longest a single import task may run before the worker cancels it.
// StaleAfter is how long a RUNNING job must go without a checkpoint before it may be resumed.
type QueueConfig struct {
	Name        string   `toml:"name"`
	Concurrency int      `toml:"concurrency"`
	MaxRetry    int      `toml:"max_retry"`
	Timeout     Duration `toml:"timeout"`
	StaleAfter  Duration `toml:"stale_after"`
}

// SecurityConfig holds the key used to encrypt credentials at rest.
type SecurityConfig struct {
	SecretKey string `toml:"secret_key"`
}

// PipelineConfig contains import pipeline tuning.
type PipelineConfig struct {
	StagingDir    string          `toml:"staging_dir"`
	DownloadRate  float64         `toml:"download_rate"`
	RetryAttempts int             `toml:"retry_attempts"`
	RetryMinDelay Duration        `toml:"retry_min_delay"`
	RetryMaxDelay Duration        `toml:"retry_max_delay"`
	HashChunkSize int             `toml:"hash_chunk_size"`
	Defaults      JobDefaultsConf `toml:"defaults"`
}

// JobDefaultsConf contains option defaults applied to newly submitted jobs.
type JobDefaultsConf struct {
	CreateAlbum         bool `toml:"create_album"`
	SkipDuplicates      bool `toml:"skip_duplicates"`
	DownloadConcurrency int  `toml:"download_concurrency"`
	UploadConcurrency   int  `toml:"upload_concurrency"`
	PersistStaging      bool `toml:"persist_staging"`
}

// SourceConfig contains settings for fetching source pages and media.
//
// Timeout bounds loading an album page and waiting for a media response to start.
// Media bodies stream without a deadline.
type SourceConfig struct {
	UserAgent string   `toml:"user_agent"`
	Timeout   Duration `toml:"timeout"`
}

// TargetConfig contains settings for the Immich client.
// Timeout bounds the wait for a response once a request has been sent.
type TargetConfig struct {
	Timeout Duration `toml:"timeout"`
}

// ArchiveConfig describes an optional S3-compatible bucket mirroring persisted staging files.
type ArchiveConfig struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Prefix          string `toml:"prefix"`
}

// Enabled reports whether enough settings are present to build an archive client.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" && a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// MetricsConfig contains the Prometheus listener address.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a [time.Duration] that decodes from TOML strings like "4s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SecretKey decodes the configured credential encryption key.
func (c *Config) SecretKey() ([32]byte, error) {
	var key [32]byte
	raw := strings.TrimSpace(c.Security.SecretKey)
	if raw == "" {
		return key, ErrMissingCipherKey
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return key, fmt.Errorf("%w: secret_key is not base64: %v", ErrInvalidConfig, err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("%w: secret_key must decode to %d bytes, got %d", ErrInvalidConfig, len(key), len(decoded))
	}

	copy(key[:], decoded)
	return key, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(SecretKeyEnv); v != "" {
		c.Security.SecretKey = v
	}
}
