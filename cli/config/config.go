package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultListen          = ":8989"
	DefaultEngineHost      = "localhost"
	DefaultEnginePort      = 8100
	DefaultEngineAttempts  = 3
	DefaultEngineDelay     = 3 * time.Second
	DefaultDialTimeout     = 5 * time.Second
	DefaultMergeBatchSize  = 100
	DefaultReadConcurrency = 8
	DefaultLogLevel        = "info"
	DefaultAuthType        = "none"
)

// Config represents a docbroker.yaml configuration file.
// All values are optional; CLI flags override config values.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Spool   SpoolConfig   `yaml:"spool"`
	Auth    AuthConfig    `yaml:"auth"`
	Merge   MergeConfig   `yaml:"merge"`
	Adapter AdapterConfig `yaml:"adapter"`
	Mirror  MirrorConfig  `yaml:"mirror"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen       string `yaml:"listen"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	Metrics      *bool  `yaml:"metrics,omitempty"`
}

// EngineConfig locates the conversion engine.
type EngineConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Attempts    int      `yaml:"attempts"`
	RetryDelay  Duration `yaml:"retry_delay"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

// Addr returns host:port.
func (e EngineConfig) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// SpoolConfig configures the spool directory.
type SpoolConfig struct {
	Dir string `yaml:"dir"`
}

// AuthConfig selects the authenticator.
type AuthConfig struct {
	Type  string       `yaml:"type"`
	Users []UserConfig `yaml:"users,omitempty"`
}

// UserConfig is a static user; PasswordHash is an argon2id hash
// (see docbroker hash-password).
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// MergeConfig tunes the PDF merge batcher.
type MergeConfig struct {
	BatchSize       int `yaml:"batch_size"`
	ReadConcurrency int `yaml:"read_concurrency"`
}

// AdapterConfig holds completion event adapter settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// MirrorConfig configures the S3 mirror of finalized spool entries.
// An empty Path disables mirroring.
type MirrorConfig struct {
	Path        string `yaml:"path"` // bucket/prefix
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Engine.Host == "" {
		c.Engine.Host = DefaultEngineHost
	}
	if c.Engine.Port == 0 {
		c.Engine.Port = DefaultEnginePort
	}
	if c.Engine.Attempts == 0 {
		c.Engine.Attempts = DefaultEngineAttempts
	}
	if c.Engine.RetryDelay.Duration == 0 {
		c.Engine.RetryDelay.Duration = DefaultEngineDelay
	}
	if c.Engine.DialTimeout.Duration == 0 {
		c.Engine.DialTimeout.Duration = DefaultDialTimeout
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = filepath.Join(os.TempDir(), "docbroker")
	}
	if c.Auth.Type == "" {
		c.Auth.Type = DefaultAuthType
	}
	if c.Merge.BatchSize == 0 {
		c.Merge.BatchSize = DefaultMergeBatchSize
	}
	if c.Merge.ReadConcurrency == 0 {
		c.Merge.ReadConcurrency = DefaultReadConcurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// MetricsEnabled reports whether /metrics is served (default true).
func (c *Config) MetricsEnabled() bool {
	return c.Server.Metrics == nil || *c.Server.Metrics
}

// Validate checks a defaulted config.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Port < 1 || c.Engine.Port > 65535 {
		errs = append(errs, fmt.Errorf("engine.port %d out of range", c.Engine.Port))
	}
	if c.Engine.Attempts < 1 {
		errs = append(errs, fmt.Errorf("engine.attempts must be >= 1, got %d", c.Engine.Attempts))
	}
	if c.Engine.RetryDelay.Duration < 0 {
		errs = append(errs, errors.New("engine.retry_delay must not be negative"))
	}
	switch c.Auth.Type {
	case "none":
		if len(c.Auth.Users) > 0 {
			errs = append(errs, errors.New("auth.users requires auth.type static"))
		}
	case "static":
		if len(c.Auth.Users) == 0 {
			errs = append(errs, errors.New("auth.type static requires at least one user"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type %q must be none or static", c.Auth.Type))
	}
	if c.Merge.BatchSize < 2 {
		errs = append(errs, fmt.Errorf("merge.batch_size must be >= 2, got %d", c.Merge.BatchSize))
	}
	if c.Merge.ReadConcurrency < 1 {
		errs = append(errs, fmt.Errorf("merge.read_concurrency must be >= 1, got %d", c.Merge.ReadConcurrency))
	}
	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q must be webhook or redis", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}
	return errors.Join(errs...)
}
