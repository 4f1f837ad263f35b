package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `server:
  listen: 127.0.0.1:9000
  max_body_bytes: 1048576
  metrics: false

engine:
  host: soffice
  port: 2002
  attempts: 5
  retry_delay: 1s
  dial_timeout: 2s

spool:
  dir: /var/spool/docbroker

auth:
  type: static
  users:
    - username: alice
      password_hash: $argon2id$v=19$m=65536,t=1,p=2$c2FsdA$aGFzaA

merge:
  batch_size: 50
  read_concurrency: 4

adapter:
  type: webhook
  url: https://hooks.example.com/docbroker
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

mirror:
  path: my-bucket/spool
  region: eu-west-1
  endpoint: https://minio.example.com
  s3_path_style: true

log:
  level: debug
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "server.listen", cfg.Server.Listen, "127.0.0.1:9000")
	if cfg.Server.MaxBodyBytes != 1048576 {
		t.Errorf("max_body_bytes = %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.MetricsEnabled() {
		t.Error("metrics should be disabled")
	}

	assertEqual(t, "engine.addr", cfg.Engine.Addr(), "soffice:2002")
	if cfg.Engine.Attempts != 5 {
		t.Errorf("attempts = %d", cfg.Engine.Attempts)
	}
	if cfg.Engine.RetryDelay.Duration != time.Second || cfg.Engine.DialTimeout.Duration != 2*time.Second {
		t.Errorf("engine durations = %v / %v", cfg.Engine.RetryDelay, cfg.Engine.DialTimeout)
	}

	assertEqual(t, "spool.dir", cfg.Spool.Dir, "/var/spool/docbroker")

	assertEqual(t, "auth.type", cfg.Auth.Type, "static")
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Username != "alice" {
		t.Fatalf("users = %+v", cfg.Auth.Users)
	}
	if !strings.HasPrefix(cfg.Auth.Users[0].PasswordHash, "$argon2id$") {
		t.Errorf("password hash mangled: %q", cfg.Auth.Users[0].PasswordHash)
	}

	if cfg.Merge.BatchSize != 50 || cfg.Merge.ReadConcurrency != 4 {
		t.Errorf("merge = %+v", cfg.Merge)
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/docbroker")
	assertEqual(t, "adapter.headers", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v", cfg.Adapter.Timeout)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("adapter.retries = %v", cfg.Adapter.Retries)
	}

	assertEqual(t, "mirror.path", cfg.Mirror.Path, "my-bucket/spool")
	assertEqual(t, "mirror.region", cfg.Mirror.Region, "eu-west-1")
	if !cfg.Mirror.S3PathStyle {
		t.Error("mirror.s3_path_style should be true")
	}

	assertEqual(t, "log.level", cfg.Log.Level, "debug")

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for empty config: %v", err)
	}
	if cfg.Engine.Host != "" {
		t.Errorf("expected empty engine host, got %q", cfg.Engine.Host)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/docbroker.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "engine: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("DOCBROKER_ENGINE_HOST", "office.internal")
	path := writeTemp(t, "engine:\n  host: ${DOCBROKER_ENGINE_HOST}\n  port: ${DOCBROKER_ENGINE_PORT:-8200}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "engine.addr", cfg.Engine.Addr(), "office.internal:8200")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `spool:
  dir: /tmp/x
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `engine:
  host: localhost
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379
  retries: 0
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("expected retries to be non-nil (*int(0)), got nil")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	path := writeTemp(t, "engine:\n  retry_delay: not-a-duration\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  timeout: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Adapter.Timeout.Duration)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assertEqual(t, "server.listen", cfg.Server.Listen, DefaultListen)
	assertEqual(t, "engine.addr", cfg.Engine.Addr(), "localhost:8100")
	if cfg.Engine.Attempts != 3 || cfg.Engine.RetryDelay.Duration != 3*time.Second {
		t.Errorf("engine retry defaults = %d / %v", cfg.Engine.Attempts, cfg.Engine.RetryDelay)
	}
	if cfg.Merge.BatchSize != 100 {
		t.Errorf("merge.batch_size = %d, want 100", cfg.Merge.BatchSize)
	}
	assertEqual(t, "auth.type", cfg.Auth.Type, "none")
	assertEqual(t, "log.level", cfg.Log.Level, "info")
	if cfg.Spool.Dir == "" {
		t.Error("spool.dir not defaulted")
	}
	if !cfg.MetricsEnabled() {
		t.Error("metrics should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	retries := -1
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Engine.Port = 70000 }, "engine.port"},
		{"attempts", func(c *Config) { c.Engine.Attempts = -1 }, "engine.attempts"},
		{"auth type", func(c *Config) { c.Auth.Type = "ldap" }, "auth.type"},
		{"static without users", func(c *Config) { c.Auth.Type = "static" }, "at least one user"},
		{"users without static", func(c *Config) { c.Auth.Users = []UserConfig{{Username: "a"}} }, "auth.users"},
		{"batch size", func(c *Config) { c.Merge.BatchSize = 1 }, "merge.batch_size"},
		{"adapter type", func(c *Config) { c.Adapter.Type = "kafka" }, "adapter.type"},
		{"adapter url", func(c *Config) { c.Adapter.Type = "webhook" }, "adapter.url"},
		{"adapter retries", func(c *Config) { c.Adapter.Retries = &retries }, "adapter.retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "docbroker.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
