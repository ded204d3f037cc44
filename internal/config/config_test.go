package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
cloner:
  workers: 6
  user_agent: real-agent
  max_asset_bytes: 1048576
  optimize_images: true
  render_mode: never
  blocked_domains: ["*.ru", "evil.example"]
http:
  timeout_seconds: 45
  max_retries: 4
  per_host_rps: 2.5
headless:
  enabled: true
  max_parallel: 2
publish:
  backend: github
  folder: sites
  github:
    owner: acme
    repo: landing-pages
    token: ghp_test
    cdn: raw
registry:
  backend: redis
  retention_minutes: 15
  redis:
    addr: redis:6379
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Cloner.Workers != 6 || !cfg.Cloner.OptimizeImages || cfg.Cloner.RenderMode != "never" {
		t.Fatalf("expected cloner overrides to apply: %+v", cfg.Cloner)
	}
	if len(cfg.Cloner.BlockedDomains) != 2 || cfg.Cloner.BlockedDomains[0] != "*.ru" {
		t.Fatalf("expected blocked domains to load: %v", cfg.Cloner.BlockedDomains)
	}
	if cfg.Cloner.MaxImageDimension != 2048 || cfg.Cloner.ImageQuality != 85 {
		t.Fatalf("expected image defaults to survive overrides: %+v", cfg.Cloner)
	}
	if cfg.HTTP.PerHostRPS != 2.5 {
		t.Fatalf("expected per_host_rps 2.5, got %v", cfg.HTTP.PerHostRPS)
	}
	gh := cfg.Publish.GitHub
	if cfg.Publish.Backend != "github" || gh.Owner != "acme" || gh.Branch != "main" || gh.CDN != "raw" {
		t.Fatalf("expected github publish config with defaults: %+v", cfg.Publish)
	}
	if gh.APIURL != "https://api.github.com" {
		t.Fatalf("expected default api url, got %q", gh.APIURL)
	}
	if cfg.Registry.Backend != "redis" || cfg.Registry.Redis.Addr != "redis:6379" {
		t.Fatalf("expected redis registry, got %+v", cfg.Registry)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.Retention(); got != 15*time.Minute {
		t.Fatalf("expected retention 15m, got %v", got)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development override to false")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.TimeoutSeconds != 30 || cfg.HTTP.MaxRetries != 3 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Cloner.MaxAssetBytes != 50<<20 {
		t.Fatalf("expected 50MiB asset ceiling, got %d", cfg.Cloner.MaxAssetBytes)
	}
	if cfg.Publish.Folder != "clonedwebs" || cfg.Publish.Backend != "local" {
		t.Fatalf("unexpected publish defaults: %+v", cfg.Publish)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Cloner:   ClonerConfig{Workers: 1, MaxAssetBytes: 1024, ImageQuality: 80},
		HTTP:     HTTPConfig{TimeoutSeconds: 10},
		Publish:  PublishConfig{Backend: "memory", Folder: "clonedwebs"},
		Registry: RegistryConfig{Backend: "memory"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid workers", func(c *Config) { c.Cloner.Workers = 0 }, "cloner.workers"},
		{"invalid asset ceiling", func(c *Config) { c.Cloner.MaxAssetBytes = 0 }, "cloner.max_asset_bytes"},
		{"invalid quality", func(c *Config) { c.Cloner.ImageQuality = 120 }, "cloner.image_quality"},
		{"invalid render mode", func(c *Config) { c.Cloner.RenderMode = "maybe" }, "cloner.render_mode"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"headless missing max parallel", func(c *Config) {
			c.Headless.Enabled = true
			c.Headless.MaxParallel = 0
		}, "headless.max_parallel"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"folder traversal", func(c *Config) { c.Publish.Folder = "../up" }, "publish.folder"},
		{"unknown backend", func(c *Config) { c.Publish.Backend = "ftp" }, "publish.backend"},
		{"github missing repo", func(c *Config) {
			c.Publish.Backend = "github"
			c.Publish.GitHub.Owner = "acme"
		}, "publish.github.owner"},
		{"gcs missing bucket", func(c *Config) { c.Publish.Backend = "gcs" }, "publish.gcs.bucket"},
		{"s3 missing bucket", func(c *Config) { c.Publish.Backend = "s3" }, "publish.s3.bucket"},
		{"unknown registry", func(c *Config) { c.Registry.Backend = "etcd" }, "registry.backend"},
		{"archive missing dsn", func(c *Config) { c.Archive.Enabled = true }, "archive.dsn"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
