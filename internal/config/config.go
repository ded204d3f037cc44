// Package config loads and validates site-cloner configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cloner   ClonerConfig   `mapstructure:"cloner"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Registry RegistryConfig `mapstructure:"registry"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ClonerConfig governs the worker pool and the resource pipeline.
type ClonerConfig struct {
	Workers             int      `mapstructure:"workers"`
	QueueDepth          int      `mapstructure:"queue_depth"`
	UserAgent           string   `mapstructure:"user_agent"`
	MaxAssetBytes       int64    `mapstructure:"max_asset_bytes"`
	AssetWorkers        int      `mapstructure:"asset_workers"`
	OptimizeImages      bool     `mapstructure:"optimize_images"`
	MaxImageDimension   int      `mapstructure:"max_image_dimension"`
	ImageQuality        int      `mapstructure:"image_quality"`
	RenderMode          string   `mapstructure:"render_mode"`
	BlockedDomains      []string `mapstructure:"blocked_domains"`
	AllowPrivateTargets bool     `mapstructure:"allow_private_targets"`
}

// HTTPConfig configures fetch timeouts, retries and per-host pacing.
type HTTPConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	PerHostRPS       float64 `mapstructure:"per_host_rps"`
	PerHostBurst     int     `mapstructure:"per_host_burst"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// PublishConfig selects and configures the content store.
type PublishConfig struct {
	Backend         string       `mapstructure:"backend"`
	Folder          string       `mapstructure:"folder"`
	CreateContainer bool         `mapstructure:"create_container"`
	PublicBaseURL   string       `mapstructure:"public_base_url"`
	UploadWorkers   int          `mapstructure:"upload_workers"`
	GitHub          GitHubConfig `mapstructure:"github"`
	GCS             GCSConfig    `mapstructure:"gcs"`
	S3              S3Config     `mapstructure:"s3"`
	Local           LocalConfig  `mapstructure:"local"`
}

// GitHubConfig points the publisher at a repository served through a CDN.
type GitHubConfig struct {
	Owner  string `mapstructure:"owner"`
	Repo   string `mapstructure:"repo"`
	Branch string `mapstructure:"branch"`
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
	CDN    string `mapstructure:"cdn"`
}

// GCSConfig names the bucket used by the GCS backend.
type GCSConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`
}

// S3Config names the bucket used by the S3 backend.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// LocalConfig roots the filesystem backend.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// RegistryConfig selects the job registry and its retention.
type RegistryConfig struct {
	Backend          string      `mapstructure:"backend"`
	RetentionMinutes int         `mapstructure:"retention_minutes"`
	SweepIntervalSec int         `mapstructure:"sweep_interval_seconds"`
	Redis            RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the Redis registry.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ArchiveConfig controls the Postgres manifest archive.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITECLONER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("cloner.workers", 2)
	v.SetDefault("cloner.queue_depth", 64)
	v.SetDefault("cloner.user_agent", "site-cloner/0.1")
	v.SetDefault("cloner.max_asset_bytes", int64(50<<20))
	v.SetDefault("cloner.asset_workers", 8)
	v.SetDefault("cloner.optimize_images", false)
	v.SetDefault("cloner.max_image_dimension", 2048)
	v.SetDefault("cloner.image_quality", 85)
	v.SetDefault("cloner.render_mode", string(cloner.RenderAuto))
	v.SetDefault("cloner.allow_private_targets", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("http.per_host_rps", 8.0)
	v.SetDefault("http.per_host_burst", 4)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("publish.backend", "local")
	v.SetDefault("publish.folder", "clonedwebs")
	v.SetDefault("publish.create_container", true)
	v.SetDefault("publish.upload_workers", 4)
	v.SetDefault("publish.github.branch", "main")
	v.SetDefault("publish.github.api_url", "https://api.github.com")
	v.SetDefault("publish.github.cdn", "jsdelivr")
	v.SetDefault("publish.s3.region", "us-east-1")
	v.SetDefault("publish.local.base_dir", "./published")
	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.retention_minutes", 60)
	v.SetDefault("registry.sweep_interval_seconds", 60)
	v.SetDefault("registry.redis.addr", "localhost:6379")
	v.SetDefault("registry.redis.key_prefix", "sitecloner")
	v.SetDefault("archive.table", "clone_manifests")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Cloner.Workers <= 0 {
		return fmt.Errorf("cloner.workers must be > 0")
	}
	if c.Cloner.MaxAssetBytes <= 0 {
		return fmt.Errorf("cloner.max_asset_bytes must be > 0")
	}
	if c.Cloner.ImageQuality < 0 || c.Cloner.ImageQuality > 100 {
		return fmt.Errorf("cloner.image_quality must be between 0 and 100")
	}
	switch cloner.RenderMode(c.Cloner.RenderMode) {
	case "", cloner.RenderAuto, cloner.RenderAlways, cloner.RenderNever:
	default:
		return fmt.Errorf("cloner.render_mode must be auto, always or never")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Publish.validate(); err != nil {
		return err
	}
	switch c.Registry.Backend {
	case "memory":
	case "redis":
		if c.Registry.Redis.Addr == "" {
			return fmt.Errorf("registry.redis.addr must be set for the redis registry")
		}
	default:
		return fmt.Errorf("registry.backend must be memory or redis")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn must be set when the archive is enabled")
	}
	return nil
}

func (p PublishConfig) validate() error {
	if p.Folder == "" || strings.Contains(p.Folder, "..") {
		return fmt.Errorf("publish.folder must be a relative folder name")
	}
	switch p.Backend {
	case "github":
		if p.GitHub.Owner == "" || p.GitHub.Repo == "" {
			return fmt.Errorf("publish.github.owner and publish.github.repo are required")
		}
		if p.GitHub.Token == "" {
			return fmt.Errorf("publish.github.token is required")
		}
		if p.GitHub.CDN != "jsdelivr" && p.GitHub.CDN != "raw" {
			return fmt.Errorf("publish.github.cdn must be jsdelivr or raw")
		}
	case "gcs":
		if p.GCS.Bucket == "" {
			return fmt.Errorf("publish.gcs.bucket is required")
		}
	case "s3":
		if p.S3.Bucket == "" {
			return fmt.Errorf("publish.s3.bucket is required")
		}
	case "local":
		if p.Local.BaseDir == "" {
			return fmt.Errorf("publish.local.base_dir is required")
		}
	case "memory":
	default:
		return fmt.Errorf("publish.backend must be one of github, gcs, s3, local, memory")
	}
	return nil
}

// FetchTimeout is the per-attempt fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Retention is how long terminal jobs stay in the registry.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Registry.RetentionMinutes) * time.Minute
}
