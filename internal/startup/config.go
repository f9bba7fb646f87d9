package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"lazythumb/internal/extractor"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
	"lazythumb/internal/visibility"
	"lazythumb/internal/workers"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMinio  = "minio"
	CacheMemory = "memory"
)

// Media backends.
const (
	MediaFFmpeg  = "ffmpeg"
	MediaBrowser = "browser"
)

// MinioConfig locates the S3-compatible bucket for CACHE_BACKEND=minio.
type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"lazythumb"`
	Secure    bool   `env:"SECURE" envDefault:"true"`
}

// ExtractorConfig holds the frame extraction bounds.
type ExtractorConfig struct {
	Deadline     time.Duration `env:"DEADLINE" envDefault:"10s"`
	SeekTimeout  time.Duration `env:"SEEK_TIMEOUT" envDefault:"2s"`
	SeekFraction float64       `env:"SEEK_FRACTION" envDefault:"0.1"`
	SeekCap      time.Duration `env:"SEEK_CAP" envDefault:"1s"`
	DefaultSeek  time.Duration `env:"DEFAULT_SEEK" envDefault:"500ms"`
	PlayBurst    time.Duration `env:"PLAY_BURST" envDefault:"100ms"`
}

// Config holds all application configuration.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	MetricsPort     string        `env:"METRICS_PORT" envDefault:"9090"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	LogHealthChecks bool          `env:"LOG_HEALTH_CHECKS" envDefault:"true"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL" envDefault:"1m"`

	CacheDir     string `env:"CACHE_DIR" envDefault:"/cache"`
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"sqlite"`
	CacheQuota   int64  `env:"CACHE_QUOTA_BYTES" envDefault:"5242880"`

	MediaBackend string `env:"MEDIA_BACKEND" envDefault:"ffmpeg"`
	BrowserURL   string `env:"BROWSER_URL"`
	Encoder      string `env:"ENCODER" envDefault:"imaging"`

	// Hosts media and poster URLs may point at. Empty allows any http(s) host.
	AllowedSourceHosts []string `env:"ALLOWED_SOURCE_HOSTS" envSeparator:","`

	VisibilityMargin    float64 `env:"VISIBILITY_MARGIN" envDefault:"200"`
	VisibilityThreshold float64 `env:"VISIBILITY_THRESHOLD" envDefault:"0.01"`

	Extractor ExtractorConfig `envPrefix:"EXTRACTOR_"`
	Minio     MinioConfig     `envPrefix:"MINIO_"`

	// Derived, not read from the environment
	DatabasePath string
	Workers      int
}

// LoadDotEnv loads ./.env when present. Variables already set win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		logging.Debug("no .env file found")
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("can not load .env file: %w", err)
	}
	logging.Info("  Loaded .env file")
	return nil
}

// Parse reads the environment into a Config, fills derived fields and
// validates it. It does no logging or directory setup.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Workers = workers.ForMixed(16)
	cfg.DatabasePath = filepath.Join(cfg.CacheDir, "thumbnails.db")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and required settings.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheSQLite, CacheMemory:
	case CacheMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("CACHE_BACKEND=minio requires MINIO_ENDPOINT and MINIO_BUCKET")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want sqlite, minio or memory)", c.CacheBackend)
	}

	switch c.MediaBackend {
	case MediaFFmpeg, MediaBrowser:
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND %q (want ffmpeg or browser)", c.MediaBackend)
	}

	switch c.Encoder {
	case "imaging", "vips":
	default:
		return fmt.Errorf("unknown ENCODER %q (want imaging or vips)", c.Encoder)
	}

	if c.CacheQuota < 0 {
		return fmt.Errorf("CACHE_QUOTA_BYTES must not be negative")
	}
	if c.VisibilityThreshold < 0 || c.VisibilityThreshold > 1 {
		return fmt.Errorf("VISIBILITY_THRESHOLD must be within [0, 1]")
	}
	return nil
}

// ExtractorSettings converts the extraction bounds.
func (c *Config) ExtractorSettings() extractor.Config {
	return extractor.Config{
		Deadline:     c.Extractor.Deadline,
		SeekTimeout:  c.Extractor.SeekTimeout,
		SeekFraction: c.Extractor.SeekFraction,
		SeekCap:      c.Extractor.SeekCap,
		DefaultSeek:  c.Extractor.DefaultSeek,
		PlayBurst:    c.Extractor.PlayBurst,
	}.WithDefaults()
}

// SourcePolicy returns the check applied to client-submitted URLs.
func (c *Config) SourcePolicy() media.SourcePolicy {
	return media.SourcePolicy{AllowedHosts: c.AllowedSourceHosts}
}

// GateOptions converts the visibility settings.
func (c *Config) GateOptions() visibility.Options {
	return visibility.Options{Margin: c.VisibilityMargin, Threshold: c.VisibilityThreshold}
}
