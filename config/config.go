package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config file is given on the command line.
// Environment specific files (config.production.yaml and friends) take
// precedence when APP_ENV selects them.
const DefaultPath = "config.yaml"

var envSpecificPaths = map[string]string{
	environmentProduction: "config.production.yaml",
	environmentStaging:    "config.staging.yaml",
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Replay   ReplayConfig   `yaml:"replay"`
	Recorder RecorderConfig `yaml:"recorder"`
	Storage  StorageConfig  `yaml:"storage"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

type ReplayConfig struct {
	DisplayDepth       int           `yaml:"display_depth"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

type RecorderConfig struct {
	WriteBuffer int                 `yaml:"write_buffer"`
	Binance     BinanceFeedConfig   `yaml:"binance"`
	Bybit       BybitFeedConfig     `yaml:"bybit"`
	Okx         OkxFeedConfig       `yaml:"okx"`
	RateLimit   FeedRateLimitConfig `yaml:"rate_limit"`
}

type BinanceFeedConfig struct {
	Enabled bool     `yaml:"enabled"`
	Depth   int      `yaml:"depth"`
	Symbols []string `yaml:"symbols"`
}

type BybitFeedConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Depth   int      `yaml:"depth"`
	Symbols []string `yaml:"symbols"`
}

type OkxFeedConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type FeedRateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ExportConfig struct {
	Dir         string `yaml:"dir"`
	Depth       int    `yaml:"depth"`
	Compression string `yaml:"compression"`
	RowGroup    int    `yaml:"row_group"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Namespace string        `yaml:"namespace"`
	Interval  time.Duration `yaml:"interval"`
}

// LoadConfig reads, defaults and validates the configuration at path. An
// empty path resolves to DefaultPath, or to the environment specific file
// selected by APP_ENV when one is configured.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, envSpecificPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	config.setDefaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Credentials come from the environment when present; the file values
	// only serve local development setups.
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	c.App.Name = "orderbook-replayer"
	c.App.Version = "dev"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.Logging.Output = "stdout"
	c.Archive.Dir = "data"
	c.Replay.DisplayDepth = 10
	c.Replay.CheckpointInterval = time.Minute
	c.Recorder.WriteBuffer = 1024
	c.Recorder.Binance.Depth = 500
	c.Recorder.Bybit.URL = "wss://stream.bybit.com/v5/public/linear"
	c.Recorder.Bybit.Depth = 500
	c.Recorder.Okx.URL = "wss://ws.okx.com:8443/ws/v5/public"
	c.Recorder.RateLimit.RequestsPerSecond = 5
	c.Recorder.RateLimit.BurstSize = 10
	c.Export.Dir = "export"
	c.Export.Depth = 10
	c.Export.Compression = "snappy"
	c.Export.RowGroup = 128 * 1024
	c.Metrics.CloudWatch.Namespace = "OrderbookReplayer"
	c.Metrics.CloudWatch.Interval = time.Minute
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.Archive.Dir == "" {
		return fmt.Errorf("archive.dir is required")
	}

	if cfg.Replay.DisplayDepth <= 0 {
		return fmt.Errorf("replay.display_depth must be greater than 0")
	}
	if cfg.Replay.CheckpointInterval <= 0 {
		return fmt.Errorf("replay.checkpoint_interval must be greater than 0")
	}

	if cfg.Recorder.WriteBuffer <= 0 {
		return fmt.Errorf("recorder.write_buffer must be greater than 0")
	}
	if cfg.Recorder.Binance.Enabled {
		if len(cfg.Recorder.Binance.Symbols) == 0 {
			return fmt.Errorf("recorder.binance.symbols is required when the binance feed is enabled")
		}
		if cfg.Recorder.Binance.Depth <= 0 {
			return fmt.Errorf("recorder.binance.depth must be greater than 0")
		}
	}
	if cfg.Recorder.Bybit.Enabled {
		if len(cfg.Recorder.Bybit.Symbols) == 0 {
			return fmt.Errorf("recorder.bybit.symbols is required when the bybit feed is enabled")
		}
		if cfg.Recorder.Bybit.Depth <= 0 {
			return fmt.Errorf("recorder.bybit.depth must be greater than 0")
		}
	}
	if cfg.Recorder.Okx.Enabled && len(cfg.Recorder.Okx.Symbols) == 0 {
		return fmt.Errorf("recorder.okx.symbols is required when the okx feed is enabled")
	}
	if cfg.Recorder.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("recorder.rate_limit.requests_per_second must be greater than 0")
	}

	if cfg.Export.Depth <= 0 {
		return fmt.Errorf("export.depth must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when cloudwatch is enabled")
		}
		if cfg.Metrics.CloudWatch.Interval <= 0 {
			return fmt.Errorf("metrics.cloudwatch.interval must be greater than 0")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
