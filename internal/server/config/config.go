package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	BackendFileSystem = "filesystem"
	BackendS3         = "s3"
)

type Config struct {
	Port              string        `mapstructure:"port"`
	StorageBackend    string        `mapstructure:"storage_backend"`
	StoragePath       string        `mapstructure:"storage_path"`
	BaseURL           string        `mapstructure:"base_url"`
	MaxFileSize       int64         `mapstructure:"max_file_size"`
	AllowedTypePrefix string        `mapstructure:"allowed_type_prefix"`
	RateLimitRPS      float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	CleanupSchedule   string        `mapstructure:"cleanup_schedule"`
	StaleUploadAge    time.Duration `mapstructure:"stale_upload_age"`
	LogLevel          string        `mapstructure:"log_level"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("storage_backend", BackendFileSystem)
	v.SetDefault("storage_path", "images")
	v.SetDefault("base_url", "")
	v.SetDefault("max_file_size", 5*1024*1024) // 5MB
	v.SetDefault("allowed_type_prefix", "image/")
	v.SetDefault("rate_limit_rps", 10)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("cleanup_schedule", "@every 1h")
	v.SetDefault("stale_upload_age", "1h")
	v.SetDefault("log_level", "info")

	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_bucket", "images")
	v.SetDefault("s3_prefix", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
}

// Validate reports the first setting that would leave the server unusable.
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	switch c.StorageBackend {
	case BackendFileSystem:
		if c.StoragePath == "" {
			return errors.New("storage_path is required for the filesystem backend")
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return errors.New("s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage_backend %q", c.StorageBackend)
	}
	return nil
}
