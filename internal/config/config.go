package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Media     MediaConfig     `mapstructure:"media"`
	Transport TransportConfig `mapstructure:"transport"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// AuthConfig holds token signing and login throttling settings.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	LoginAttempts  int           `mapstructure:"login_attempts"`
	LoginWindow    time.Duration `mapstructure:"login_window"`
}

// MediaConfig selects the media storage backend.
type MediaConfig struct {
	// Type is "local" or "s3".
	Type          string        `mapstructure:"type"`
	LocalPath     string        `mapstructure:"local_path"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	S3Bucket      string        `mapstructure:"s3_bucket"`
	S3Prefix      string        `mapstructure:"s3_prefix"`
	S3Region      string        `mapstructure:"s3_region"`
	S3Endpoint    string        `mapstructure:"s3_endpoint"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxFetchBytes int64         `mapstructure:"max_fetch_bytes"`
}

// TransportConfig selects how outbound messages leave the process.
type TransportConfig struct {
	// Type is "webhook", "stdout" or "file".
	Type      string        `mapstructure:"type"`
	URL       string        `mapstructure:"url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	OutputDir string        `mapstructure:"output_dir"`
}

// DispatchConfig controls how a session runtime works through a batch.
type DispatchConfig struct {
	ChunkSize   int           `mapstructure:"chunk_size"`
	Concurrency int           `mapstructure:"concurrency"`
	ChunkDelay  time.Duration `mapstructure:"chunk_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	ProgressTTL time.Duration `mapstructure:"progress_ttl"`
	StreamLen   int64         `mapstructure:"stream_len"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SeedConfig describes the initial user created on first boot.
type SeedConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// A .env file in the working directory, if present, is loaded first.
// Environment variables with prefix BATCH_MESSENGER_ override file values.
// For example, BATCH_MESSENGER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("BATCH_MESSENGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(filepath.Clean(path))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.max_upload_bytes", 16<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("auth.access_token_ttl", 24*time.Hour)
	v.SetDefault("auth.login_attempts", 5)
	v.SetDefault("auth.login_window", 15*time.Minute)

	v.SetDefault("media.type", "local")
	v.SetDefault("media.fetch_timeout", 15*time.Second)
	v.SetDefault("media.max_fetch_bytes", 16<<20)

	v.SetDefault("transport.type", "stdout")
	v.SetDefault("transport.timeout", 30*time.Second)

	v.SetDefault("dispatch.chunk_size", 10)
	v.SetDefault("dispatch.concurrency", 1)
	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.progress_ttl", 24*time.Hour)
	v.SetDefault("dispatch.stream_len", 1000)
}
