// Package config loads service configuration from YAML with defaults and
// DENOISE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Upload     UploadConfig     `mapstructure:"upload" yaml:"upload"`
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" yaml:"port"`
	Mode         string        `mapstructure:"mode" yaml:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type SessionConfig struct {
	// Backend is "memory" or "redis"
	Backend string `mapstructure:"backend" yaml:"backend"`

	// TTL is the retention window counted from creation or last update
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// SweepInterval controls how often the in-memory janitor runs
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size" yaml:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types" yaml:"allowed_types"`
}

type ProcessingConfig struct {
	// Workers bounds how many filters run concurrently for one request
	Workers int `mapstructure:"workers" yaml:"workers"`

	// Grayscale converts uploads to a single channel before processing
	Grayscale bool `mapstructure:"grayscale" yaml:"grayscale"`

	// Seed fixes the noise generator; zero seeds from the clock per request
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

type MetricsConfig struct {
	// PSNRCap replaces infinite PSNR values in responses and charts
	PSNRCap float64 `mapstructure:"psnr_cap" yaml:"psnr_cap"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8000",
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Session: SessionConfig{
			Backend:       "memory",
			TTL:           time.Hour,
			SweepInterval: time.Minute,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "denoise:session:",
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/bmp", "image/tiff", "image/webp"},
		},
		Processing: ProcessingConfig{
			Workers:   runtime.NumCPU(),
			Grayscale: true,
			Seed:      0,
		},
		Metrics: MetricsConfig{
			PSNRCap: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("session.backend", d.Session.Backend)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.sweep_interval", d.Session.SweepInterval)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("processing.workers", d.Processing.Workers)
	v.SetDefault("processing.grayscale", d.Processing.Grayscale)
	v.SetDefault("processing.seed", d.Processing.Seed)

	v.SetDefault("metrics.psnr_cap", d.Metrics.PSNRCap)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads configPath on top of the defaults. A missing file is not an
// error; environment variables such as DENOISE_SESSION_TTL still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DENOISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session backend: %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.Backend == "memory" && c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep_interval must be positive, got %s", c.Session.SweepInterval)
	}
	if c.Processing.Workers <= 0 {
		return fmt.Errorf("processing workers must be positive, got %d", c.Processing.Workers)
	}
	if c.Metrics.PSNRCap <= 0 {
		return fmt.Errorf("metrics psnr_cap must be positive, got %g", c.Metrics.PSNRCap)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload max_size must be positive, got %d", c.Upload.MaxSize)
	}
	return nil
}

// SaveConfig writes the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
