package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Ingest struct {
		Address      string        `yaml:"address"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"ingest"`

	Registry struct {
		LivenessWindow time.Duration `yaml:"liveness_window"`
		SweepInterval  time.Duration `yaml:"sweep_interval"`
	} `yaml:"registry"`

	Buffer struct {
		FlushSize     int           `yaml:"flush_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		Capacity      int           `yaml:"capacity"`
	} `yaml:"buffer"`

	Aggregator struct {
		Window        time.Duration `yaml:"window"`
		PeakWindow    time.Duration `yaml:"peak_window"`
		JankThreshold float64       `yaml:"jank_threshold_ms"`
	} `yaml:"aggregator"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		DeviceTokenSecret string        `yaml:"device_token_secret"`
		DeviceTokenTTL    time.Duration `yaml:"device_token_ttl"`
	} `yaml:"auth"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Dir           string        `yaml:"dir"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		Ingest struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"ingest"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Ingest
	if c.Ingest.Address == "" {
		return fmt.Errorf("ingest.address must not be empty")
	}
	if c.Ingest.PingInterval <= 0 {
		return fmt.Errorf("ingest.ping_interval must be > 0")
	}
	if c.Ingest.PongTimeout <= 0 {
		return fmt.Errorf("ingest.pong_timeout must be > 0")
	}

	// Registry
	if c.Registry.LivenessWindow <= 0 {
		return fmt.Errorf("registry.liveness_window must be > 0")
	}
	if c.Registry.SweepInterval <= 0 {
		return fmt.Errorf("registry.sweep_interval must be > 0")
	}
	if c.Registry.SweepInterval > c.Registry.LivenessWindow {
		return fmt.Errorf("registry.sweep_interval must be <= registry.liveness_window")
	}

	// Buffer
	if c.Buffer.FlushSize <= 0 {
		return fmt.Errorf("buffer.flush_size must be > 0")
	}
	if c.Buffer.FlushInterval <= 0 {
		return fmt.Errorf("buffer.flush_interval must be > 0")
	}
	if c.Buffer.Capacity < c.Buffer.FlushSize {
		return fmt.Errorf("buffer.capacity must be >= buffer.flush_size")
	}

	// Aggregator
	if c.Aggregator.Window <= 0 {
		return fmt.Errorf("aggregator.window must be > 0")
	}
	if c.Aggregator.PeakWindow <= 0 {
		return fmt.Errorf("aggregator.peak_window must be > 0")
	}
	if c.Aggregator.JankThreshold <= 0 {
		return fmt.Errorf("aggregator.jank_threshold_ms must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.DeviceTokenSecret == "" {
		return fmt.Errorf("auth.device_token_secret must not be empty")
	}
	if c.Auth.DeviceTokenTTL <= 0 {
		return fmt.Errorf("auth.device_token_ttl must be > 0")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Ingest.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.ingest.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Ingest.Burst <= 0 {
			return fmt.Errorf("rate_limiting.ingest.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Ingest.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.ingest.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Ingest.Address = ":8081"
	cfg.Ingest.PingInterval = 30 * time.Second
	cfg.Ingest.PongTimeout = 60 * time.Second
	cfg.Ingest.ReadTimeout = 60 * time.Second
	cfg.Ingest.WriteTimeout = 10 * time.Second

	cfg.Registry.LivenessWindow = 30 * time.Second
	cfg.Registry.SweepInterval = 5 * time.Second

	cfg.Buffer.FlushSize = 50
	cfg.Buffer.FlushInterval = 1 * time.Second
	cfg.Buffer.Capacity = 5000

	cfg.Aggregator.Window = 10 * time.Minute
	cfg.Aggregator.PeakWindow = 10 * time.Minute
	cfg.Aggregator.JankThreshold = 33.4 // two 60Hz frame budgets

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.DeviceTokenSecret = "change-me-in-production"
	cfg.Auth.DeviceTokenTTL = 24 * time.Hour

	cfg.Backup.Enabled = false
	cfg.Backup.Dir = "./backups"
	cfg.Backup.Interval = 6 * time.Hour
	cfg.Backup.RetentionDays = 7

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.Ingest.MessagesPerSecond = 100
	cfg.RateLimiting.Ingest.Burst = 200
	cfg.RateLimiting.Ingest.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("SOCTEL_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("SOCTEL_INGEST_ADDRESS"); addr != "" {
		c.Ingest.Address = addr
	}
	if level := os.Getenv("SOCTEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SOCTEL_DEVICE_TOKEN_SECRET"); secret != "" {
		c.Auth.DeviceTokenSecret = secret
	}
	if addr := os.Getenv("SOCTEL_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
