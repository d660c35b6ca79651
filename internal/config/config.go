package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/abyssorcdev/duppla/internal/notify"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig           `mapstructure:"server"`
	Store         StoreConfig            `mapstructure:"store"`
	Redis         RedisConfig            `mapstructure:"redis"`
	Cache         CacheConfig            `mapstructure:"cache"`
	RateLimit     RateLimitConfig        `mapstructure:"ratelimit"`
	Auth          AuthConfig             `mapstructure:"auth"`
	Batch         BatchConfig            `mapstructure:"batch"`
	Notifications []notify.ChannelConfig `mapstructure:"notifications"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StoreConfig selects and configures the persistence backend.
// Backend is either "reindexer" or "memory".
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// RedisConfig configures the Redis key-value backend used for rate limiting
// and the API key cache. An empty URL selects the in-memory backend.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig configures the in-memory key-value store
type CacheConfig struct {
	Shards          int `mapstructure:"shards"`
	CleanupInterval int `mapstructure:"cleanup_interval"` // seconds
}

// RateLimitConfig configures per-client request throttling
type RateLimitConfig struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// AuthConfig configures API key authentication
type AuthConfig struct {
	APIKeys     []string `mapstructure:"api_keys"`
	KeyCacheTTL int      `mapstructure:"key_cache_ttl"` // seconds
	DisableAuth bool     `mapstructure:"disable_auth"`
}

// BatchConfig configures the batch processing engine
type BatchConfig struct {
	Workers      int `mapstructure:"workers"`
	QueueWorkers int `mapstructure:"queue_workers"`
	QueueSize    int `mapstructure:"queue_size"`
	MaxRetries   int `mapstructure:"max_retries"`
}

// Window returns the rate limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// TTL returns the API key cache TTL as a duration.
func (c AuthConfig) TTL() time.Duration {
	return time.Duration(c.KeyCacheTTL) * time.Second
}

// Load reads configuration from an optional YAML file and APP_-prefixed
// environment variables, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Store defaults
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.dsn", "cproto://localhost:6534/duppla")

	// Redis defaults: empty URL selects the in-memory backend
	v.SetDefault("redis.url", "")

	// Cache defaults
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.cleanup_interval", 60)

	// Rate limit defaults
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window_seconds", 60)

	// Auth defaults
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.key_cache_ttl", 300)
	v.SetDefault("auth.disable_auth", false)

	// Batch defaults
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.queue_workers", 2)
	v.SetDefault("batch.queue_size", 64)
	v.SetDefault("batch.max_retries", 3)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.host", "APP_SERVER_HOST")
	v.BindEnv("server.port", "APP_SERVER_PORT")

	// Store
	v.BindEnv("store.backend", "APP_STORE_BACKEND")
	v.BindEnv("store.dsn", "APP_STORE_DSN")

	// Redis
	v.BindEnv("redis.url", "APP_REDIS_URL")

	// Cache
	v.BindEnv("cache.shards", "APP_CACHE_SHARDS")
	v.BindEnv("cache.cleanup_interval", "APP_CACHE_CLEANUP_INTERVAL")

	// Rate limit
	v.BindEnv("ratelimit.requests", "APP_RATELIMIT_REQUESTS")
	v.BindEnv("ratelimit.window_seconds", "APP_RATELIMIT_WINDOW_SECONDS")

	// Auth
	v.BindEnv("auth.api_keys", "APP_AUTH_API_KEYS")
	v.BindEnv("auth.key_cache_ttl", "APP_AUTH_KEY_CACHE_TTL")
	v.BindEnv("auth.disable_auth", "APP_AUTH_DISABLE_AUTH")

	// Batch
	v.BindEnv("batch.workers", "APP_BATCH_WORKERS")
	v.BindEnv("batch.queue_workers", "APP_BATCH_QUEUE_WORKERS")
	v.BindEnv("batch.queue_size", "APP_BATCH_QUEUE_SIZE")
	v.BindEnv("batch.max_retries", "APP_BATCH_MAX_RETRIES")
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	// Validate Server
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate Store
	switch cfg.Store.Backend {
	case "memory":
	case "reindexer":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the reindexer backend")
		}
	default:
		return fmt.Errorf("store.backend must be reindexer or memory, got %q", cfg.Store.Backend)
	}

	// Validate Cache
	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.CleanupInterval < 1 {
		return fmt.Errorf("cache.cleanup_interval must be at least 1")
	}

	// Validate Rate limit
	if cfg.RateLimit.Requests < 1 {
		return fmt.Errorf("ratelimit.requests must be at least 1")
	}
	if cfg.RateLimit.WindowSeconds < 1 {
		return fmt.Errorf("ratelimit.window_seconds must be at least 1")
	}

	// Validate Auth
	if cfg.Auth.KeyCacheTTL < 0 {
		return fmt.Errorf("auth.key_cache_ttl must be non-negative")
	}
	if !cfg.Auth.DisableAuth && len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys is required unless auth.disable_auth is set")
	}

	// Validate Batch
	if cfg.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	if cfg.Batch.QueueWorkers < 1 {
		return fmt.Errorf("batch.queue_workers must be at least 1")
	}
	if cfg.Batch.QueueSize < 1 {
		return fmt.Errorf("batch.queue_size must be at least 1")
	}
	if cfg.Batch.MaxRetries < 1 {
		return fmt.Errorf("batch.max_retries must be at least 1")
	}

	// Validate Notifications
	for i, ch := range cfg.Notifications {
		if ch.Name == "" {
			return fmt.Errorf("notifications[%d].name is required", i)
		}
		if ch.Type == "" {
			return fmt.Errorf("notifications[%d].type is required", i)
		}
		if ch.Type == "http" && ch.URL == "" {
			return fmt.Errorf("notifications[%d].url is required for http channels", i)
		}
	}

	return nil
}
