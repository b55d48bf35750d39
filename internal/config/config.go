// Package config loads collection-proxy settings from flags, environment
// (COLLECTION_CACHE_*) and an optional config file via viper, and turns them
// into the configuration structs of each package.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/client"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
	"github.com/Sternrassler/collection-cache/pkg/storage"
	"github.com/Sternrassler/collection-cache/pkg/swr"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// COLLECTION_CACHE_CACHE_TTL=10m.
const EnvPrefix = "COLLECTION_CACHE"

// Store backends.
const (
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// Config is the complete proxy configuration.
type Config struct {
	Endpoint  string
	UserAgent string
	Listen    string

	Store StoreConfig
	Redis RedisConfig
	Cache CacheConfig
	Fetch FetchConfig

	RefreshTimeout time.Duration

	LogLevel  string
	LogPretty bool
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Backend string
	Path    string
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr   string
	DB     int
	Prefix string
}

// CacheConfig configures the collection cache.
type CacheConfig struct {
	Version    string
	TTL        time.Duration
	Mode       string
	MaxEntries int
}

// FetchConfig configures the paginated collector.
type FetchConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RPS            float64
	StorePartial   bool
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("user_agent", "collection-cache/0.1.0")
	v.SetDefault("listen", ":8080")

	v.SetDefault("store.backend", BackendPebble)
	v.SetDefault("store.path", "collection-cache.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")

	v.SetDefault("cache.version", cache.DefaultVersion)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.mode", string(cache.ModeSingleSlot))
	v.SetDefault("cache.max_entries", cache.DefaultMaxEntries)

	retry := pagination.DefaultRetryConfig()
	v.SetDefault("fetch.max_attempts", retry.MaxAttempts)
	v.SetDefault("fetch.initial_backoff", retry.InitialBackoff)
	v.SetDefault("fetch.max_backoff", retry.MaxBackoff)
	v.SetDefault("fetch.rps", 0.0)
	v.SetDefault("fetch.store_partial", true)

	v.SetDefault("refresh.timeout", swr.DefaultRefreshTimeout)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
}

// New returns a viper instance with defaults and environment overrides wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges the config file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Endpoint:  v.GetString("endpoint"),
		UserAgent: v.GetString("user_agent"),
		Listen:    v.GetString("listen"),
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("store.backend")),
			Path:    v.GetString("store.path"),
		},
		Redis: RedisConfig{
			Addr:   v.GetString("redis.addr"),
			DB:     v.GetInt("redis.db"),
			Prefix: v.GetString("redis.prefix"),
		},
		Cache: CacheConfig{
			Version:    v.GetString("cache.version"),
			TTL:        v.GetDuration("cache.ttl"),
			Mode:       strings.ToLower(v.GetString("cache.mode")),
			MaxEntries: v.GetInt("cache.max_entries"),
		},
		Fetch: FetchConfig{
			MaxAttempts:    v.GetInt("fetch.max_attempts"),
			InitialBackoff: v.GetDuration("fetch.initial_backoff"),
			MaxBackoff:     v.GetDuration("fetch.max_backoff"),
			RPS:            v.GetFloat64("fetch.rps"),
			StorePartial:   v.GetBool("fetch.store_partial"),
		},
		RefreshTimeout: v.GetDuration("refresh.timeout"),
		LogLevel:       v.GetString("log.level"),
		LogPretty:      v.GetBool("log.pretty"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component can work with.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}

	switch c.Store.Backend {
	case BackendPebble:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the pebble backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q (got %q)", BackendPebble, BackendRedis, c.Store.Backend)
	}

	switch cache.Mode(c.Cache.Mode) {
	case cache.ModeSingleSlot, cache.ModeKeyed:
	default:
		return fmt.Errorf("cache.mode must be %q or %q (got %q)", cache.ModeSingleSlot, cache.ModeKeyed, c.Cache.Mode)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive (got %s)", c.Cache.TTL)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be >= 1 (got %d)", c.Cache.MaxEntries)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be >= 1 (got %d)", c.Fetch.MaxAttempts)
	}
	if c.Fetch.RPS < 0 {
		return fmt.Errorf("fetch.rps must not be negative (got %v)", c.Fetch.RPS)
	}
	return nil
}

// CacheConfig returns the cache package configuration.
func (c Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Version = c.Cache.Version
	cfg.TTL = c.Cache.TTL
	cfg.Mode = cache.Mode(c.Cache.Mode)
	cfg.MaxEntries = c.Cache.MaxEntries
	return cfg
}

// CollectorConfig returns the pagination package configuration.
func (c Config) CollectorConfig() pagination.Config {
	cfg := pagination.DefaultConfig()
	cfg.Retry.MaxAttempts = c.Fetch.MaxAttempts
	cfg.Retry.InitialBackoff = c.Fetch.InitialBackoff
	cfg.Retry.MaxBackoff = c.Fetch.MaxBackoff
	cfg.RequestsPerSecond = c.Fetch.RPS
	return cfg
}

// ClientConfig returns the endpoint client configuration.
func (c Config) ClientConfig() client.Config {
	return client.DefaultConfig(c.Endpoint, c.UserAgent)
}

// SyncConfig returns the synchronizer configuration.
func (c Config) SyncConfig() swr.Config {
	cfg := swr.DefaultConfig()
	cfg.StorePartial = c.Fetch.StorePartial
	cfg.RefreshTimeout = c.RefreshTimeout
	return cfg
}

// LogConfig returns the logging configuration.
func (c Config) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// RedisOptions returns the go-redis options for the redis backend.
func (c Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr: c.Redis.Addr,
		DB:   c.Redis.DB,
	}
}

// StoreOpener returns the opener for the configured backend. Redis keys
// expire after the cache TTL so abandoned entries do not linger.
func (c Config) StoreOpener() storage.Opener {
	if c.Store.Backend == BackendRedis {
		return storage.RedisOpener(c.RedisOptions(), storage.RedisConfig{
			Prefix: c.Redis.Prefix,
			Expiry: c.Cache.TTL,
		})
	}
	return storage.PebbleOpener(storage.PebbleConfig{Path: c.Store.Path})
}
