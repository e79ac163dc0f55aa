// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	CookieName   string        `yaml:"cookie_name"`
	CookieDomain string        `yaml:"cookie_domain"`
	SecureCookie bool          `yaml:"secure_cookie"`
	TTL          time.Duration `yaml:"ttl"`
}

// ViewsConfig controls the per-view countdown loops.
type ViewsConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	JanitorEvery   time.Duration `yaml:"janitor_every"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	CompletionLock time.Duration `yaml:"completion_lock"`
	Workers        int           `yaml:"workers"`
	MaxNotices     int           `yaml:"max_notices"`
}

type RateLimitConfig struct {
	Actions int           `yaml:"actions"` // manual actions per window per viewer
	Window  time.Duration `yaml:"window"`
}

type TwitchConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	TokenURL     string        `yaml:"token_url"`
	HelixURL     string        `yaml:"helix_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Views     ViewsConfig     `yaml:"views"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Twitch    TwitchConfig    `yaml:"twitch"`
	Telegram  TelegramConfig  `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates the
// handful of settings the service cannot start without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return nil, errors.New("telegram.token is required when telegram.enabled is set")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.RequestTimeout = orDefault(cfg.HTTP.RequestTimeout, 15*time.Second)
	cfg.HTTP.ShutdownTimeout = orDefault(cfg.HTTP.ShutdownTimeout, 10*time.Second)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDefault(cfg.Redis.TTL, time.Hour)

	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}
	cfg.Auth.TTL = orDefault(cfg.Auth.TTL, 12*time.Hour)

	cfg.Views.TickInterval = orDefault(cfg.Views.TickInterval, time.Second)
	cfg.Views.IdleTimeout = orDefault(cfg.Views.IdleTimeout, 5*time.Minute)
	cfg.Views.JanitorEvery = orDefault(cfg.Views.JanitorEvery, 30*time.Second)
	cfg.Views.WriteTimeout = orDefault(cfg.Views.WriteTimeout, 5*time.Second)
	cfg.Views.CompletionLock = orDefault(cfg.Views.CompletionLock, 10*time.Second)
	if cfg.Views.Workers <= 0 {
		cfg.Views.Workers = 8
	}
	if cfg.Views.MaxNotices <= 0 {
		cfg.Views.MaxNotices = 20
	}

	if cfg.RateLimit.Actions <= 0 {
		cfg.RateLimit.Actions = 30
	}
	cfg.RateLimit.Window = orDefault(cfg.RateLimit.Window, time.Minute)

	if cfg.Twitch.TokenURL == "" {
		cfg.Twitch.TokenURL = "https://id.twitch.tv/oauth2/token"
	}
	if cfg.Twitch.HelixURL == "" {
		cfg.Twitch.HelixURL = "https://api.twitch.tv/helix"
	}
	cfg.Twitch.CacheTTL = orDefault(cfg.Twitch.CacheTTL, 30*time.Second)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
