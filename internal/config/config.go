package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"gt=0"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path" validate:"required"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=8"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl" validate:"gt=0"`

	RequestLog RequestLogConfig `mapstructure:"request_log" yaml:"request_log"`
	TimeWindow TimeWindowConfig `mapstructure:"time_window" yaml:"time_window"`
	Content    ContentConfig    `mapstructure:"content" yaml:"content"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Roles      RolesConfig      `mapstructure:"roles" yaml:"roles"`
	Inbox      InboxConfig      `mapstructure:"inbox" yaml:"inbox"`
}

// RequestLogConfig controls the append-only request log file.
type RequestLogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" validate:"required_if=Enabled true"`
}

// TimeWindowConfig is the allowed local-time window [StartHour, EndHour).
type TimeWindowConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	StartHour int    `mapstructure:"start_hour" yaml:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int    `mapstructure:"end_hour" yaml:"end_hour" validate:"gte=1,lte=24,gtfield=StartHour"`
	Location  string `mapstructure:"location" yaml:"location"`
}

// ContentConfig lists the banned terms checked on message creation.
type ContentConfig struct {
	BannedWords []string `mapstructure:"banned_words" yaml:"banned_words"`
}

// RateLimitConfig bounds message submissions per client.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	PathPrefix    string        `mapstructure:"path_prefix" yaml:"path_prefix" validate:"required"`
	Limit         int           `mapstructure:"limit" yaml:"limit" validate:"gt=0"`
	Window        time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gt=0"`
	Backend       string        `mapstructure:"backend" yaml:"backend" validate:"oneof=memory redis"`
	RedisURL      string        `mapstructure:"redis_url" yaml:"redis_url" validate:"required_if=Backend redis"`
	RedisPrefix   string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// RolesConfig controls which paths require an elevated role for unsafe methods.
type RolesConfig struct {
	ProtectedPrefixes []string `mapstructure:"protected_prefixes" yaml:"protected_prefixes"`
	ElevatedGroups    []string `mapstructure:"elevated_groups" yaml:"elevated_groups"`
}

// InboxConfig sizes the received-messages cache.
type InboxConfig struct {
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"gte=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxBodyBytes:      1 << 20,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "wiremsg.db",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "wiremsg",
		JWTAudience:       "wiremsg",
		JWTTTL:            24 * time.Hour,
		RequestLog: RequestLogConfig{
			Enabled: true,
			Path:    "requests.log",
		},
		TimeWindow: TimeWindowConfig{
			Enabled:   true,
			StartHour: 6,
			EndHour:   21,
			Location:  "Local",
		},
		Content: ContentConfig{
			BannedWords: []string{"spamword", "offensive1", "offensive2"},
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			PathPrefix:    "/api/messages",
			Limit:         5,
			Window:        time.Minute,
			SweepInterval: 5 * time.Minute,
			Backend:       "memory",
			RedisPrefix:   "wiremsg:rate",
		},
		Roles: RolesConfig{
			ProtectedPrefixes: []string{"/api/messages", "/api/conversations"},
			ElevatedGroups:    []string{"moderator", "admin"},
		},
		Inbox: InboxConfig{
			CacheSize: 1024,
			CacheTTL:  time.Minute,
		},
	}
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := c.TimeWindow.LoadLocation(); err != nil {
		return fmt.Errorf("validate config: time_window.location: %w", err)
	}
	return nil
}

// LoadLocation resolves the configured time zone. Empty means local time.
func (t TimeWindowConfig) LoadLocation() (*time.Location, error) {
	if t.Location == "" || t.Location == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(t.Location)
}

// UpdateFrom overwrites non-zero scalar values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}
