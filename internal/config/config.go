package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every recognized runtime option. The flat fields mirror
// the environment variable names an operator sets directly
// (AWS_REGION, REQUIRE_API_KEY, ...); unrecognized options in the
// environment or config file are ignored by viper.
type Config struct {
	Server ServerConfig `mapstructure:",squash"`
	Store  StoreConfig  `mapstructure:",squash"`
	Redis  RedisConfig  `mapstructure:",squash"`

	AWSRegion string `mapstructure:"aws_region"`

	RequireAPIKey bool   `mapstructure:"require_api_key"`
	MasterAPIKey  string `mapstructure:"master_api_key"`

	RateLimitEnabled  bool `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int  `mapstructure:"rate_limit_requests"`
	RateLimitWindow   int  `mapstructure:"rate_limit_window"`

	EnableVision           bool `mapstructure:"enable_vision"`
	EnableToolUse          bool `mapstructure:"enable_tool_use"`
	EnableExtendedThinking bool `mapstructure:"enable_extended_thinking"`

	UnaryTimeout   time.Duration `mapstructure:"unary_timeout"`
	StreamTimeout  time.Duration `mapstructure:"stream_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the optional shared key-lookup cache. Left
// disabled, the Authenticator falls back to a process-local cache,
// correct for a single replica but not for a gateway scaled out behind
// a load balancer.
type RedisConfig struct {
	RedisEnabled  bool   `mapstructure:"redis_enabled"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// RateLimitWindowDuration is RateLimitWindow expressed as a
// time.Duration for callers of internal/gateway/ratelimit.
func (c *Config) RateLimitWindowDuration() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}

// LoadConfig reads configuration from an optional config.yaml plus
// environment variables, with environment variables taking precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./internal/config")

	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("dsn", "file:gateway.db?_busy_timeout=5000&_journal_mode=WAL")

	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("require_api_key", true)
	v.SetDefault("master_api_key", "")

	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("rate_limit_requests", 60)
	v.SetDefault("rate_limit_window", 60)

	v.SetDefault("enable_vision", true)
	v.SetDefault("enable_tool_use", true)
	v.SetDefault("enable_extended_thinking", true)

	v.SetDefault("unary_timeout", 120*time.Second)
	v.SetDefault("stream_timeout", 300*time.Second)
	v.SetDefault("max_retries", 2)
	v.SetDefault("retry_base_delay", 250*time.Millisecond)

	v.SetDefault("redis_enabled", false)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}
