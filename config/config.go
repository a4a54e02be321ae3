package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ticket validation service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Amadeus    AmadeusConfig    `mapstructure:"amadeus"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Validation ValidationConfig `mapstructure:"validation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	Listen         string        `mapstructure:"listen"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"` // bcrypt
	MaxUploadBytes    int64  `mapstructure:"max_upload_bytes"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0")
	}
	return nil
}

// ProviderConfig configures the recognition provider used for extraction
type ProviderConfig struct {
	Type       string        `mapstructure:"type"` // anthropic, fixed
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (p ProviderConfig) Validate() error {
	if p.Type == "anthropic" && strings.TrimSpace(p.APIKey) == "" {
		return fmt.Errorf("provider.api_key is required for provider.type=anthropic")
	}
	return nil
}

// AmadeusConfig configures the flight-schedule verification backend
type AmadeusConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Backoff       time.Duration `mapstructure:"backoff"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// CacheConfig controls the extraction result cache
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"` // memory or redis
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	SweepCron  string        `mapstructure:"sweep_cron"`
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Backend)
	}
	return nil
}

// ValidationConfig tunes the rule engine
type ValidationConfig struct {
	FutureHorizon time.Duration `mapstructure:"future_horizon"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configuration.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Normalize applies defaults for unset values.
func (c *Config) Normalize() {
	if c.General.Listen == "" {
		c.General.Listen = ":10030"
	}
	if c.General.DefaultTimeout <= 0 {
		c.General.DefaultTimeout = 30 * time.Second
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Provider.Type == "" {
		c.Provider.Type = "anthropic"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "claude-3-opus-20240229"
	}
	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = 1024
	}
	if c.Provider.MaxRetries <= 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 60 * time.Second
	}
	if c.Amadeus.BaseURL == "" {
		c.Amadeus.BaseURL = "https://test.api.amadeus.com"
	}
	if c.Amadeus.MaxRetries <= 0 {
		c.Amadeus.MaxRetries = 3
	}
	if c.Amadeus.Backoff <= 0 {
		c.Amadeus.Backoff = 500 * time.Millisecond
	}
	if c.Amadeus.Timeout <= 0 {
		c.Amadeus.Timeout = 15 * time.Second
	}
	if c.Amadeus.RatePerSecond <= 0 {
		c.Amadeus.RatePerSecond = 5
	}
	if c.Amadeus.RateBurst <= 0 {
		c.Amadeus.RateBurst = 10
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1024
	}
	if c.Cache.SweepCron == "" {
		c.Cache.SweepCron = "0 * * * *"
	}
	if c.Validation.FutureHorizon <= 0 {
		c.Validation.FutureHorizon = 365 * 24 * time.Hour
	}
	if c.Telemetry.MetricsPath == "" {
		c.Telemetry.MetricsPath = "/metrics"
	}
}

// LoadConfig loads config from file
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TICKETCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	config.Normalize()

	if err := config.Server.Validate(); err != nil {
		return nil, err
	}
	if err := config.Provider.Validate(); err != nil {
		return nil, err
	}
	if err := config.Cache.Validate(); err != nil {
		return nil, err
	}
	if config.Cache.Backend == "redis" {
		if err := config.Storage.Redis.Validate(); err != nil {
			return nil, err
		}
	}
	return &config, nil
}
