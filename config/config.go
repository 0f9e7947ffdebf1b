package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"solestore-payments/internal/domain"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mpesa    MpesaConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MpesaConfig struct {
	Environment    string // "sandbox" or "production"
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	// BaseURL overrides the environment-derived Daraja URL; used in tests.
	BaseURL     string
	HTTPTimeout time.Duration
}

// Load assembles the configuration from the environment once at startup.
// Components never read the environment themselves.
func Load(logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8030"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "solestore"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Mpesa: MpesaConfig{
			Environment:    getEnv("MPESA_ENVIRONMENT", "sandbox"),
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getEnv("MPESA_SHORT_CODE", "174379"),
			Passkey:        getEnv("MPESA_PASSKEY", ""),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
			BaseURL:        getEnv("MPESA_BASE_URL", ""),
			HTTPTimeout:    getEnvDuration("MPESA_HTTP_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("mpesa_environment", cfg.Mpesa.Environment),
		zap.String("mpesa_shortcode", cfg.Mpesa.ShortCode),
		zap.Bool("redis_enabled", cfg.Redis.Addr != ""))

	return cfg, nil
}

// validate fails fast on configuration the payment flow cannot run without.
func (c *Config) validate() error {
	if c.Mpesa.ConsumerKey == "" {
		return &domain.ConfigError{Field: "MPESA_CONSUMER_KEY"}
	}
	if c.Mpesa.ConsumerSecret == "" {
		return &domain.ConfigError{Field: "MPESA_CONSUMER_SECRET"}
	}
	if c.Mpesa.Passkey == "" {
		return &domain.ConfigError{Field: "MPESA_PASSKEY"}
	}
	if c.Mpesa.CallbackURL == "" {
		return &domain.ConfigError{Field: "MPESA_CALLBACK_URL"}
	}
	if c.Mpesa.Environment == "production" &&
		!strings.HasPrefix(c.Mpesa.CallbackURL, "https://") {
		return fmt.Errorf("MPESA_CALLBACK_URL must be a public https URL in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
