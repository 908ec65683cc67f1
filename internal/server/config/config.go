// Package config содержит конфигурацию сервера из переменных окружения
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the server.
type Config struct {
	// Адрес HTTP listener
	ListenAddr string `env:"DENTKEEPER_LISTEN_ADDR" envDefault:":8080"`

	// Путь к файлу SQLite базы данных
	DatabasePath string `env:"DENTKEEPER_DB_PATH" envDefault:"dentkeeper.db"`

	// Секрет для подписи JWT access токенов (обязателен)
	JWTSecret string `env:"DENTKEEPER_JWT_SECRET"`

	// Время жизни access токена
	AccessTokenTTL time.Duration `env:"DENTKEEPER_ACCESS_TOKEN_TTL" envDefault:"15m"`

	// Лимит запросов к auth endpoints (запросов на окно с одного IP)
	AuthRateLimit  int           `env:"DENTKEEPER_AUTH_RATE_LIMIT" envDefault:"10"`
	AuthRateWindow time.Duration `env:"DENTKEEPER_AUTH_RATE_WINDOW" envDefault:"1m"`

	// Уровень логирования: debug, info, warn, error
	LogLevel string `env:"DENTKEEPER_LOG_LEVEL" envDefault:"info"`

	// Таймауты HTTP сервера
	ReadTimeout     time.Duration `env:"DENTKEEPER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"DENTKEEPER_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"DENTKEEPER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("DENTKEEPER_JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("DENTKEEPER_JWT_SECRET must be at least 32 characters")
	}
	if c.AuthRateLimit <= 0 {
		return fmt.Errorf("DENTKEEPER_AUTH_RATE_LIMIT must be positive")
	}
	return nil
}
