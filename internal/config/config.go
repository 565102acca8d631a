package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"traderoom"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"traderoom_dev_password"`
	DBName     string `envconfig:"DB_NAME" default:"traderoom"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret-change-me" validate:"required"`

	// Chat engine knobs. Rate limits are per user per channel per minute;
	// a channel's own limit overrides the role default.
	MaxMessageLength int           `envconfig:"MAX_MESSAGE_LENGTH" default:"4000" validate:"min=1"`
	DefaultRateLimit int           `envconfig:"DEFAULT_RATE_LIMIT" default:"10" validate:"min=1"`
	AnalystRateLimit int           `envconfig:"ANALYST_RATE_LIMIT" default:"30" validate:"min=1"`
	TypingTTL        time.Duration `envconfig:"TYPING_TTL" default:"5s"`
	HistoryLimit     int           `envconfig:"HISTORY_LIMIT" default:"50" validate:"min=1,max=200"`
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading env: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
