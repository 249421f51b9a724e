package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Document store: one of "firestore", "mongo", "redis", "memory".
	StoreBackend    string `mapstructure:"STORE_BACKEND"`
	StoreCollection string `mapstructure:"STORE_COLLECTION"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DatabaseName    string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisStoreDB  int    `mapstructure:"REDIS_STORE_DB"`

	// Firebase service account and project.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`

	// Response gateway: "gemini" or "openai".
	GatewayProvider string        `mapstructure:"GATEWAY_PROVIDER"`
	GatewayTimeout  time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	GeminiAPIKey    string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel     string        `mapstructure:"GEMINI_MODEL"`
	OpenAIAPIKey    string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel     string        `mapstructure:"OPENAI_MODEL"`

	// Booking ledger writer.
	BookingTimeout    time.Duration `mapstructure:"BOOKING_TIMEOUT"`
	BookingAppendMode string        `mapstructure:"BOOKING_APPEND_MODE"`
	BookingMaxRetries int           `mapstructure:"BOOKING_MAX_RETRIES"`
	NoticeTTL         time.Duration `mapstructure:"NOTICE_TTL"`

	HealthInterval time.Duration `mapstructure:"HEALTH_INTERVAL"`

	// Authentication: "firebase" or "jwt".
	AuthMode  string `mapstructure:"AUTH_MODE"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	ChatRatePerMin     int    `mapstructure:"CHAT_RATE_PER_MIN"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Voice input.
	SpeechEnabled            bool   `mapstructure:"SPEECH_ENABLED"`
	GoogleServiceAccountFile string `mapstructure:"GOOGLE_SERVICE_ACCOUNT_FILE"`
}

// LoadConfig reads config.yaml (from "." or "./config") and the environment.
// The returned value is passed explicitly to every component that needs it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_BACKEND", "firestore")
	v.SetDefault("STORE_COLLECTION", "chats")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "unmute")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_STORE_DB", 0)

	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")

	v.SetDefault("GATEWAY_PROVIDER", "gemini")
	v.SetDefault("GATEWAY_TIMEOUT", "30s")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")

	v.SetDefault("BOOKING_TIMEOUT", "10s")
	v.SetDefault("BOOKING_APPEND_MODE", "versioned")
	v.SetDefault("BOOKING_MAX_RETRIES", 3)
	v.SetDefault("NOTICE_TTL", "5s")

	v.SetDefault("HEALTH_INTERVAL", "15s")

	v.SetDefault("AUTH_MODE", "firebase")
	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("CHAT_RATE_PER_MIN", 30)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("SPEECH_ENABLED", false)
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_FILE", "")
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "firestore", "mongo", "redis", "memory":
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.GatewayProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported GATEWAY_PROVIDER %q", c.GatewayProvider)
	}
	switch c.BookingAppendMode {
	case "versioned", "atomic", "merge":
	default:
		return fmt.Errorf("unsupported BOOKING_APPEND_MODE %q", c.BookingAppendMode)
	}
	switch c.AuthMode {
	case "firebase":
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.AuthMode)
	}
	if c.BookingTimeout <= 0 {
		return fmt.Errorf("BOOKING_TIMEOUT must be positive")
	}
	if c.BookingMaxRetries < 1 {
		return fmt.Errorf("BOOKING_MAX_RETRIES must be at least 1")
	}
	return nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
