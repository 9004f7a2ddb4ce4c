// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultJWTSecret is only acceptable in development.
const DefaultJWTSecret = "dev-jwt-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Auth     AuthConfig
	Log      LogConfig
	OpenAI   OpenAIConfig
	Vision   VisionConfig
	Upload   UploadConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds connection settings. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver   string
	DSNValue string // DATABASE_DSN, wins over the individual fields
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite file
	Debug    bool
	Retries  int
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// OpenAIConfig configures the free-text normalizer. An empty APIKey disables it.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxRetries  int
}

// VisionConfig configures Google Cloud Vision credentials.
type VisionConfig struct {
	CredentialsJSON string
	CredentialsFile string
	Enabled         bool
}

// UploadConfig limits uploaded images.
type UploadConfig struct {
	MaxFileSize int64
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.DSNValue != "" {
		return d.DSNValue
	}
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format, as golang-migrate expects.
func (d DatabaseConfig) URL() string {
	if strings.HasPrefix(d.DSNValue, "postgres://") || strings.HasPrefix(d.DSNValue, "postgresql://") {
		return d.DSNValue
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3001"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSNValue: strings.Trim(strings.TrimSpace(os.Getenv("DATABASE_DSN")), `"'`),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "invoices"),
			Password: getEnv("DB_PASSWORD", "invoices123"),
			DBName:   getEnv("DB_NAME", "invoices"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "invoices.db"),
			Debug:    getEnvBool("DB_DEBUG", false),
			Retries:  getEnvInt("DB_CONNECT_RETRIES", 5),
		},
		App: AppConfig{
			Dev:        getEnvBool("DEV", true),
			Migrations: getEnvBool("MIGRATIONS", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", DefaultJWTSecret),
			TokenTTL:  getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: float32(getEnvFloat("OPENAI_TEMPERATURE", 0.1)),
			MaxRetries:  getEnvInt("OPENAI_MAX_RETRIES", 3),
		},
		Vision: VisionConfig{
			CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			Enabled:         getEnvBool("OCR_ENABLED", true),
		},
		Upload: UploadConfig{
			MaxFileSize: int64(getEnvInt("MAX_FILE_SIZE", 10*1024*1024)),
		},
	}
}

// Validate reports settings that must not reach production.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if !c.App.Dev && c.Auth.JWTSecret == DefaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set outside development"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

// getEnvDuration accepts Go durations ("15s") and the day suffix used by token
// lifetimes ("7d"). A bare integer is read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
