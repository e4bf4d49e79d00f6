package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the application configuration read from the environment.
type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	App      AppConfig
	Grid     GridConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// JWTConfig holds token verification settings. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
	Skew   time.Duration
}

// AppConfig holds application configuration
type AppConfig struct {
	Name            string
	Version         string
	Port            int
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	EditorRoles     []string
	ShutdownTimeout time.Duration
}

// GridConfig configures the attendance grid sessions.
type GridConfig struct {
	Timezone        string
	CalendarFile    string
	AutoSave        bool
	SessionIdleTTL  time.Duration
	SaveTimeout     time.Duration
	RefreshInterval time.Duration
	EvictInterval   time.Duration
	SSEKeepalive    time.Duration
}

// Load reads the configuration from the environment. A .env file is used
// when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var (
		config = &Config{}
		errs   []error
	)
	durationEnv := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return d
	}
	intEnv := func(key, fallback string) int {
		n, err := strconv.Atoi(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return n
	}
	boolEnv := func(key, fallback string) bool {
		b, err := strconv.ParseBool(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return b
	}

	config.Database = DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            intEnv("DB_PORT", "5432"),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Name:            getEnv("DB_NAME", "staff_attendance"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxConns:        int32(intEnv("DB_MAX_CONNS", "10")),
		MinConns:        int32(intEnv("DB_MIN_CONNS", "1")),
		MaxConnIdleTime: durationEnv("DB_MAX_CONN_IDLE_TIME", "5m"),
	}

	config.App = AppConfig{
		Name:            getEnv("APP_NAME", "staff-attendance"),
		Version:         getEnv("APP_VERSION", "v1.0.0"),
		Port:            intEnv("APP_PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:  getEnvSlice("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		EditorRoles:     getEnvSlice("EDITOR_ROLES", "owner,manager"),
		ShutdownTimeout: durationEnv("SHUTDOWN_TIMEOUT", "30s"),
	}

	config.JWT = JWTConfig{
		Secret: getEnv("JWT_SECRET_KEY", ""),
		Skew:   durationEnv("JWT_ACCEPTABLE_SKEW", "30s"),
	}

	config.Grid = GridConfig{
		Timezone:        getEnv("GRID_TIMEZONE", "Local"),
		CalendarFile:    getEnv("GRID_CALENDAR_FILE", ""),
		AutoSave:        boolEnv("GRID_AUTOSAVE", "false"),
		SessionIdleTTL:  durationEnv("GRID_SESSION_IDLE_TTL", "30m"),
		SaveTimeout:     durationEnv("GRID_SAVE_TIMEOUT", "30s"),
		RefreshInterval: durationEnv("GRID_REFRESH_INTERVAL", "1m"),
		EvictInterval:   durationEnv("GRID_EVICT_INTERVAL", "5m"),
		SSEKeepalive:    durationEnv("GRID_SSE_KEEPALIVE", "30s"),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid GRID_TIMEZONE: %w", err)
	}
	if c.Grid.SessionIdleTTL <= 0 || c.Grid.RefreshInterval <= 0 || c.Grid.EvictInterval <= 0 {
		return fmt.Errorf("grid durations must be positive")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Location is the zone attendance dates and times are interpreted in.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Grid.Timezone)
}

// SlogLevel parses LOG_LEVEL and falls back to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
