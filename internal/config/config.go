package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Port      string
		JWTSecret string
		JWTTTL    time.Duration
	}
	Postgres PostgresConfig
	S3       S3Config
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type S3Config struct {
	Region        string
	Bucket        string
	PublicBaseURL string
}

// Load reads configuration from the environment, optionally seeded from a
// .env file at path. Required variables fail loading; the rest default.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")

	cfg.App.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	jwtTTL := getEnv("JWT_TTL", "24h")
	ttl, err := time.ParseDuration(jwtTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL %q: %w", jwtTTL, err)
	}
	cfg.App.JWTTTL = ttl

	cfg.Postgres.Host = os.Getenv("DB_HOST")
	if cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = os.Getenv("DB_USER")
	if cfg.Postgres.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
	if cfg.Postgres.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Postgres.DBName = os.Getenv("DB_NAME")
	if cfg.Postgres.DBName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	maxConns, err := strconv.Atoi(getEnv("DB_MAX_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	cfg.Postgres.MaxConns = int32(maxConns)

	minConns, err := strconv.Atoi(getEnv("DB_MIN_CONNS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	cfg.Postgres.MinConns = int32(minConns)

	lifetime := getEnv("DB_MAX_CONN_LIFETIME", "1h")
	cfg.Postgres.MaxConnLifetime, err = time.ParseDuration(lifetime)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONN_LIFETIME %q: %w", lifetime, err)
	}

	cfg.S3.Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3.Bucket = os.Getenv("S3_BUCKET")
	cfg.S3.PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
