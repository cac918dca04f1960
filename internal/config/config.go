// Package config provides configuration management for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SourceConfig holds the occupancy source endpoint and credentials
type SourceConfig struct {
	URL string
	// Token is sent as a bearer Authorization header when set
	Token string
	// Cookie is sent verbatim as a Cookie header when set
	Cookie string
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	// URL is prioritized if provided, otherwise individual connection parameters are used
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN builds the lib/pq connection string
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// PollConfig drives the reconcile-and-dispatch tick
type PollConfig struct {
	// Interval between ticks; the next tick is armed only after the previous
	// one completes
	Interval time.Duration
	// GraceWindow is how long a room is held for a served waitlist requester
	GraceWindow time.Duration
}

// MailConfig holds SMTP settings for waitlist notifications
type MailConfig struct {
	Host     string
	Port     string
	From     string
	Password string
	// CancelBaseURL prefixes the cancellation link included in notifications
	CancelBaseURL string
}

// APIConfig holds settings for the collaborating API surface
type APIConfig struct {
	Port  string
	Token string
}

// GetSourceConfig loads occupancy source configuration from environment variables
func GetSourceConfig() SourceConfig {
	return SourceConfig{
		URL:    getEnv("SOURCE_URL", ""),
		Token:  getEnv("SOURCE_TOKEN", ""),
		Cookie: getEnv("SOURCE_COOKIE", ""),
	}
}

// GetPostgresConfig loads PostgreSQL configuration from environment variables
func GetPostgresConfig() PostgresConfig {
	return PostgresConfig{
		URL:      getEnv("DATABASE_URL", ""),
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnv("POSTGRES_PORT", "5432"),
		User:     getEnv("POSTGRES_USER", "roomwait"),
		Password: getEnv("POSTGRES_PASSWORD", ""),
		Database: getEnv("POSTGRES_DB", "roomwait"),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: getEnvInt("POSTGRES_MAX_CONNS", 25),
		MaxIdle:  getEnvInt("POSTGRES_MAX_IDLE", 25),
	}
}

// GetRedisConfig loads Redis/Valkey configuration from environment variables
func GetRedisConfig() RedisConfig {
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return RedisConfig{
		URI:       getEnv("REDIS_URI", ""),
		Host:      getEnv("REDIS_HOST", "localhost"),
		Port:      getEnv("REDIS_PORT", "6379"),
		Username:  getEnv("REDIS_USERNAME", ""),
		Password:  getEnv("REDIS_PASSWORD", ""),
		DB:        db,
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "roomwait:"),
	}
}

// GetPollConfig loads tick configuration from environment variables
func GetPollConfig() PollConfig {
	return PollConfig{
		Interval:    getEnvDuration("POLL_INTERVAL", 10*time.Second),
		GraceWindow: getEnvDuration("GRACE_WINDOW", 30*time.Minute),
	}
}

// GetMailConfig loads SMTP configuration from environment variables
func GetMailConfig() MailConfig {
	return MailConfig{
		Host:          getEnv("MAIL_HOST", ""),
		Port:          getEnv("MAIL_PORT", "587"),
		From:          getEnv("MAIL_FROM", ""),
		Password:      getEnv("MAIL_PASSWORD", ""),
		CancelBaseURL: getEnv("CANCEL_BASE_URL", "http://localhost:3000/api"),
	}
}

// GetAPIConfig loads API configuration from environment variables
func GetAPIConfig() APIConfig {
	return APIConfig{
		Port:  getEnv("PORT", "4000"),
		Token: getEnv("API_TOKEN", ""),
	}
}

// GetRepositoryBackend returns which store backend to use: postgres, redis or memory
func GetRepositoryBackend() string {
	return getEnv("REPOSITORY", "postgres")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an integer environment variable
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration retrieves a duration environment variable ("10s", "30m")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
