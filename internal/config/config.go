package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Document store backends
const (
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Config holds all configuration for the application
type Config struct {
	// Document store
	DocumentStore string
	DatabaseURL   string
	Firestore     FirestoreConfig

	// Auth0
	Auth0Domain   string
	Auth0Audience string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	AMQP   AMQPConfig
	Cache  CacheConfig
	Recalc RecalcConfig
}

// FirestoreConfig holds Cloud Firestore configuration
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string // Optional: falls back to application default credentials
}

// AMQPConfig holds the recalculation queue configuration. An empty URL disables the queue.
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// Enabled reports whether recalculation requests go through the broker
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// CacheConfig bounds the local document cache
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// RecalcConfig tunes recalculation triggers and the background worker
type RecalcConfig struct {
	RatePerMinute     int
	WorkerConcurrency int
	SweepInterval     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DocumentStore: strings.ToLower(getEnv("DOCUMENT_STORE", StorePostgres)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Firestore: FirestoreConfig{
			ProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),
		Port:          getEnv("PORT", "8080"),
		CORSOrigins:   strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:           getEnv("ENV", "development"),
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "envelope"),
			Queue:    getEnv("AMQP_QUEUE", "budget_recalc"),
		},
	}

	var err error
	if cfg.Cache.TTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Cache.MaxEntries, err = getInt("CACHE_MAX_ENTRIES", 10000); err != nil {
		return nil, err
	}
	if cfg.Recalc.RatePerMinute, err = getInt("RECALC_RATE_PER_MINUTE", 10); err != nil {
		return nil, err
	}
	if cfg.Recalc.WorkerConcurrency, err = getInt("RECALC_WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.Recalc.SweepInterval, err = getDuration("RECALC_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DocumentStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required")
		}
	default:
		return fmt.Errorf("DOCUMENT_STORE must be %q or %q, got %q", StorePostgres, StoreFirestore, c.DocumentStore)
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.Recalc.WorkerConcurrency <= 0 {
		return fmt.Errorf("RECALC_WORKER_CONCURRENCY must be positive")
	}
	if c.AMQP.Enabled() && c.AMQP.Queue == "" {
		return fmt.Errorf("AMQP_QUEUE is required when AMQP_URL is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
