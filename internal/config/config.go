// Package config loads runtime configuration from the environment (and a .env file when present).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/joho/godotenv"
	"github.com/tckz/viewcounter/internal/counter"
)

const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StoreDatastore = "datastore"
	StoreDynamoDB  = "dynamodb"
	StorePostgres  = "postgres"
)

type Config struct {
	LogLevel string
	HTTPAddr string
	Counter  CounterConfig
	Store    StoreConfig
}

type CounterConfig struct {
	Policy      counter.Policy
	MaxAttempts int
	// Timeout bounds one invocation, store calls included. Zero disables it.
	Timeout time.Duration
}

type StoreConfig struct {
	Type      string
	Redis     RedisConfig
	Datastore DatastoreConfig
	DynamoDB  DynamoDBConfig
	Postgres  PostgresConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type DatastoreConfig struct {
	ProjectID       string
	Kind            string
	Namespace       string
	CredentialsFile string
}

type DynamoDBConfig struct {
	Table    string
	Endpoint string
	Region   string
}

type PostgresConfig struct {
	DatabaseURL string
	Table       string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var errs *multierror.Error

	policy, err := counter.ParsePolicy(os.Getenv("COUNTER_POLICY"))
	errs = multierror.Append(errs, err)

	maxAttempts, err := getInt("COUNTER_MAX_ATTEMPTS", counter.DefaultMaxAttempts)
	errs = multierror.Append(errs, err)
	if err == nil && maxAttempts < 1 {
		errs = multierror.Append(errs, fmt.Errorf("COUNTER_MAX_ATTEMPTS must be > 0"))
	}

	timeout, err := getDuration("STORE_TIMEOUT", 5*time.Second)
	errs = multierror.Append(errs, err)

	redisDB, err := getInt("REDIS_DB", 0)
	errs = multierror.Append(errs, err)

	cfg := Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Counter: CounterConfig{
			Policy:      policy,
			MaxAttempts: maxAttempts,
			Timeout:     timeout,
		},
		Store: StoreConfig{
			Type: strings.ToLower(getEnv("STORE_TYPE", StoreMemory)),
			Redis: RedisConfig{
				Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
				Password:  os.Getenv("REDIS_PASSWORD"),
				DB:        redisDB,
				KeyPrefix: getEnv("REDIS_KEY_PREFIX", "views:"),
			},
			Datastore: DatastoreConfig{
				ProjectID:       os.Getenv("PROJECT_ID"),
				Kind:            getEnv("DATASTORE_KIND", "ViewCounter"),
				Namespace:       os.Getenv("DATASTORE_NAMESPACE"),
				CredentialsFile: os.Getenv("DATASTORE_CREDENTIALS_FILE"),
			},
			DynamoDB: DynamoDBConfig{
				Table:    getEnv("DYNAMODB_TABLE", "view-counters"),
				Endpoint: os.Getenv("DYNAMODB_ENDPOINT"),
				Region:   os.Getenv("AWS_REGION"),
			},
			Postgres: PostgresConfig{
				DatabaseURL: os.Getenv("DATABASE_URL"),
				Table:       getEnv("POSTGRES_TABLE", "view_counters"),
			},
		},
	}

	errs = multierror.Append(errs, cfg.Store.validate())

	if err := errs.ErrorOrNil(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c StoreConfig) validate() error {
	switch c.Type {
	case StoreMemory, StoreRedis, StoreDynamoDB:
		return nil
	case StoreDatastore:
		if c.Datastore.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID is required for STORE_TYPE=%s", c.Type)
		}
		return nil
	case StorePostgres:
		if c.Postgres.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_TYPE=%s", c.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported STORE_TYPE: %s", c.Type)
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := parseutil.ParseInt(value)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int(n), nil
}

// getDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := parseutil.ParseDurationSecond(value)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
