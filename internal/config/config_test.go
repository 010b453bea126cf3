package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/viewcounter/internal/counter"
)

var allKeys = []string{
	"LOG_LEVEL", "HTTP_ADDR", "COUNTER_POLICY", "COUNTER_MAX_ATTEMPTS", "STORE_TIMEOUT", "STORE_TYPE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX",
	"PROJECT_ID", "DATASTORE_KIND", "DATASTORE_NAMESPACE", "DATASTORE_CREDENTIALS_FILE",
	"DYNAMODB_TABLE", "DYNAMODB_ENDPOINT", "AWS_REGION", "DATABASE_URL", "POSTGRES_TABLE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, counter.PolicyAuto, cfg.Counter.Policy)
	assert.Equal(t, counter.DefaultMaxAttempts, cfg.Counter.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Counter.Timeout)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "views:", cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, "view-counters", cfg.Store.DynamoDB.Table)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_TYPE", "Redis")
	t.Setenv("COUNTER_POLICY", "cas")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "9")
	t.Setenv("STORE_TIMEOUT", "1500ms")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store.Type)
	assert.Equal(t, counter.PolicyCompareAndSwap, cfg.Counter.Policy)
	assert.Equal(t, 9, cfg.Counter.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.Counter.Timeout)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
}

func TestLoad_TimeoutSeconds(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_TIMEOUT", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Counter.Timeout)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_TYPE", "postgres")
	t.Setenv("COUNTER_POLICY", "overwrite")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "zero")
	t.Setenv("REDIS_DB", "x")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown policy")
	assert.Contains(t, msg, "COUNTER_MAX_ATTEMPTS")
	assert.Contains(t, msg, "REDIS_DB")
	assert.Contains(t, msg, "DATABASE_URL is required")
}

func TestLoad_UnsupportedStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_TYPE", "etcd")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported STORE_TYPE: etcd")
	assert.Contains(t, err.Error(), "COUNTER_MAX_ATTEMPTS must be > 0")
}
