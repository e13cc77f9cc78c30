package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/config"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "APP_PORT", "CACHE_QUERY_TTL", "BUNSANE_PARTITION_STRATEGY")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.AppPort)
	assert.Equal(t, config.PartitionList, cfg.PartitionStrategy)
	assert.Equal(t, time.Minute, cfg.CacheQuery.TTL)
	assert.True(t, cfg.CacheEnabled)
}

func TestLoadRejectsInvalidPartitionStrategy(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "BUNSANE_PARTITION_STRATEGY")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("BUNSANE_PARTITION_STRATEGY", "round-robin")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestEnvBoolVariants(t *testing.T) {
	clearEnv(t, "FLAG")
	assert.False(t, config.EnvBool("FLAG", false))

	os.Setenv("FLAG", "yes")
	assert.True(t, config.EnvBool("FLAG", false))

	os.Setenv("FLAG", "0")
	assert.False(t, config.EnvBool("FLAG", true))

	os.Setenv("FLAG", "not-a-bool")
	assert.Equal(t, true, config.EnvBool("FLAG", true))
}

func TestEnvDurationFallback(t *testing.T) {
	clearEnv(t, "WINDOW")
	assert.Equal(t, 2*time.Second, config.EnvDuration("WINDOW", 2*time.Second))

	os.Setenv("WINDOW", "garbage")
	assert.Equal(t, 2*time.Second, config.EnvDuration("WINDOW", 2*time.Second))

	os.Setenv("WINDOW", "750ms")
	assert.Equal(t, 750*time.Millisecond, config.EnvDuration("WINDOW", 2*time.Second))
}
