package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bartek5186/stockhub/internal/integrations/importer"
	"github.com/bartek5186/stockhub/internal/integrations/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreate_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg, first, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	again, first, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, first)
	assert.Equal(t, cfg.SyncIntervalSeconds, again.SyncIntervalSeconds)

	var sc shopify.Config
	require.NoError(t, again.UnmarshalIntegration("shopify", &sc))
	assert.Equal(t, 5, sc.MaxAttempts)
	var ic importer.Config
	require.NoError(t, again.UnmarshalIntegration("importer", &ic))
	assert.Equal(t, "stock_", ic.FilePrefix)

	assert.Error(t, again.UnmarshalIntegration("nope", &ic))
}

func TestLoadOrCreate_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err := LoadOrCreate(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STOCKHUB_DB_DRIVER=postgres\nSTOCKHUB_REDIS_DB=3\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("STOCKHUB_DB_DRIVER")
		os.Unsetenv("STOCKHUB_REDIS_DB")
	})
	t.Setenv("STOCKHUB_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("STOCKHUB_KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("STOCKHUB_AUTO_START", "true")

	cfg := Default()
	cfg.ApplyEnv(envFile)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Events.RedisDB)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.KafkaBrokers)
	assert.True(t, cfg.AutoStart)
}
