package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"postgres_db": {"dsn": {"host": "localhost", "port": 5432, "dbname": "movies", "user": "app", "password": "secret"}},
		"es_db": {"dsn": {"host": "localhost", "port": 9200, "dbname": "movies"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, 30*time.Second, cfg.SyncIntervalDuration())
	require.Equal(t, "storage.json", cfg.StateFilePath)
	require.Equal(t, 100*time.Millisecond, cfg.PostgresDB.MinDelay())
	require.NotEmpty(t, cfg.PostgresDSN())
	require.Equal(t, "http://localhost:9200", cfg.SearchBaseURL())
}

func TestLoad_OverridesAndBatchSize(t *testing.T) {
	path := writeConfig(t, `{
		"postgres_db": {"dsn": {"host": "db", "port": 5432, "dbname": "movies", "user": "app", "password": "s"},
			"min_backoff_delay": 0.5, "max_backoff_delay": 8, "total_backoff_time": 45},
		"es_db": {"dsn": {"host": "es", "port": 9200, "dbname": "movies"}},
		"batch_size": 50,
		"sync_interval": 5
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.BatchSize)
	require.Equal(t, 45*time.Second, cfg.PostgresDB.Budget())
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoad_MissingRequiredFieldIsFatal(t *testing.T) {
	path := writeConfig(t, `{"postgres_db": {"dsn": {"port": 5432}}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MalformedJSONIsFatal(t *testing.T) {
	path := writeConfig(t, `{not valid json`)
	_, err := Load(path)
	require.Error(t, err)
}
