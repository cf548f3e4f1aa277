package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	for _, k := range []string{"DB_PATH", "DB_NAME", "SERVER_PORT", "INSERT_BATCH_HIGH_WATER", "INSERT_BATCH_INTERVAL_MS", "CHANGES_BATCH_SIZE"} {
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg := LoadConfig()

	assert.Equal(t, "./data/litesync.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "litesync", cfg.Storage.DatabaseName)
	assert.Equal(t, 4984, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Replication.InsertBatchHighWater)
}

func TestLoadConfig_EnvVars(t *testing.T) {
	clearEnv()
	os.Setenv("DB_PATH", "/tmp/test.db")
	os.Setenv("DB_NAME", "testdb")
	os.Setenv("SERVER_PORT", "9090")
	defer clearEnv()

	cfg := LoadConfig()

	assert.Equal(t, "/tmp/test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "testdb", cfg.Storage.DatabaseName)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfig_FileOverride(t *testing.T) {
	clearEnv()
	require.NoError(t, os.Mkdir("config", 0755))
	defer os.RemoveAll("config")

	configContent := []byte(`
storage:
  database_path: "/srv/file.db"
  database_name: "filedb"
server:
  port: 7070
`)
	require.NoError(t, os.WriteFile("config/config.yml", configContent, 0644))

	cfg := LoadConfig()

	assert.Equal(t, "/srv/file.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "filedb", cfg.Storage.DatabaseName)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfig_LocalFileOverride(t *testing.T) {
	clearEnv()
	require.NoError(t, os.Mkdir("config", 0755))
	defer os.RemoveAll("config")

	require.NoError(t, os.WriteFile("config/config.yml", []byte(`
storage:
  database_path: "/srv/file.db"
  database_name: "filedb"
server:
  port: 7070
`), 0644))

	require.NoError(t, os.WriteFile("config/config.local.yml", []byte(`
storage:
  database_path: "/srv/local.db"
`), 0644))

	cfg := LoadConfig()

	assert.Equal(t, "/srv/local.db", cfg.Storage.DatabasePath) // overridden
	assert.Equal(t, "filedb", cfg.Storage.DatabaseName)        // inherited
	assert.Equal(t, 7070, cfg.Server.Port)                     // inherited
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearEnv()
	require.NoError(t, os.Mkdir("config", 0755))
	defer os.RemoveAll("config")

	require.NoError(t, os.WriteFile("config/config.yml", []byte(`
storage:
  database_path: "/srv/file.db"
`), 0644))

	os.Setenv("DB_PATH", "/srv/env.db")
	defer clearEnv()

	cfg := LoadConfig()

	assert.Equal(t, "/srv/env.db", cfg.Storage.DatabasePath)
}
