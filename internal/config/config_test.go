package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, 10*time.Second, cfg.Store.FetchTimeout)
	assert.Equal(t, "5 0 * * *", cfg.Jobs.SnapshotSpec)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address())
	assert.Equal(t, []string{"*"}, cfg.Server.Origins())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_TYPE", "postgres")
	t.Setenv("STORE_HOST", "db")
	t.Setenv("STORE_PASS", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:8100, capacitor://localhost")
	t.Setenv("DIRECTORY_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://cardfolio:secret@db:5432/cardfolio?sslmode=disable", cfg.Store.PostgresDSN())
	assert.Equal(t, "cardfolio:secret@tcp(db:3306)/cardfolio?parseTime=true", cfg.Store.MySQLDSN())
	assert.Equal(t, []string{"http://localhost:8100", "capacitor://localhost"}, cfg.Server.Origins())
	assert.Equal(t, 30*time.Second, cfg.Directory.TTL)
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE_TYPE", "firestore")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_TYPE")
}
