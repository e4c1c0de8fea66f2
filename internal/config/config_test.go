package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/erpdir")
	for _, k := range []string{"APP_PORT", "OPTIONS_PAGE_SIZE", "SEARCH_DEBOUNCE", "SCHEMA_CACHE_ENABLED", "CASCADE_MAX_DEPTH"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 50, cfg.OptionsPageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	assert.Equal(t, 16, cfg.CascadeMaxDepth)
	assert.True(t, cfg.SchemaCacheEnabled)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/erpdir")
	t.Setenv("OPTIONS_PAGE_SIZE", "25")
	t.Setenv("SEARCH_DEBOUNCE", "1s")
	t.Setenv("SCHEMA_CACHE_ENABLED", "false")
	t.Setenv("RELATION_MAX_DEPTH", "not-a-number")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.OptionsPageSize)
	assert.Equal(t, time.Second, cfg.SearchDebounce)
	assert.False(t, cfg.SchemaCacheEnabled)
	assert.Equal(t, 8, cfg.RelationMaxDepth)
}

func TestFromEnv_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://file/db\nAPP_PORT=9090\n"), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("APP_PORT", "")
	os.Unsetenv("APP_PORT")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
