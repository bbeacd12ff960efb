package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"MEDINSIGHT_ORIGIN", "MEDINSIGHT_API_URL", "MEDINSIGHT_DB",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "MEDINSIGHT_DARK_MODE"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:5173", cfg.API.Origin)
	assert.Equal(t, "localhost:5173", cfg.API.DevHost)
	assert.Equal(t, "http://localhost:5000", cfg.API.DevBaseURL)
	assert.Equal(t, 3*time.Second, cfg.GetDismissAfter())
	assert.Equal(t, 5*time.Minute, cfg.GetOAuthTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.API.Origin = "https://medinsight.example.com"
	cfg.OAuth.ClientID = "client-123"
	cfg.Logging.DebugMode = true

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://medinsight.example.com", loaded.API.Origin)
	assert.Equal(t, "client-123", loaded.OAuth.ClientID)
	assert.True(t, loaded.Logging.DebugMode)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().API, cfg.API)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("api url and db", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEDINSIGHT_API_URL", "http://api.internal:5000")
		t.Setenv("MEDINSIGHT_DB", "/tmp/medinsight.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://api.internal:5000", cfg.API.BaseURL)
		assert.Equal(t, "/tmp/medinsight.db", cfg.Storage.Path)
		assert.Equal(t, "/tmp", cfg.DataDir())
	})

	t.Run("oauth client", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_CLIENT_ID", "gid")
		t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")

		cfg := DefaultConfig()
		assert.Error(t, cfg.ValidateOAuth())
		cfg.applyEnvOverrides()

		assert.Equal(t, "gid", cfg.OAuth.ClientID)
		assert.Equal(t, "gsecret", cfg.OAuth.ClientSecret)
		assert.NoError(t, cfg.ValidateOAuth())
	})

	t.Run("dark mode", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEDINSIGHT_DARK_MODE", "1")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "dark", cfg.UI.Theme)
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UI.Theme = "neon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.API.Origin = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Storage.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.OAuth.CallbackPort = 70000
	assert.Error(t, cfg.Validate())
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Notify.DismissAfter = "garbage"
	cfg.OAuth.Timeout = "-1s"
	assert.Equal(t, 3*time.Second, cfg.GetDismissAfter())
	assert.Equal(t, 5*time.Minute, cfg.GetOAuthTimeout())
}
