package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("SAGE_MAX_RESULTS", "")
	t.Setenv("REQUIRE_AUTH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "localhost", cfg.DB.Host)
	require.Equal(t, 5432, cfg.DB.Port)
	require.Equal(t, 10, cfg.MaxResults)
	require.False(t, cfg.RequireAuth)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SAGE_MAX_RESULTS", "25")
	t.Setenv("REQUIRE_AUTH", "true")
	t.Setenv("SILICONFLOW_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "db.internal", cfg.DB.Host)
	require.Equal(t, 6543, cfg.DB.Port)
	require.Equal(t, 25, cfg.MaxResults)
	require.True(t, cfg.RequireAuth)
	require.Equal(t, "sk-test", cfg.APIKey)
}

func TestConfig_RedactedHidesSecrets(t *testing.T) {
	cfg := Config{APIKey: "sk-real", AuthToken: "tok-real"}
	cfg.DB.Password = "hunter2"

	redacted := cfg.Redacted()
	require.NotEqual(t, "sk-real", redacted.APIKey)
	require.NotEqual(t, "tok-real", redacted.AuthToken)
	require.NotEqual(t, "hunter2", redacted.DB.Password)
	require.Equal(t, "sk-real", cfg.APIKey, "original must be untouched")
}
