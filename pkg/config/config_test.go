package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "fhir-relay", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.TokenCache, "token caching is disabled by default")
}

func TestLoad_TokenURLDerivedFromTenant(t *testing.T) {
	t.Setenv("FHIR_TENANT_ID", "my-tenant")
	t.Setenv("FHIR_TOKEN_URL", "")

	cfg := Load()

	assert.Equal(t, "https://login.microsoftonline.com/my-tenant/oauth2/v2.0/token", cfg.TokenURL)
}

func TestLoad_ExplicitTokenURLWins(t *testing.T) {
	t.Setenv("FHIR_TENANT_ID", "my-tenant")
	t.Setenv("FHIR_TOKEN_URL", "https://idp.example/token")

	cfg := Load()

	assert.Equal(t, "https://idp.example/token", cfg.TokenURL)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "abc")
	t.Setenv("X_INT", "42")
	t.Setenv("X_BOOL", "true")
	t.Setenv("X_DUR", "90s")

	assert.Equal(t, "abc", GetEnv("X_STR", "def"))
	assert.Equal(t, "def", GetEnv("X_MISSING", "def"))
	assert.Equal(t, 42, GetEnvInt("X_INT", 1))
	assert.Equal(t, 1, GetEnvInt("X_MISSING", 1))
	assert.True(t, GetEnvBool("X_BOOL", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("X_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("X_MISSING", time.Second))
}
