package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axiom-run/shell/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AXIOM_HTTP_ADDR", "")
	t.Setenv("AXIOM_LOG_LEVEL", "")
	t.Setenv("AXIOM_CCP_BASE_URL", "")
	t.Setenv("AXIOM_UPSTREAM_RPS", "")
	t.Setenv("AXIOM_DOWNSTREAM_RPS", "")
	t.Setenv("AXIOM_RETRY_UNSAFE_METHODS", "")

	cfg := config.Load()

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, float64(100), cfg.UpstreamRPS)
	assert.Equal(t, float64(10), cfg.DownstreamRPS)
	assert.False(t, cfg.RetryUnsafeMethods)
	assert.Contains(t, cfg.RegistryPath, ".axiom")
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AXIOM_HTTP_ADDR", ":9001")
	t.Setenv("AXIOM_LOG_LEVEL", "debug")
	t.Setenv("AXIOM_CCP_BASE_URL", "http://ccp.internal:9100")
	t.Setenv("AXIOM_UPSTREAM_RPS", "50")
	t.Setenv("AXIOM_RETRY_UNSAFE_METHODS", "true")

	cfg := config.Load()

	assert.Equal(t, ":9001", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://ccp.internal:9100", cfg.CCPBaseURL)
	assert.Equal(t, float64(50), cfg.UpstreamRPS)
	assert.True(t, cfg.RetryUnsafeMethods)
}
