package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 800*time.Millisecond, cfg.Demo.ThinkDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Demo.PaymentThinkDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Demo.SettleDelay)
	assert.Equal(t, 10*time.Second, cfg.Demo.PaymentTimeout)
	assert.Equal(t, 3, cfg.Demo.MaxRounds)
	assert.Equal(t, ResolverScript, cfg.Resolver.Mode)
	assert.Equal(t, AgentsCanned, cfg.Agents.Mode)
	assert.Equal(t, 1200*time.Millisecond, cfg.Agents.Latency)
	assert.False(t, cfg.Journal.MinIO.Enabled)
	assert.False(t, cfg.Journal.AMQP.Enabled)
	assert.Equal(t, "nexus-tui.log", cfg.Log.File)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	content := `
demo:
  think_delay: 10ms
  payment_timeout: 2s
agents:
  mode: http
  base_url: http://agents.local
journal:
  amqp:
    enabled: true
    exchange: demo.turns
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.Demo.ThinkDelay)
	assert.Equal(t, 2*time.Second, cfg.Demo.PaymentTimeout)
	assert.Equal(t, AgentsHTTP, cfg.Agents.Mode)
	assert.Equal(t, "http://agents.local", cfg.Agents.BaseURL)
	assert.True(t, cfg.Journal.AMQP.Enabled)
	assert.Equal(t, "demo.turns", cfg.Journal.AMQP.Exchange)
	// untouched keys keep defaults
	assert.Equal(t, 1500*time.Millisecond, cfg.Demo.SettleDelay)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("NEXUS_DEMO_MAX_ROUNDS", "5")
	t.Setenv("NEXUS_HTTP_ADDR", "0.0.0.0:9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Demo.MaxRounds)
	assert.Equal(t, "0.0.0.0:9999", cfg.HTTP.Addr)
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("NEXUS_RESOLVER_MODE", "oracle")
	_, err := Load("")
	require.ErrorContains(t, err, "unknown resolver mode")
}

func TestValidateGeminiNeedsKey(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("NEXUS_RESOLVER_MODE", ResolverGemini)
	_, err := Load("")
	require.ErrorContains(t, err, "api_key")

	t.Setenv("NEXUS_RESOLVER_API_KEY", "k")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.Resolver.APIKey)
}

func TestValidateClamps(t *testing.T) {
	cfg := Config{
		Demo:     DemoConfig{ThinkDelay: -time.Second, PaymentTimeout: time.Millisecond, MaxRounds: 0},
		Resolver: ResolverConfig{Mode: ResolverScript, Retry: RetryNone},
		Agents:   AgentsConfig{Mode: AgentsCanned},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Duration(0), cfg.Demo.ThinkDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Demo.PaymentTimeout)
	assert.Equal(t, 1, cfg.Demo.MaxRounds)
	assert.Equal(t, 1, cfg.Journal.Buffer)
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir for Go < 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
