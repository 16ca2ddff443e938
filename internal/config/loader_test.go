package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60, cfg.Admission.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.Admission.DefaultWindow)
	assert.Equal(t, 0.85, cfg.Routing.Thresholds.Direct)
	assert.Equal(t, 0.65, cfg.Routing.Thresholds.Clarify)
	assert.Equal(t, 0.45, cfg.Routing.Thresholds.Confirm)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
admission:
  default_limit: 5
  default_window: 10s
  rules:
    - pattern: /v1/messages
      limit: 100
      window: 1m
    - pattern: /v1/admin/*
      limit: 10
      window: 30s
classifier:
  rules:
    - label: billing
      keywords: [invoice, refund, charge]
      weight: 1.0
routing:
  root: generalist
  nodes:
    - id: generalist
      description: general assistant
      accepts: ["*"]
    - id: billing
      description: billing concierge
      accepts: [billing]
      priority: 5
      escalation_path: [generalist]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Admission.DefaultLimit)
	assert.Equal(t, 10*time.Second, cfg.Admission.DefaultWindow)
	require.Len(t, cfg.Admission.Rules, 2)
	assert.Equal(t, "/v1/admin/*", cfg.Admission.Rules[1].Pattern)
	assert.Equal(t, 30*time.Second, cfg.Admission.Rules[1].Window)

	table, err := cfg.PolicyTable()
	require.NoError(t, err)
	assert.Equal(t, 100, table.Resolve("/v1/messages").Limit)
	assert.Equal(t, 10, table.Resolve("/v1/admin/keys").Limit)
	assert.Equal(t, 5, table.Resolve("/v1/other").Limit)

	rules, err := cfg.RuleTable()
	require.NoError(t, err)
	require.Len(t, rules.Rules(), 1)

	graph, err := cfg.Graph()
	require.NoError(t, err)
	assert.Equal(t, "generalist", graph.Root().ID)

	th, err := cfg.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, 0.85, th.Direct)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PARLEY_SERVER_PORT", "7070")
	t.Setenv("PARLEY_REDIS_ENABLED", "true")
	t.Setenv("PARLEY_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("PARLEY_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero limit": `
admission:
  default_limit: 0
`,
		"negative rule window": `
admission:
  rules:
    - pattern: /v1/messages
      limit: 10
      window: -5s
`,
		"inverted thresholds": `
routing:
  thresholds:
    direct: 0.4
    clarify: 0.65
    confirm: 0.45
`,
		"nodes without root": `
routing:
  nodes:
    - id: generalist
      accepts: ["*"]
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	good := writeConfigFile(t, "server:\n  port: 9001\n")
	cfg, err := Load(good)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Server.Port)

	bad := writeConfigFile(t, "admission:\n  default_limit: -1\n")
	_, err = Load(bad)
	require.Error(t, err)

	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, 9001, current.Server.Port)
}

func TestGraphValidationSurfacesCycles(t *testing.T) {
	path := writeConfigFile(t, `
routing:
  root: generalist
  nodes:
    - id: generalist
      accepts: ["*"]
    - id: a
      escalation_path: [b]
    - id: b
      escalation_path: [a]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.Graph()
	assert.Error(t, err)
}
