package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.WS.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.WS.PongWait())
	assert.Equal(t, 32, cfg.WS.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.Calls.RingTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Presence.CoalesceWindow)
	assert.False(t, cfg.Calls.RejectBusy)
	assert.Equal(t, "drop", cfg.WS.SlowConsumer)
	assert.True(t, cfg.Metrics.Enabled)

	ice, err := cfg.ICEServers()
	require.NoError(t, err)
	require.Len(t, ice, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, ice[0].URLs)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
port: 9000
calls:
  ring_timeout: 5s
  reject_busy: true
ice:
  servers:
    - urls: ["turn:turn.example.com:3478?transport=udp"]
      username: alice
      credential: secret
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DISPATCH_PORT", "9100")
	t.Setenv("DISPATCH_WS_SLOW_CONSUMER", "kick")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Calls.RingTimeout)
	assert.True(t, cfg.Calls.RejectBusy)
	assert.Equal(t, "kick", cfg.WS.SlowConsumer)

	ice, err := cfg.ICEServers()
	require.NoError(t, err)
	require.Len(t, ice, 1)
	assert.Equal(t, "alice", ice[0].Username)
	assert.Equal(t, "secret", ice[0].Credential)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
port: 0
ws:
  slow_consumer: retry
auth:
  enabled: true
ice:
  servers:
    - urls: ["http://not-ice"]
`)
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "port 0 out of range")
	assert.Contains(t, msg, "slow_consumer")
	assert.Contains(t, msg, "auth.secret")
	assert.Contains(t, msg, "ice.servers[0]")
}

func TestLoadRejectsRateWithoutBudget(t *testing.T) {
	path := writeConfig(t, `
ws:
  messages_per_second: 5
  burst: 0
calls:
  initiate_limit: 3
  initiate_window: 0s
`)
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "ws.burst must be positive")
	assert.ErrorContains(t, err, "calls.initiate_window must be positive")
}

func TestLoadAllowsDisabledInboundLimit(t *testing.T) {
	path := writeConfig(t, `
ws:
  messages_per_second: 0
  burst: 0
`)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.WS.MessagesPerSecond)
}

func TestICEServersRequireURLs(t *testing.T) {
	cfg := &Config{ICE: ICEConfig{Servers: []ICEServer{{Username: "x"}}}}
	_, err := cfg.ICEServers()
	assert.ErrorContains(t, err, "no urls")
}
