package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joebot/peerchat/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
	assert.Equal(t, 10*time.Second, cfg.Broker.HandshakeTimeout())
	assert.Equal(t, 30*time.Second, cfg.Relay.PingInterval())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"broker":{"url":"wss://relay.example.com/peerjs"},"log":{"level":"debug"}}`)
	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example.com/peerjs", cfg.Broker.URL)
	assert.Equal(t, 10, cfg.Broker.HandshakeTimeoutS)
	assert.Equal(t, ":9000", cfg.Relay.Addr)
	assert.Equal(t, "15:04", cfg.UI.TimeFormat)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"broker":{"url":"ws://file:9000/peerjs"}}`)
	t.Setenv("PEERCHAT_BROKER_URL", "ws://env:9100/peerjs")
	t.Setenv("PEERCHAT_RELAY_ADDR", "127.0.0.1:9100")
	t.Setenv("PEERCHAT_TIME_FORMAT", "3:04PM")

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://env:9100/peerjs", cfg.Broker.URL)
	assert.Equal(t, "127.0.0.1:9100", cfg.Relay.Addr)
	assert.Equal(t, "3:04PM", cfg.UI.TimeFormat)
}

func TestValidateRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `{
		"broker":{"url":"not a url","handshakeTimeoutSeconds":-5},
		"relay":{"addr":"nowhere"},
		"log":{"level":"loud"}
	}`)

	_, err := config.LoadFrom(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "broker.url")
	assert.Contains(t, msg, "broker.handshakeTimeoutSeconds must be at least 0")
	assert.Contains(t, msg, "relay.addr must be host:port")
	assert.Contains(t, msg, "log.level must be one of")
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `{"broker":{"url":"ws://x:1/peerjs","token":"abc"},"channels":{}}`)
	_, err := config.LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.token")
	assert.Contains(t, err.Error(), "channels")
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"broker":`)
	cfg, err := config.LoadFrom(path)
	require.Error(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestSaveThenLoad(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Broker.URL = "ws://10.0.0.2:9000/peerjs"
	cfg.UI.AltScreen = false

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, config.SaveTo(cfg, path))

	loaded, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestUpgradeKeepsLocalValuesAndDropsUnknown(t *testing.T) {
	path := writeConfig(t, `{"broker":{"url":"ws://mine:1/peerjs"},"legacy":{"x":1}}`)

	cfg, err := config.UpgradeAt(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://mine:1/peerjs", cfg.Broker.URL)
	assert.Equal(t, ":9000", cfg.Relay.Addr)

	reloaded, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}
