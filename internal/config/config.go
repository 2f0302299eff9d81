package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for peerchat.
type Config struct {
	Broker BrokerConfig `json:"broker"`
	Relay  RelayConfig  `json:"relay"`
	UI     UIConfig     `json:"ui"`
	Log    LogConfig    `json:"log"`
}

// BrokerConfig tells the chat client where the relay is.
type BrokerConfig struct {
	URL               string `json:"url" validate:"required,url"`
	HandshakeTimeoutS int    `json:"handshakeTimeoutSeconds" validate:"gte=0"`
}

// HandshakeTimeout returns the WebSocket dial timeout.
func (b BrokerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(b.HandshakeTimeoutS) * time.Second
}

// RelayConfig holds settings for `peerchat relay`.
type RelayConfig struct {
	Addr            string `json:"addr" validate:"required,hostname_port"`
	MaxMessageBytes int64  `json:"maxMessageBytes" validate:"gte=0"`
	PingIntervalS   int    `json:"pingIntervalSeconds" validate:"gte=0"`
}

// PingInterval returns the keepalive period.
func (r RelayConfig) PingInterval() time.Duration {
	return time.Duration(r.PingIntervalS) * time.Second
}

// UIConfig holds terminal UI settings.
type UIConfig struct {
	TimeFormat string `json:"timeFormat"`
	AltScreen  bool   `json:"altScreen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn error"`
}

// SlogLevel maps Level to a slog level. Unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:               "ws://localhost:9000/peerjs",
			HandshakeTimeoutS: 10,
		},
		Relay: RelayConfig{
			Addr:            ":9000",
			MaxMessageBytes: 64 << 10,
			PingIntervalS:   30,
		},
		UI: UIConfig{
			TimeFormat: "15:04",
			AltScreen:  true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
