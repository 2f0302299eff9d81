package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. PEERCHAT_BROKER_URL.
const EnvPrefix = "PEERCHAT"

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(homeDir(), ".peerchat", "config.json")
}

// DataDir returns the peerchat data directory, creating it if needed.
func DataDir() string {
	dir := filepath.Join(homeDir(), ".peerchat")
	os.MkdirAll(dir, 0o755)
	return dir
}

// Load reads configuration from disk, falling back to defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads configuration from a specific path, applies environment
// overrides and validates the result. On error the returned Config is
// still usable (defaults plus whatever was read).
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if len(data) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if unknown := CheckUnknownFields(raw); len(unknown) > 0 {
			return cfg, fmt.Errorf("unknown config fields: %s", strings.Join(unknown, ", "))
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("apply config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := ApplyEnv(cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// envOverrides are read from PEERCHAT_* variables.
type envOverrides struct {
	BrokerURL  string `envconfig:"BROKER_URL"`
	RelayAddr  string `envconfig:"RELAY_ADDR"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
	TimeFormat string `envconfig:"TIME_FORMAT"`
}

// ApplyEnv overlays PEERCHAT_* environment variables on cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.BrokerURL != "" {
		cfg.Broker.URL = env.BrokerURL
	}
	if env.RelayAddr != "" {
		cfg.Relay.Addr = env.RelayAddr
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.TimeFormat != "" {
		cfg.UI.TimeFormat = env.TimeFormat
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	d := DefaultConfig()
	if cfg.Broker.URL == "" {
		cfg.Broker.URL = d.Broker.URL
	}
	if cfg.Broker.HandshakeTimeoutS == 0 {
		cfg.Broker.HandshakeTimeoutS = d.Broker.HandshakeTimeoutS
	}
	if cfg.Relay.Addr == "" {
		cfg.Relay.Addr = d.Relay.Addr
	}
	if cfg.Relay.MaxMessageBytes == 0 {
		cfg.Relay.MaxMessageBytes = d.Relay.MaxMessageBytes
	}
	if cfg.Relay.PingIntervalS == 0 {
		cfg.Relay.PingIntervalS = d.Relay.PingIntervalS
	}
	if cfg.UI.TimeFormat == "" {
		cfg.UI.TimeFormat = d.UI.TimeFormat
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
}

// Save writes configuration to disk.
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes configuration to a specific path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// Upgrade reads the existing config file, deep-merges it on top of
// DefaultConfig (local values win), and saves the result.
func Upgrade() (*Config, error) {
	return UpgradeAt(ConfigPath())
}

// UpgradeAt is Upgrade for a specific path.
func UpgradeAt(path string) (*Config, error) {
	defaultData, _ := json.Marshal(DefaultConfig())
	var defaultMap map[string]any
	json.Unmarshal(defaultData, &defaultMap)

	localData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var localMap map[string]any
	if err := json.Unmarshal(localData, &localMap); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fields this version no longer knows are dropped.
	merged := deepMerge(defaultMap, localMap)
	for _, key := range CheckUnknownFields(merged) {
		deletePath(merged, strings.Split(key, "."))
	}

	cfg := DefaultConfig()
	reData, _ := json.Marshal(merged)
	if err := json.Unmarshal(reData, cfg); err != nil {
		return nil, fmt.Errorf("apply merged config: %w", err)
	}

	if err := SaveTo(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deepMerge recursively merges src into dst. Values from src take priority.
func deepMerge(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst))
	for k, v := range dst {
		result[k] = v
	}
	for k, srcVal := range src {
		dstVal, exists := result[k]
		if !exists {
			result[k] = srcVal
			continue
		}
		dstMap, dstOK := dstVal.(map[string]any)
		srcMap, srcOK := srcVal.(map[string]any)
		if dstOK && srcOK {
			result[k] = deepMerge(dstMap, srcMap)
		} else {
			result[k] = srcVal
		}
	}
	return result
}

func deletePath(m map[string]any, path []string) {
	if len(path) == 1 {
		delete(m, path[0])
		return
	}
	if next, ok := m[path[0]].(map[string]any); ok {
		deletePath(next, path[1:])
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return home
}
