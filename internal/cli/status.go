package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joebot/peerchat/internal/config"
)

// RunStatus displays the current configuration status with styled output.
func RunStatus(ctx context.Context, cfg *config.Config) {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s peerchat Status", Logo)))
	fmt.Println()

	fmt.Printf("  %-12s %s  %s\n", "Config", StatusBadge(fileExists(cfgPath)), DimStyle.Render(cfgPath))
	logPath := LogPath()
	fmt.Printf("  %-12s %s  %s\n", "Log", StatusBadge(fileExists(logPath)), DimStyle.Render(logPath))
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Broker"))
	fmt.Printf("    %-10s %s\n", "URL", cfg.Broker.URL)
	health, err := HealthURL(cfg.Broker.URL)
	reachable := err == nil && checkHealth(ctx, health)
	fmt.Printf("    %-10s %s  %s\n", "Reachable", StatusBadge(reachable), DimStyle.Render(health))
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Relay"))
	fmt.Printf("    %-10s %s\n", "Listen", cfg.Relay.Addr)
	fmt.Printf("    %-10s %d bytes\n", "Max frame", cfg.Relay.MaxMessageBytes)
	fmt.Printf("    %-10s %s\n", "Ping", cfg.Relay.PingInterval())
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("UI"))
	fmt.Printf("    %-10s %s %s\n", "Time", cfg.UI.TimeFormat, DimStyle.Render("("+time.Now().Format(cfg.UI.TimeFormat)+")"))
	fmt.Printf("    %s  Alt screen\n", StatusBadge(cfg.UI.AltScreen))
	fmt.Println()
}

// HealthURL maps a broker WebSocket URL to the relay's health endpoint.
func HealthURL(brokerURL string) (string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/peerjs") + "/healthz"
	u.RawQuery = ""
	return u.String(), nil
}

func checkHealth(ctx context.Context, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// LogPath is where the chat TUI writes its log.
func LogPath() string {
	return filepath.Join(config.DataDir(), "peerchat.log")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
