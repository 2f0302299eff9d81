package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joebot/peerchat/internal/broker"
	"github.com/joebot/peerchat/internal/cli"
	"github.com/joebot/peerchat/internal/config"
	"github.com/joebot/peerchat/internal/logging"
	"github.com/joebot/peerchat/internal/relay"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "peerchat",
		Short:         "One-to-one terminal chat over a peer broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	root.AddCommand(newChatCmd(), newRelayCmd(), newStatusCmd(), newOnboardCmd(), newVersionCmd())
	return root
}

// --- chat command ---

func newChatCmd() *cobra.Command {
	var (
		local     bool
		brokerURL string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustLoadConfig()
			if brokerURL != "" {
				cfg.Broker.URL = brokerURL
			}

			closeLog := logging.ToFile(cli.LogPath(), cfg.Log.SlogLevel())
			defer closeLog()

			var dialer broker.Dialer
			name := cfg.Broker.URL
			if local {
				network := broker.NewNetwork()
				echo := broker.StartEcho(network, broker.EchoID)
				defer echo.Close()
				dialer = network
				name = "in-process broker, peer " + broker.EchoID + " echoes"
			} else {
				dialer = broker.NewWebSocketDialer(cfg.Broker.URL, cfg.Broker.HandshakeTimeout())
			}
			slog.Info("Chat starting", "broker", name)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err := cli.RunChat(ctx, dialer, cli.ChatConfig{
				Broker:          name,
				TimeFormat:      cfg.UI.TimeFormat,
				AltScreen:       cfg.UI.AltScreen,
				MaxMessageBytes: int(cfg.Relay.MaxMessageBytes) - broker.FrameOverhead,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("Error: "+err.Error()))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "use an in-process broker with an echo peer instead of the relay")
	cmd.Flags().StringVar(&brokerURL, "broker", "", "relay WebSocket URL (overrides broker.url)")
	return cmd
}

// --- relay command ---

func newRelayCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the peer broker relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustLoadConfig()
			if addr != "" {
				cfg.Relay.Addr = addr
			}
			logging.ToStderr(cfg.Log.SlogLevel())

			fmt.Println()
			fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s peerchat Relay", cli.Logo)))
			fmt.Println()
			fmt.Println("  " + cli.OkStyle.Render("✓") + " Listening on " + cfg.Relay.Addr)
			fmt.Println(cli.DimStyle.Render("  Press Ctrl+C to stop"))
			fmt.Println()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv := relay.New(relay.Options{
				MaxMessageBytes: cfg.Relay.MaxMessageBytes,
				PingInterval:    cfg.Relay.PingInterval(),
			})
			if err := srv.ListenAndServe(ctx, cfg.Relay.Addr); err != nil {
				slog.Error("Relay stopped", "err", err)
				return err
			}
			fmt.Println("\n  Shutting down...")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides relay.addr)")
	return cmd
}

// --- status, onboard, version ---

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cli.RunStatus(cmd.Context(), mustLoadConfig())
		},
	}
}

func newOnboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Initialize setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunOnboard()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cli.TitleStyle.Render(
				fmt.Sprintf("  %s peerchat v%s", cli.Logo, cli.Version),
			))
		},
	}
}

// --- helpers ---

// mustLoadConfig falls back to defaults when the file is unusable, after
// saying so.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
		if cfg == nil {
			cfg = config.DefaultConfig()
		}
	}
	return cfg
}
