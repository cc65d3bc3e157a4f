package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/peerchat/internal/server"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peerchat-server <port>",
		Short: "Run the peerchat server",
		Long: `Runs a line-based multi-user chat server on the given TCP port.

Clients pick a unique nickname, then every line they send is broadcast to the
other peers. Lines starting with @nick are private messages and lines starting
with / are server commands (/help lists them).

Flags override the PEERCHAT_* environment variables.`,
		Args: validatePortArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServer(cmd, args[0])
		},
	}

	flags := cmd.Flags()
	flags.String("ws-addr", "", "HTTP address for the WebSocket transport, e.g. :8080 (disabled when empty)")
	flags.Bool("shutdown-when-empty", false, "Stop the server when the last peer leaves")
	flags.Bool("notify-last-peer", true, "Tell the remaining peer when it is alone")
	flags.Bool("announce-presence", false, "Broadcast join and leave notices")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")

	return cmd
}

func validatePortArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := server.ParsePort(args[0])
	return err
}

// buildConfig layers explicitly set flags over the environment.
func buildConfig(cmd *cobra.Command, portArg string) (*server.Config, error) {
	port, err := server.ParsePort(portArg)
	if err != nil {
		return nil, err
	}

	cfg := server.NewConfigFromEnv()
	cfg.Port = port

	flags := cmd.Flags()
	if flags.Changed("ws-addr") {
		cfg.WebSocketAddr, _ = flags.GetString("ws-addr")
	}
	if flags.Changed("shutdown-when-empty") {
		cfg.ShutdownWhenEmpty, _ = flags.GetBool("shutdown-when-empty")
	}
	if flags.Changed("notify-last-peer") {
		cfg.NotifyLastPeer, _ = flags.GetBool("notify-last-peer")
	}
	if flags.Changed("announce-presence") {
		cfg.AnnouncePresence, _ = flags.GetBool("announce-presence")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg.Sanitize(), nil
}

func runServer(cmd *cobra.Command, portArg string) error {
	cfg, err := buildConfig(cmd, portArg)
	if err != nil {
		return err
	}

	logger := server.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}
	return nil
}
