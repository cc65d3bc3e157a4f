package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/peerchat/internal/client"
	"github.com/Tyrowin/peerchat/internal/server"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "peerchat-client <host> <port>",
	Short: "Connect to a peerchat server from the terminal",
	Long: `Connects to a peerchat server and relays lines between the terminal and
the server. Type /exit to leave.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(2)(cmd, args); err != nil {
			return err
		}
		_, err := server.ParsePort(args[1])
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		port, err := server.ParsePort(args[1])
		if err != nil {
			return err
		}
		addr := net.JoinHostPort(args[0], strconv.Itoa(port))
		logger := server.NewLogger(os.Stderr, logLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := client.Dial(ctx, addr, client.NewConsole(os.Stdout), logger)
		if err != nil {
			return err
		}
		return c.Run(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
