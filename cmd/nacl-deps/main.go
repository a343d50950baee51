package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	profileName string
	logLevel    string
	rootCmd     = &cobra.Command{
		Use:   "nacl-deps",
		Short: "Keep a downstream DEPS pin up to date with its upstream",
		Long: `nacl-deps rewrites the upstream revision pinned in a downstream manifest,
commits the change on a fresh branch, uploads it for review and starts try
jobs. The check and watch commands decide when a new attempt is due.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "profile to use (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, none")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
