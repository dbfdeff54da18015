package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	a := newApp()

	rootCmd := &cobra.Command{
		Use:   "rent",
		Short: "🏠 Rental property bookkeeping",
		Long: `the-rent-must-flow: classifies the bank transactions of rental properties into
a three-level accounting taxonomy and keeps depreciation schedules up to date.

The rent must flow!`,
		PersistentPreRunE: a.initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/rent/config.yaml)")
	flags.String("db", "", "database path (default: ~/.config/rent/rent.db)")
	flags.Int64("property", 0, "property to work on (default: property.default_id)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")

	a.bindFlag("database.path", flags.Lookup("db"))
	a.bindFlag("property.default_id", flags.Lookup("property"))
	a.bindFlag("logging.level", flags.Lookup("log-level"))
	a.bindFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(combinationsCmd(a))
	rootCmd.AddCommand(rulesCmd(a))
	rootCmd.AddCommand(transactionsCmd(a))
	rootCmd.AddCommand(reclassifyCmd(a))
	rootCmd.AddCommand(amortizationCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		if common.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "rent version %s\n", version)
			return err
		},
	}
}
