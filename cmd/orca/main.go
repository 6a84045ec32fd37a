package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/orca/internal/logger"
	"github.com/FairForge/orca/internal/profile"
)

var version = "0.1.0-dev"

// app carries what every subcommand shares.
type app struct {
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "orca",
		Short: "Directory load simulation",
		Long: `orca drives a simulated population of persons against an identity
directory and measures the latency and outcome of every operation.

A run is prepared ahead of time: "orca generate" turns a profile into a state
file describing every person, its password and its behavior model. "orca run"
provisions the directory from that state and drives one actor per person.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			log, err := logger.New(level, format)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	rootCmd.PersistentFlags().String("log-level", profile.GetEnvOrDefault("ORCA_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", profile.GetEnvOrDefault("ORCA_LOG_FORMAT", logger.FormatConsole), "Log format (console, json)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newGenerateCmd(a),
		newInspectCmd(a),
		newRunCmd(a),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "orca version %s\n", version)
		},
	}
}
