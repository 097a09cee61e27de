package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"posterd/internal/infra"
)

var (
	verbose bool
	timeout time.Duration
)

// rootCmd runs the poster pipeline and engine diagnostics without the API or the queue.
var rootCmd = &cobra.Command{
	Use:           "posterctl",
	Short:         "Run image2poster jobs and inspect the execution engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	engineCmd.AddCommand(engineQueueCmd)
	engineCmd.AddCommand(engineHistoryCmd)
	keysCmd.AddCommand(keysSetCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(engineCmd)
	rootCmd.AddCommand(keysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and a logger for one command invocation.
func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *infra.Config, *infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	env := cfg.AppEnv
	if verbose {
		env = "development"
	}
	logger := infra.NewLogger(env).Output(cmd.ErrOrStderr())
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, cfg, &logger, nil
}
