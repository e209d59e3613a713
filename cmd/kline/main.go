// Command kline computes life K-line timelines from chart fixtures and
// serves them over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/kline/internal/config"
	"github.com/okian/kline/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Configuration and logging are set up
// before any subcommand runs.
func newRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "kline",
		Short:         "Life K-line fortune timelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = *loaded
			return logger.InitWithOptions(logger.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Writer: cmd.ErrOrStderr(),
			})
		},
	}
	root.AddCommand(
		serveCmd(&cfg),
		sampleCmd(),
		timelineCmd(&cfg),
		seriesCmd(&cfg, "decades"),
		seriesCmd(&cfg, "years"),
		seriesCmd(&cfg, "months"),
	)
	return root
}
