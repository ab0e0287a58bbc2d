package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sstent/gearcron/internal/cron"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gearcron",
	Short: "gearcron collects Punting Form gear changes once a day",
	Long: `gearcron is a CLI application that:
1. Fetches today's gear changes for the Melbourne racing date
2. Records every run in logs/gear_cron.<date>.log
3. Keeps report snapshots in SQLite
4. Serves gear reports over HTTP`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return exitCode(rootCmd.ExecuteContext(ctx), os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *cron.ExitError
	if errors.As(err, &exitErr) {
		// Already written to the run log and terminal by the invoker.
		if exitErr.Code == 0 {
			return 1
		}
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./gearcron.yaml)")
}
