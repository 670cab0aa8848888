// Package cmd defines and implements the CLI commands for the reelrunner
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	development bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reelrunner",
		Short: "A multi-account short-video republishing orchestrator.",
		Long: `reelrunner rotates through a fleet of accounts, one per cycle: it
acquires a trending post from the account's feed, downloads the media,
rewrites and sanitizes the caption, re-encodes the video with the account's
watermark, and publishes it. State on disk makes the rotation crash-safe.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./reelrunner.yaml)")
	cmd.PersistentFlags().BoolVar(&development, "dev", false, "enable development logging")

	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
