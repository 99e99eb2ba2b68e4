// Package cmd defines the CLI commands for the nidus-scraper executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Each call returns fresh flag state so
// tests can execute it repeatedly.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "nidus-scraper",
		Short: "Acquires robot descriptions, manuals and standards for the Nidus corpus.",
		Long: `nidus-scraper downloads URDF/SDF/xacro files from GitHub, vendor PDF
manuals, XML schemas and rendered documentation pages into a local data
directory, recording every saved file in an append-only manifest.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(&cfgFile))
	return cmd
}

// Execute runs the root command until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
