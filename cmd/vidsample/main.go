// Package main provides the CLI entry point for vidsample.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "vidsample"
	appVersion = "0.1.0"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Sample video frames at a target rate and store per-frame analysis",
	Long: `vidsample decodes a video, analyses one frame out of every N so that the
processing rate matches a target fps, and stores the per-frame results in a
SQLite database. Results are saved every 500 analysed frames so an
interrupted run can be resumed with --resume.

Configuration is read, in increasing precedence, from:
  1. vidsample.yaml in the working directory or $HOME/.config/vidsample
     (or the file given with --config)
  2. VIDSAMPLE_* environment variables (e.g. VIDSAMPLE_TARGET_FPS)
  3. command-line flags`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./vidsample.yaml)")

	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
