package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/five82/vidsample/internal/config"
	"github.com/five82/vidsample/internal/store"
)

var statusStorePath string

var statusCmd = &cobra.Command{
	Use:   "status <video>...",
	Short: "Show the stored progress of videos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusStorePath, "store", config.DefaultStoreName, "result database path")
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := store.Open(statusStorePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	out := cmd.OutOrStdout()
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid video path: %w", err)
		}
		last, ok, err := st.LastProcessedFrame(cmd.Context(), path)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "%s: no stored results\n", path)
			continue
		}
		rows, err := st.Results(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d frames stored, last frame %d (resume with --resume or --first-frame=%d)\n",
			path, len(rows), last, -last)
	}
	return nil
}
