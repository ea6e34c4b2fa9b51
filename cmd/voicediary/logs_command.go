package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"voicediary/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "voicediary.log")
			out := cmd.OutOrStdout()
			runCtx := cmd.Context()

			opts := logs.Options{Offset: -1, Limit: lines, JobID: jobID}
			if lines <= 0 {
				opts = logs.Options{Offset: 0, JobID: jobID}
			}
			printed := false
			for {
				result, err := logs.Tail(runCtx, path, opts)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("tail logs: %w", err)
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				if runCtx.Err() != nil {
					return nil
				}
				opts = logs.Options{Offset: result.Offset, Follow: true, Wait: followWait, JobID: jobID}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show records for this job id")
	return cmd
}
