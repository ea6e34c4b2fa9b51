package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"voicediary/internal/config"
	"voicediary/internal/daemon"
	"voicediary/internal/daemonrun"
	"voicediary/internal/logging"
	"voicediary/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and work directory contents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			running, err := daemonRunning(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
			if running {
				detail := "lock held"
				if pid := readPID(cfg); pid != "" {
					detail = "pid " + pid
				}
				fmt.Fprintln(out, renderStatusLine("Running", statusOK, detail, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Running", statusWarn, "not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Mode", statusInfo, cfg.Workflow.Mode, colorize))
			fmt.Fprintln(out, renderStatusLine("Delete on success", statusInfo, yesNo(cfg.Conversion.DeleteOnSuccess), colorize))
			fmt.Fprintln(out)

			storage := staging.New(cfg.Paths.WorkDir, logging.NewNop())
			usage := storage.DiskUsage()
			dirRows := [][]string{
				{"inbox", storage.InboxDir(), humanize.IBytes(uint64(usage.Inbox))},
				{"out", storage.OutputDir(), humanize.IBytes(uint64(usage.Output))},
				{"assets", storage.AssetsDir(), humanize.IBytes(uint64(usage.Assets))},
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Directory", "Path", "Size"},
				dirRows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
				[]string{"total", storage.WorkDir(), humanize.IBytes(uint64(usage.Work))},
			))

			inbox, err := storage.ListInbox()
			if err != nil {
				return fmt.Errorf("list inbox: %w", err)
			}
			fmt.Fprintln(out)
			if len(inbox) == 0 {
				fmt.Fprintln(out, "Inbox is empty")
			} else {
				fmt.Fprintln(out, renderTable([]string{"Inbox file", "Size", "Age"},
					fileRows(inbox), []columnAlignment{alignLeft, alignRight, alignRight}, nil))
			}

			outputs, err := storage.ListOutput()
			if err != nil {
				return fmt.Errorf("list outputs: %w", err)
			}
			if len(outputs) == 0 {
				fmt.Fprintln(out, "No rendered videos")
			} else {
				fmt.Fprintln(out, renderTable([]string{"Video", "Size", "Age"},
					fileRows(outputs), []columnAlignment{alignLeft, alignRight, alignRight}, nil))
			}
			return nil
		},
	}
}

func fileRows(files []staging.FileInfo) [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			f.Name,
			humanize.IBytes(uint64(f.Size)),
			humanize.RelTime(f.ModTime, now, "ago", "from now"),
		})
	}
	return rows
}

// daemonRunning probes the work directory lock without holding it.
func daemonRunning(cfg *config.Config) (bool, error) {
	lockPath := filepath.Join(cfg.Paths.WorkDir, daemon.LockFileName)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return false, nil
	}
	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func readPID(cfg *config.Config) string {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, daemonrun.PIDFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
