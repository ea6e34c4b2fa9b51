package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voicediary/internal/deps"
	"voicediary/internal/logging"
	"voicediary/internal/preflight"
	"voicediary/internal/staging"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify credentials, directories, and external services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failures := 0

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, ctx.configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Mode", statusInfo, cfg.Workflow.Mode, colorize))
			if err := cfg.ValidateGateway(); err != nil {
				failures++
				fmt.Fprintln(out, renderStatusLine("Discord credentials", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Discord credentials", statusOK, "channel "+cfg.Discord.ChannelID, colorize))
			}
			notify := "disabled"
			if cfg.Notifications.NtfyTopic != "" {
				notify = "enabled"
			}
			fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, notify, colorize))

			statuses := preflight.CheckSystemDeps(cfg)
			if len(statuses) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
				for _, status := range statuses {
					fmt.Fprintln(out, dependencyLine(status, colorize))
				}
				failures += len(deps.MissingRequired(statuses))
			}

			storage := staging.New(cfg.Paths.WorkDir, logging.NewNop())
			if err := storage.EnsureLayout(); err != nil {
				return fmt.Errorf("prepare work directory: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Preflight", colorize))
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			failures += len(preflight.Failed(results))

			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func dependencyLine(status deps.Status, colorize bool) string {
	if status.Available {
		return renderStatusLine(status.Name, statusOK, status.Command, colorize)
	}
	kind := statusError
	if status.Optional {
		kind = statusWarn
	}
	detail := status.Detail
	if status.Description != "" {
		detail = fmt.Sprintf("%s (%s)", detail, status.Description)
	}
	return renderStatusLine(status.Name, kind, detail, colorize)
}
