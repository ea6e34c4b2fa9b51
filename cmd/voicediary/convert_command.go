package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"voicediary/internal/config"
	"voicediary/internal/deps"
	"voicediary/internal/encoding"
	"voicediary/internal/fileutil"
	"voicediary/internal/services"
	"voicediary/internal/staging"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "convert <audio-file>",
		Short: "Render a local audio file as a still-image video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger(cmd, cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			storage := staging.New(cfg.Paths.WorkDir, logger)
			inboxPath, err := stageLocalFile(storage, args[0], cfg.Attachments.MaxFileSize)
			if err != nil {
				return err
			}
			defer func() { _ = storage.CleanupInbox(inboxPath) }()

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = storage.OutputPathFor(filepath.Base(args[0]))
			} else if target, err = config.ExpandPath(target); err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}

			runner := encoding.NewRunner(encoding.Options{
				Binary:       deps.ResolveFFmpegPath(cfg.Conversion.FFmpegBinary),
				PollInterval: time.Duration(cfg.Conversion.PollIntervalSeconds) * time.Second,
			}, logger)
			result, err := runner.Convert(runCtx, encoding.Job{
				InputPath:        inboxPath,
				OutputPath:       target,
				BackgroundImage:  cfg.Paths.BackgroundImage,
				AudioBitrateKbps: cfg.Conversion.AudioBitrate,
				Timeout:          cfg.ConversionTimeout(),
			})
			if err != nil {
				return describeConvertError(err)
			}

			mode := "re-encoded"
			if result.AudioCopied {
				mode = "stream copy"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s (%s, %s, %s)\n",
				result.OutputPath,
				humanize.IBytes(uint64(result.OutputBytes)),
				mode,
				result.Elapsed.Round(time.Millisecond),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination video (defaults to <work_dir>/out/<name>.mp4)")
	return cmd
}

// stageLocalFile copies src into the inbox the same way a downloaded
// attachment would land there.
func stageLocalFile(storage *staging.Manager, src string, maxBytes int64) (string, error) {
	if err := storage.EnsureLayout(); err != nil {
		return "", fmt.Errorf("prepare work directory: %w", err)
	}
	dest := storage.InboxPathFor(filepath.Base(src))
	if _, err := fileutil.CopyLimited(src, dest, maxBytes); err != nil {
		if errors.Is(err, fileutil.ErrTooLarge) {
			return "", fmt.Errorf("%s exceeds attachments.max_file_size (%s)", src, humanize.IBytes(uint64(maxBytes)))
		}
		return "", fmt.Errorf("stage %s: %w", src, err)
	}
	return dest, nil
}

func describeConvertError(err error) error {
	switch {
	case errors.Is(err, encoding.ErrEncoderMissing):
		return fmt.Errorf("ffmpeg not available: %w", err)
	case errors.Is(err, encoding.ErrEncoderTimeout):
		return fmt.Errorf("conversion timed out: %w", err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		return fmt.Errorf("invalid conversion request: %w", err)
	default:
		return fmt.Errorf("conversion failed: %w", err)
	}
}
