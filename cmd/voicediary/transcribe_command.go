package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"voicediary/internal/staging"
	"voicediary/internal/transcription"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a local audio file into today's diary note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Transcription.BaseURL) == "" {
				return errors.New("transcription.base_url (WHISPER_API_URL) must be set")
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

			client := transcription.NewClient(transcription.Config{
				BaseURL:        cfg.Transcription.BaseURL,
				Model:          cfg.Transcription.Model,
				TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
			}, transcription.WithLogger(logger))
			writer := transcription.NewWriter(client, cfg.Paths.NotesDir, nil, logger)

			result, err := writer.Process(runCtx, inboxPath, filepath.Base(args[0]))
			if err != nil {
				if errors.Is(err, transcription.ErrInvalidResponse) {
					return fmt.Errorf("invalid response from transcription service: %w", err)
				}
				return fmt.Errorf("transcription failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if result.Created {
				fmt.Fprintf(out, "Created %s\n", result.Path)
			}
			fmt.Fprintf(out, "Appended %d characters to %s\n", result.Characters, result.Path)
			return nil
		},
	}
}
