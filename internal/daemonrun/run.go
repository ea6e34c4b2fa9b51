package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voicediary/internal/config"
	"voicediary/internal/daemon"
	"voicediary/internal/deps"
	"voicediary/internal/discord"
	"voicediary/internal/download"
	"voicediary/internal/encoding"
	"voicediary/internal/logging"
	"voicediary/internal/metrics"
	"voicediary/internal/notifications"
	"voicediary/internal/staging"
	"voicediary/internal/transcription"
	"voicediary/internal/workflow"
)

// PIDFileName is written under the log directory while the daemon runs.
const PIDFileName = "voicediary.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the voicediary daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.ValidateGateway(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	loggerOpts := logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Development: opts.Development,
	}
	if cfg.Paths.LogDir != "" {
		loggerOpts.FilePath = filepath.Join(cfg.Paths.LogDir, "voicediary.log")
	}
	logger, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the bot token, channel id, and work directory lock"),
			logging.String(logging.FieldImpact, "no attachments will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("voicediary daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown_requested"),
	)
	d.Stop()
	return nil
}

// Build wires every runtime component for cfg into a daemon that has not
// been started yet.
func Build(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	storage := staging.New(cfg.Paths.WorkDir, logger)
	collectors, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	notifier := notifications.NewService(cfg)

	runner := newEncoder(cfg, logger)
	client := transcription.NewClient(transcription.Config{
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}, transcription.WithLogger(logger))
	writer := transcription.NewWriter(client, cfg.Paths.NotesDir, time.Now, logger)

	coordinator := workflow.NewCoordinator(cfg, workflow.Dependencies{
		Storage:    storage,
		Downloader: download.New(time.Duration(cfg.Attachments.DownloadTimeoutSeconds)*time.Second, logger),
		Converter:  runner,
		Notes:      writer,
		Notifier:   notifier,
		Metrics:    collectors,
	}, logger)

	gateway, err := discord.New(cfg, coordinator, logger)
	if err != nil {
		return nil, err
	}

	return daemon.New(cfg, daemon.Dependencies{
		Storage:     storage,
		Coordinator: coordinator,
		Gateway:     gateway,
		Encoder:     runner,
		Notifier:    notifier,
		Metrics:     collectors,
	}, logger)
}

func newEncoder(cfg *config.Config, logger *slog.Logger) *encoding.Runner {
	return encoding.NewRunner(encoding.Options{
		Binary:       deps.ResolveFFmpegPath(cfg.Conversion.FFmpegBinary),
		PollInterval: time.Duration(cfg.Conversion.PollIntervalSeconds) * time.Second,
	}, logger)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := deps.ResolveFFmpegPath(cfg.Conversion.FFmpegBinary)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("mode", cfg.Workflow.Mode),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("transcription_url_set", strings.TrimSpace(cfg.Transcription.BaseURL) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("metrics_bind", cfg.Metrics.Bind),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
