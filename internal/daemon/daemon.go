package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"voicediary/internal/config"
	"voicediary/internal/logging"
	"voicediary/internal/metrics"
	"voicediary/internal/notifications"
	"voicediary/internal/preflight"
	"voicediary/internal/staging"
	"voicediary/internal/workflow"
)

// LockFileName is the single-instance lock created under the work directory.
const LockFileName = "voicediary.lock"

const cancelGrace = 5 * time.Second

// Gateway is the chat connection feeding the coordinator.
type Gateway interface {
	Start(ctx context.Context) error
	Close() error
}

// EncoderCheck validates the encoder installation at startup.
type EncoderCheck interface {
	ValidateInstallation(ctx context.Context) bool
	Binary() string
}

// Dependencies are the components a Daemon runs. Encoder, Notifier and
// Metrics may be nil.
type Dependencies struct {
	Storage     *staging.Manager
	Coordinator *workflow.Coordinator
	Gateway     Gateway
	Encoder     EncoderCheck
	Notifier    notifications.Service
	Metrics     *metrics.Collectors
}

// Daemon owns startup and shutdown and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	storage     *staging.Manager
	coordinator *workflow.Coordinator
	gateway     Gateway
	encoder     EncoderCheck
	notifier    notifications.Service
	metrics     *metrics.Collectors
	api         *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	Mode         string             `json:"mode"`
	LockFilePath string             `json:"lock_file"`
	Usage        staging.Usage      `json:"usage"`
	Inbox        []staging.FileInfo `json:"inbox"`
	Outputs      int                `json:"outputs"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Storage == nil || deps.Coordinator == nil || deps.Gateway == nil {
		return nil, errors.New("daemon requires config, storage, coordinator, and gateway")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(deps.Storage.WorkDir(), LockFileName)
	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		storage:     deps.Storage,
		coordinator: deps.Coordinator,
		gateway:     deps.Gateway,
		encoder:     deps.Encoder,
		notifier:    notifier,
		metrics:     deps.Metrics,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.Metrics.Bind, d, logger)
	return d, nil
}

// Start prepares the staging area, acquires the lock, and connects the gateway.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.storage.EnsureLayout(); err != nil {
		return fmt.Errorf("prepare staging area: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another voicediary instance is already using this work directory")
	}

	// Jobs outlive ctx so a signal lets them drain; Stop cancels them once
	// the shutdown grace runs out.
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if d.cfg.Workflow.CleanInboxOnStart {
		d.sweepInbox("startup")
	}
	d.runPreflight(ctx)
	d.checkEncoder(ctx)
	d.reportUsage()

	if err := d.api.start(); err != nil {
		d.abortStart()
		return err
	}
	if err := d.gateway.Start(d.ctx); err != nil {
		d.api.stop()
		d.abortStart()
		return fmt.Errorf("start gateway: %w", err)
	}

	d.running.Store(true)
	if err := d.notifier.NotifyStarted(ctx, d.cfg.Workflow.Mode); err != nil {
		d.logger.Warn("startup notification failed", logging.Error(err))
	}
	d.logger.Info("voicediary daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldMode, d.cfg.Workflow.Mode),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop disconnects the gateway, drains in-flight jobs, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if err := d.gateway.Close(); err != nil {
		d.logger.Warn("gateway close failed", logging.Error(err))
	}

	grace := d.cfg.ShutdownGrace()
	if err := d.coordinator.Close(grace); err != nil {
		logging.WarnWithContext(d.logger, "canceling in-flight jobs", "shutdown_grace_exceeded",
			logging.Error(err),
			logging.Duration("grace", grace),
			logging.String(logging.FieldImpact, "unfinished attachments are reported as failed"),
		)
		d.cancel()
		waitCtx, cancel := context.WithTimeout(context.Background(), cancelGrace)
		if err := d.coordinator.Wait(waitCtx); err != nil {
			d.logger.Error("jobs still running after cancel", logging.Error(err))
		}
		cancel()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	d.sweepInbox("shutdown")
	d.reportUsage()
	d.api.stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("voicediary daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Mode:         d.cfg.Workflow.Mode,
		LockFilePath: d.lockPath,
		Usage:        d.storage.DiskUsage(),
	}
	if inbox, err := d.storage.ListInbox(); err == nil {
		status.Inbox = inbox
	}
	if outputs, err := d.storage.ListOutput(); err == nil {
		status.Outputs = len(outputs)
	}
	return status
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) sweepInbox(phase string) {
	result := d.storage.CleanupAllInbox()
	for _, failure := range result.Errors {
		d.logger.Warn("inbox sweep failed",
			logging.String("phase", phase),
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
		)
	}
}

func (d *Daemon) runPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "matching jobs will fail until fixed"),
		)
	}
}

func (d *Daemon) checkEncoder(ctx context.Context) {
	if !d.cfg.VideoMode() {
		d.logger.Info("transcription mode, encoder validation skipped")
		return
	}
	if d.encoder == nil {
		return
	}
	if d.encoder.ValidateInstallation(ctx) {
		d.logger.Info("encoder validated", logging.String("binary", d.encoder.Binary()))
		return
	}
	logging.ErrorWithContext(d.logger, "encoder not found or not working", "encoder_missing",
		logging.String("binary", d.encoder.Binary()),
		logging.String(logging.FieldErrorHint, "install ffmpeg or set conversion.ffmpeg_binary"),
		logging.String(logging.FieldImpact, "every video conversion will fail"),
		logging.Alert("encoder_missing"),
	)
	if err := d.notifier.NotifyEncoderMissing(ctx, d.encoder.Binary()); err != nil {
		d.logger.Warn("encoder notification failed", logging.Error(err))
	}
}

func (d *Daemon) reportUsage() {
	if d.metrics == nil {
		return
	}
	d.metrics.SetStagingUsage(d.storage.DiskUsage().ByDir())
}
