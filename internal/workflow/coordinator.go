package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicediary/internal/config"
	"voicediary/internal/download"
	"voicediary/internal/encoding"
	"voicediary/internal/logging"
	"voicediary/internal/notifications"
	"voicediary/internal/services"
	"voicediary/internal/staging"
)

// failureReplyTimeout bounds the error reply sent for a job canceled at
// shutdown.
const failureReplyTimeout = 10 * time.Second

// Dependencies are the collaborators a Coordinator drives. Notifier and
// Metrics may be nil.
type Dependencies struct {
	Storage    *staging.Manager
	Downloader Downloader
	Converter  Converter
	Notes      NoteWriter
	Notifier   notifications.Service
	Metrics    Recorder
}

// Coordinator turns chat attachments into videos or note entries.
type Coordinator struct {
	cfg        *config.Config
	storage    *staging.Manager
	downloader Downloader
	converter  Converter
	notes      NoteWriter
	notifier   notifications.Service
	metrics    Recorder
	logger     *slog.Logger

	mu        sync.Mutex
	botUserID string
	closing   bool
	wg        sync.WaitGroup
}

// NewCoordinator constructs a Coordinator for the configured mode.
func NewCoordinator(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Coordinator {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	var recorder Recorder = noopRecorder{}
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	return &Coordinator{
		cfg:        cfg,
		storage:    deps.Storage,
		downloader: deps.Downloader,
		converter:  deps.Converter,
		notes:      deps.Notes,
		notifier:   notifier,
		metrics:    recorder,
		logger:     logging.NewComponentLogger(logger, "workflow"),
	}
}

// SetBotUserID records the gateway's own user so its messages are ignored.
func (c *Coordinator) SetBotUserID(id string) {
	c.mu.Lock()
	c.botUserID = strings.TrimSpace(id)
	c.mu.Unlock()
}

// HandleAttachmentMessage validates the attachments of one message and starts
// a job per audio attachment. It returns without waiting for the jobs; replies
// go to sink as each job progresses.
func (c *Coordinator) HandleAttachmentMessage(ctx context.Context, channelID, authorID string, attachments []Attachment, sink ReplySink) Outcome {
	c.mu.Lock()
	botID := c.botUserID
	closing := c.closing
	c.mu.Unlock()

	switch {
	case botID != "" && authorID == botID:
		c.logger.Debug("ignoring own message")
		return Outcome{Ignored: IgnoreOwnMessage}
	case channelID != c.cfg.Discord.ChannelID:
		c.logger.Debug("message not in monitored channel",
			logging.String("channel_id", channelID),
			logging.String("monitored_channel_id", c.cfg.Discord.ChannelID),
		)
		return Outcome{Ignored: IgnoreOtherChannel}
	case closing:
		c.logger.Info("shutting down, ignoring message", logging.Int("attachments", len(attachments)))
		return Outcome{Ignored: IgnoreShuttingDown}
	}

	outcome := Outcome{}
	var accepted []Attachment
	for _, att := range attachments {
		if err := c.validate(att); err != nil {
			var skip *skipError
			reason := err.Error()
			if errors.As(err, &skip) {
				reason = skip.reason
			}
			outcome.Skipped = append(outcome.Skipped, Skipped{Filename: att.Filename, Reason: reason})
			c.metrics.ObserveJob(c.cfg.Workflow.Mode, string(Classify(err)), 0)
			continue
		}
		accepted = append(accepted, att)
	}
	if len(accepted) == 0 {
		c.logger.Info("no audio attachments found", logging.Int("attachments", len(attachments)))
		outcome.Ignored = IgnoreNoAudio
		return outcome
	}

	correlationID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		correlationID = uuid.NewString()
		ctx = services.WithRequestID(ctx, correlationID)
	}
	outcome.CorrelationID = correlationID

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return Outcome{Ignored: IgnoreShuttingDown, Skipped: outcome.Skipped}
	}
	for _, att := range accepted {
		jobID := uuid.NewString()
		outcome.JobIDs = append(outcome.JobIDs, jobID)
		c.wg.Add(1)
		go func(att Attachment, jobID string) {
			defer c.wg.Done()
			c.runJob(ctx, sink, att, jobID)
		}(att, jobID)
	}
	c.mu.Unlock()

	c.logger.Info("audio attachments accepted",
		logging.String(logging.FieldCorrelationID, correlationID),
		logging.Int("accepted", len(accepted)),
		logging.Int("skipped", len(outcome.Skipped)),
		logging.String(logging.FieldEventType, "attachments_accepted"),
	)
	return outcome
}

func (c *Coordinator) validate(att Attachment) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(att.ContentType)), "audio/") {
		return &skipError{reason: "not audio"}
	}
	limit := c.cfg.Attachments.MaxFileSize
	if att.SizeBytes > limit {
		logging.WarnWithContext(c.logger, "attachment exceeds size limit", "attachment_too_large",
			logging.Filename(att.Filename),
			logging.Int64("size_bytes", att.SizeBytes),
			logging.Int64("limit_bytes", limit),
			logging.String(logging.FieldImpact, "attachment ignored"),
			logging.String(logging.FieldErrorHint, "raise attachments.max_file_size or send a shorter recording"),
		)
		return &skipError{reason: "too large"}
	}
	return nil
}

// Wait blocks until every started job has finished or ctx expires.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages and waits up to grace for in-flight jobs.
func (c *Coordinator) Close(grace time.Duration) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		return fmt.Errorf("in-flight jobs still running after %s: %w", grace, err)
	}
	return nil
}

func (c *Coordinator) runJob(ctx context.Context, sink ReplySink, att Attachment, jobID string) {
	mode := c.cfg.Workflow.Mode
	ctx = services.WithJobID(ctx, jobID)
	ctx = services.WithMode(ctx, mode)
	logger := logging.WithContext(ctx, c.logger).With(logging.Filename(att.Filename))

	start := time.Now()
	inboxPath := c.storage.InboxPathFor(att.Filename)
	result := JobResult{JobID: jobID, Filename: att.Filename, Mode: mode, Status: StatusReceived}

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("panic: %v", r)
			result.Class = ClassUnexpectedError
			c.cleanupInbox(inboxPath, logger)
			c.reportFailure(ctx, sink, result, logger)
		}
		result.Elapsed = time.Since(start)
		c.finish(result, logger)
	}()

	result.Status = StatusValidated
	logger.Debug("job started", logging.String("status", string(result.Status)))

	switch mode {
	case config.ModeVideo:
		c.runVideo(ctx, sink, att, inboxPath, &result, logger)
	case config.ModeTranscription:
		c.runTranscription(ctx, sink, att, inboxPath, &result, logger)
	default:
		logger.Error("unknown bot mode", logging.String(logging.FieldMode, mode))
		result.Status = StatusFailed
		result.Err = fmt.Errorf("%w: %q", errInvalidMode, mode)
		result.Class = ClassInvalidMode
		c.reportFailure(ctx, sink, result, logger)
	}
}

func (c *Coordinator) runVideo(ctx context.Context, sink ReplySink, att Attachment, inboxPath string, result *JobResult, logger *slog.Logger) {
	ref := c.reply(ctx, sink, fmt.Sprintf("🎵 Processing audio file: `%s`", att.Filename), logger)

	if err := c.stage(ctx, att, inboxPath, logger); err != nil {
		c.fail(ctx, sink, result, inboxPath, err, logger)
		return
	}
	result.Status = StatusConverting
	convertCtx := services.WithStage(ctx, string(StatusConverting))
	converted, err := c.converter.Convert(convertCtx, encoding.Job{
		InputPath:        inboxPath,
		OutputPath:       c.storage.OutputPathFor(att.Filename),
		BackgroundImage:  c.cfg.Paths.BackgroundImage,
		AudioBitrateKbps: c.cfg.Conversion.AudioBitrate,
		Timeout:          c.cfg.ConversionTimeout(),
	})
	if err != nil {
		c.fail(ctx, sink, result, inboxPath, err, logger)
		return
	}

	result.Status = StatusSucceeded
	result.Artifact = converted.OutputPath
	c.edit(ctx, sink, ref, fmt.Sprintf("✅ Successfully converted `%s` to video! Output: `%s`", att.Filename, filepath.Base(converted.OutputPath)), logger)
	c.cleanupInbox(inboxPath, logger)
	if err := c.storage.CleanupOutput(converted.OutputPath, c.cfg.Conversion.DeleteOnSuccess); err != nil {
		logger.Warn("output cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_cleanup_failed"),
			logging.String(logging.FieldImpact, "rendered video left in output directory"),
		)
	}
}

func (c *Coordinator) runTranscription(ctx context.Context, sink ReplySink, att Attachment, inboxPath string, result *JobResult, logger *slog.Logger) {
	ref := c.reply(ctx, sink, fmt.Sprintf("🎤 Transcribing audio: `%s`", att.Filename), logger)

	if err := c.stage(ctx, att, inboxPath, logger); err != nil {
		c.fail(ctx, sink, result, inboxPath, err, logger)
		return
	}
	result.Status = StatusTranscribing
	note, err := c.notes.Process(services.WithStage(ctx, string(StatusTranscribing)), inboxPath, att.Filename)
	if err != nil {
		c.fail(ctx, sink, result, inboxPath, err, logger)
		return
	}

	result.Status = StatusSucceeded
	result.Artifact = note.Path
	c.edit(ctx, sink, ref, fmt.Sprintf("✅ Transcription complete! Saved to: `%s`", filepath.Base(note.Path)), logger)
	c.cleanupInbox(inboxPath, logger)
}

// stage downloads the attachment into the inbox and re-checks its size.
func (c *Coordinator) stage(ctx context.Context, att Attachment, inboxPath string, logger *slog.Logger) error {
	limit := c.cfg.Attachments.MaxFileSize
	written, err := c.downloader.Fetch(services.WithStage(ctx, string(StatusStaged)), att.URL, inboxPath, limit)
	if err != nil {
		return err
	}
	if !c.storage.ValidateSize(inboxPath, limit) {
		return &download.Error{Kind: download.KindTooLarge, URL: att.URL, Limit: limit}
	}
	logger.Debug("attachment staged",
		logging.String("status", string(StatusStaged)),
		logging.Int64("staged_bytes", written),
	)
	return nil
}

func (c *Coordinator) fail(ctx context.Context, sink ReplySink, result *JobResult, inboxPath string, err error, logger *slog.Logger) {
	result.Status = StatusFailed
	result.Err = err
	result.Class = Classify(err)
	c.cleanupInbox(inboxPath, logger)
	if ctx.Err() != nil {
		// Canceled at shutdown; the user still gets the error reply.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), failureReplyTimeout)
		defer cancel()
	}
	c.reportFailure(ctx, sink, *result, logger)
}

func (c *Coordinator) reportFailure(ctx context.Context, sink ReplySink, result JobResult, logger *slog.Logger) {
	attrs := []logging.Attr{
		logging.String("failure_class", string(result.Class)),
		logging.Error(result.Err),
		logging.Alert("job_failure"),
	}
	if services.IsOperatorActionable(result.Err) {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "check the encoder installation and configured paths"))
	}
	logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)

	c.reply(ctx, sink, UserMessage(result.Class, result.Mode, result.Filename), logger)

	if alertsOperator(result.Class) {
		if err := c.notifier.NotifyJobFailed(ctx, result.Filename, string(result.Class), result.Err); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

func (c *Coordinator) finish(result JobResult, logger *slog.Logger) {
	outcome := string(result.Status)
	if result.Status == StatusFailed {
		outcome = string(result.Class)
	}
	c.metrics.ObserveJob(result.Mode, outcome, result.Elapsed)
	c.metrics.SetStagingUsage(c.storage.DiskUsage().ByDir())

	if result.Status == StatusSucceeded {
		logger.Info("job succeeded",
			logging.String("artifact", filepath.Base(result.Artifact)),
			logging.Duration("elapsed", result.Elapsed),
			logging.String(logging.FieldEventType, "job_succeeded"),
		)
	}
}

func (c *Coordinator) cleanupInbox(path string, logger *slog.Logger) {
	if err := c.storage.CleanupInbox(path); err != nil {
		logger.Warn("inbox cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "inbox_cleanup_failed"),
			logging.String(logging.FieldImpact, "staged attachment left in inbox until next start"),
		)
	}
}

func (c *Coordinator) reply(ctx context.Context, sink ReplySink, text string, logger *slog.Logger) MessageRef {
	if sink == nil {
		return MessageRef{}
	}
	ref, err := sink.Reply(ctx, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("reply failed", logging.Error(err))
		}
		return MessageRef{}
	}
	return ref
}

func (c *Coordinator) edit(ctx context.Context, sink ReplySink, ref MessageRef, text string, logger *slog.Logger) {
	if sink == nil {
		return
	}
	if ref.IsZero() {
		c.reply(ctx, sink, text, logger)
		return
	}
	if err := sink.Edit(ctx, ref, text); err != nil {
		logger.Warn("edit failed", logging.Error(err))
	}
}
