package encoding

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"time"

	"voicediary/internal/logging"
	"voicediary/internal/services"
	"voicediary/internal/staging"
)

const (
	defaultBinary       = "ffmpeg"
	defaultPollInterval = 30 * time.Second
	minBitrateKbps      = 64
	maxBitrateKbps      = 128
	stderrTailBytes     = 64 * 1024
	waitDelay           = 5 * time.Second
)

// Job is one audio-to-video conversion.
type Job struct {
	InputPath        string
	OutputPath       string
	BackgroundImage  string
	AudioBitrateKbps int
	Timeout          time.Duration
}

// Progress is reported on every poll tick that lands before the deadline.
type Progress struct {
	Elapsed   time.Duration
	Remaining time.Duration
}

// Result describes a successful conversion.
type Result struct {
	OutputPath  string
	OutputBytes int64
	Elapsed     time.Duration
	AudioCopied bool
}

// Options configures a Runner.
type Options struct {
	Binary       string
	PollInterval time.Duration
	// OnProgress, when set, observes each poll tick.
	OnProgress func(Progress)
}

// Runner supervises ffmpeg invocations.
type Runner struct {
	binary       string
	pollInterval time.Duration
	onProgress   func(Progress)
	logger       *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts Options, logger *slog.Logger) *Runner {
	r := &Runner{
		binary:       opts.Binary,
		pollInterval: opts.PollInterval,
		onProgress:   opts.OnProgress,
		logger:       logging.NewComponentLogger(logger, "encoding"),
	}
	if r.binary == "" {
		r.binary = defaultBinary
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	return r
}

// Binary returns the encoder executable the runner invokes.
func (r *Runner) Binary() string { return r.binary }

// Convert runs the encoder for job and blocks until it exits, the deadline
// passes, or ctx is canceled. In the latter two cases the encoder's process
// group is killed and reaped before Convert returns.
func (r *Runner) Convert(ctx context.Context, job Job) (Result, error) {
	if err := validateJob(job); err != nil {
		return Result{}, err
	}
	logger := logging.WithContext(ctx, r.logger)

	args := BuildArgs(job)
	copied := CanCopyAudio(job.InputPath)

	var stdout, stderr tailBuffer
	stdout.limit = stderrTailBytes
	stderr.limit = stderrTailBytes

	cmd := exec.Command(r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	logger.Info("conversion started",
		logging.Filename(job.InputPath),
		logging.Bool("audio_copy", copied),
		logging.Duration("timeout", job.Timeout),
		logging.Any("args", args),
		logging.String(logging.FieldEventType, "conversion_started"),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		convErr := &ConversionError{Binary: r.binary, OutputPath: job.OutputPath, Err: err}
		if isMissingBinary(err) {
			convErr.Kind = FailureMissing
		} else {
			convErr.Kind = FailureExit
			convErr.ExitCode = -1
		}
		logging.ErrorWithContext(logger, "encoder failed to start", "conversion_start_failed",
			logging.Error(convErr),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set conversion.ffmpeg_binary"),
		)
		return Result{}, convErr
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := start.Add(job.Timeout)
	failure, waitErr := r.supervise(ctx, cmd, done, start, deadline, logger)
	elapsed := time.Since(start)
	if failure != nil {
		failure.Binary = r.binary
		failure.OutputPath = job.OutputPath
		failure.Elapsed = elapsed
		failure.Stderr = stderr.String()
		return Result{}, failure
	}

	if waitErr != nil {
		convErr := &ConversionError{
			Kind:       FailureExit,
			Binary:     r.binary,
			OutputPath: job.OutputPath,
			ExitCode:   exitCode(waitErr),
			Stderr:     stderr.String(),
			Elapsed:    elapsed,
			Err:        waitErr,
		}
		logging.ErrorWithContext(logger, "encoder exited with error", "conversion_failed",
			logging.Int("exit_code", convErr.ExitCode),
			logging.String("stderr", lastLine(convErr.Stderr)),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "inspect ffmpeg stderr for the failing input"),
		)
		return Result{}, convErr
	}

	size, ok := staging.FileSize(job.OutputPath)
	if !ok || size == 0 {
		convErr := &ConversionError{
			Kind:       FailureInvalidOutput,
			Binary:     r.binary,
			OutputPath: job.OutputPath,
			Stderr:     stderr.String(),
			Elapsed:    elapsed,
		}
		logging.ErrorWithContext(logger, "encoder produced no output", "conversion_output_invalid",
			logging.String("output_path", job.OutputPath),
			logging.Duration("elapsed", elapsed),
		)
		return Result{}, convErr
	}

	logger.Info("conversion finished",
		logging.Filename(job.OutputPath),
		logging.Int64("output_bytes", size),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "conversion_completed"),
	)
	return Result{OutputPath: job.OutputPath, OutputBytes: size, Elapsed: elapsed, AudioCopied: copied}, nil
}

// supervise waits for the child, ticking at most every pollInterval. It
// returns a ConversionError after it has killed and reaped the child, or the
// Wait error on a natural exit.
func (r *Runner) supervise(ctx context.Context, cmd *exec.Cmd, done <-chan error, start, deadline time.Time, logger *slog.Logger) (*ConversionError, error) {
	for {
		wait := min(r.pollInterval, time.Until(deadline))
		if wait <= 0 {
			return r.timeout(cmd, done, start, logger), nil
		}
		timer := time.NewTimer(wait)
		select {
		case err := <-done:
			timer.Stop()
			return nil, err
		case <-ctx.Done():
			timer.Stop()
			killAndReap(cmd, done)
			logger.Warn("conversion canceled",
				logging.Duration("elapsed", time.Since(start)),
				logging.String(logging.FieldEventType, "conversion_canceled"),
				logging.String(logging.FieldImpact, "attachment not delivered"),
				logging.String(logging.FieldErrorHint, "daemon shutting down"),
			)
			return &ConversionError{Kind: FailureCanceled, Err: ctx.Err()}, nil
		case <-timer.C:
			now := time.Now()
			if !now.Before(deadline) {
				return r.timeout(cmd, done, start, logger), nil
			}
			p := Progress{Elapsed: now.Sub(start), Remaining: deadline.Sub(now)}
			logger.Info("conversion in progress",
				logging.Duration("elapsed", p.Elapsed),
				logging.Duration("remaining", p.Remaining),
				logging.String(logging.FieldEventType, "conversion_progress"),
			)
			if r.onProgress != nil {
				r.onProgress(p)
			}
		}
	}
}

func (r *Runner) timeout(cmd *exec.Cmd, done <-chan error, start time.Time, logger *slog.Logger) *ConversionError {
	killAndReap(cmd, done)
	elapsed := time.Since(start)
	logging.ErrorWithContext(logger, "conversion timed out", "conversion_timeout",
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldErrorHint, "raise conversion.timeout_seconds or check the input file"),
	)
	return &ConversionError{Kind: FailureTimeout, Err: context.DeadlineExceeded}
}

// killAndReap kills the encoder's process group and blocks until Wait has
// returned, so the child is never left running or unreaped.
func killAndReap(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process != nil {
		if err := killProcessGroup(cmd); err != nil {
			_ = cmd.Process.Kill()
		}
	}
	<-done
}

func validateJob(job Job) error {
	switch {
	case job.AudioBitrateKbps < minBitrateKbps || job.AudioBitrateKbps > maxBitrateKbps:
		return services.Wrap(services.ErrValidation, "encoding", "validate job",
			fmt.Sprintf("audio bitrate %dk outside %d-%dk", job.AudioBitrateKbps, minBitrateKbps, maxBitrateKbps), nil)
	case job.Timeout <= 0:
		return services.Wrap(services.ErrValidation, "encoding", "validate job", "timeout must be positive", nil)
	case job.OutputPath == "":
		return services.Wrap(services.ErrValidation, "encoding", "validate job", "output path is empty", nil)
	case !staging.FileExists(job.InputPath):
		return services.Wrap(services.ErrValidation, "encoding", "validate job",
			fmt.Sprintf("input %q not found", job.InputPath), nil)
	case !staging.FileExists(job.BackgroundImage):
		return services.Wrap(services.ErrConfiguration, "encoding", "validate job",
			fmt.Sprintf("background image %q not found", job.BackgroundImage), nil)
	}
	return nil
}

func isMissingBinary(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
