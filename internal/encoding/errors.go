package encoding

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"voicediary/internal/services"
)

var (
	// ErrEncoderMissing reports that the ffmpeg executable could not be started.
	ErrEncoderMissing = errors.New("encoder not installed")
	// ErrEncoderFailed covers nonzero exits and clean exits without usable output.
	ErrEncoderFailed = errors.New("encoder failed")
	// ErrEncoderTimeout reports that the deadline passed and the encoder was killed.
	ErrEncoderTimeout = errors.New("encoder timed out")
)

// FailureKind distinguishes the ways a conversion can fail.
type FailureKind int

const (
	FailureMissing FailureKind = iota + 1
	FailureExit
	FailureInvalidOutput
	FailureTimeout
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureMissing:
		return "missing"
	case FailureExit:
		return "exit"
	case FailureInvalidOutput:
		return "invalid_output"
	case FailureTimeout:
		return "timeout"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ConversionError describes a failed encoder run.
type ConversionError struct {
	Kind       FailureKind
	Binary     string
	OutputPath string
	ExitCode   int
	Stderr     string
	Elapsed    time.Duration
	Err        error
}

func (e *ConversionError) Error() string {
	switch e.Kind {
	case FailureMissing:
		return fmt.Sprintf("encoder %q not available: %v", e.Binary, e.Err)
	case FailureExit:
		msg := fmt.Sprintf("encoder exited with code %d", e.ExitCode)
		if tail := lastLine(e.Stderr); tail != "" {
			msg += ": " + tail
		}
		return msg
	case FailureInvalidOutput:
		return fmt.Sprintf("encoder exited cleanly but output %q is missing or empty", e.OutputPath)
	case FailureTimeout:
		return fmt.Sprintf("encoder killed after %s", e.Elapsed.Round(time.Millisecond))
	case FailureCanceled:
		return fmt.Sprintf("encoder canceled after %s: %v", e.Elapsed.Round(time.Millisecond), e.Err)
	default:
		return "encoder failure"
	}
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Is matches both the package markers and the shared service markers.
func (e *ConversionError) Is(target error) bool {
	switch e.Kind {
	case FailureMissing:
		return target == ErrEncoderMissing || target == services.ErrNotFound
	case FailureExit, FailureInvalidOutput:
		return target == ErrEncoderFailed || target == services.ErrExternalTool
	case FailureTimeout:
		return target == ErrEncoderTimeout || target == services.ErrTimeout
	}
	return false
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}
