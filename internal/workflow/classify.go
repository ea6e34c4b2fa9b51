package workflow

import (
	"errors"
	"fmt"

	"voicediary/internal/config"
	"voicediary/internal/download"
	"voicediary/internal/encoding"
	"voicediary/internal/transcription"
)

// FailureClass is the coordinator's error taxonomy.
type FailureClass string

const (
	ClassNone                       FailureClass = ""
	ClassValidationSkip             FailureClass = "validation_skip"
	ClassDownloadFailure            FailureClass = "download_failure"
	ClassEncoderMissing             FailureClass = "encoder_missing"
	ClassEncoderFailure             FailureClass = "encoder_failure"
	ClassEncoderTimeout             FailureClass = "encoder_timeout"
	ClassTranscriptionProtocolError FailureClass = "transcription_protocol_error"
	ClassInvalidMode                FailureClass = "invalid_mode"
	ClassUnexpectedError            FailureClass = "unexpected_error"
)

// errSkipped marks an attachment rejected by type or size validation.
var errSkipped = errors.New("attachment skipped")

type skipError struct {
	reason string
}

func (e *skipError) Error() string        { return "attachment skipped: " + e.reason }
func (e *skipError) Is(target error) bool { return target == errSkipped }

// errInvalidMode marks a job dispatched under an unknown mode.
var errInvalidMode = errors.New("invalid bot mode")

// Classify maps err onto the failure taxonomy. A nil error has no class.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, errSkipped):
		return ClassValidationSkip
	case errors.Is(err, errInvalidMode):
		return ClassInvalidMode
	case errors.Is(err, download.ErrDownload):
		return ClassDownloadFailure
	case errors.Is(err, encoding.ErrEncoderMissing):
		return ClassEncoderMissing
	case errors.Is(err, encoding.ErrEncoderTimeout):
		return ClassEncoderTimeout
	case errors.Is(err, encoding.ErrEncoderFailed):
		return ClassEncoderFailure
	case errors.Is(err, transcription.ErrInvalidResponse):
		return ClassTranscriptionProtocolError
	default:
		return ClassUnexpectedError
	}
}

// UserMessage returns the chat text for a failed job. It never includes
// error detail. Protocol and transport failures in transcription mode share
// one reply; only the logged failure_class tells them apart.
func UserMessage(class FailureClass, mode, filename string) string {
	switch class {
	case ClassDownloadFailure:
		return fmt.Sprintf("❌ Failed to download `%s`: Network error", filename)
	case ClassEncoderMissing, ClassEncoderFailure, ClassEncoderTimeout:
		return fmt.Sprintf("❌ Failed to convert `%s`: Video processing error", filename)
	case ClassTranscriptionProtocolError:
		return transcriptionFailure(filename)
	case ClassInvalidMode:
		return "❌ Invalid bot mode configuration"
	}
	if mode == config.ModeTranscription {
		return transcriptionFailure(filename)
	}
	return fmt.Sprintf("❌ Unexpected error processing `%s`", filename)
}

func transcriptionFailure(filename string) string {
	return fmt.Sprintf("❌ Failed to transcribe `%s`: Transcription error", filename)
}

// alertsOperator reports whether a failure class warrants an ntfy alert.
// Validation skips are routine and never alert.
func alertsOperator(class FailureClass) bool {
	return class != ClassNone && class != ClassValidationSkip
}
