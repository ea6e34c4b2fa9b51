package workflow

import (
	"errors"
	"fmt"
	"testing"

	"voicediary/internal/config"
	"voicediary/internal/download"
	"voicediary/internal/encoding"
	"voicediary/internal/services"
	"voicediary/internal/transcription"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, ClassNone},
		{"skipped", &skipError{reason: "not audio"}, ClassValidationSkip},
		{"invalid mode", fmt.Errorf("%w: %q", errInvalidMode, "x"), ClassInvalidMode},
		{"download network", errNetwork, ClassDownloadFailure},
		{"download status", &download.Error{Kind: download.KindStatus, StatusCode: 404}, ClassDownloadFailure},
		{"download too large", &download.Error{Kind: download.KindTooLarge, Limit: 10}, ClassDownloadFailure},
		{"encoder missing", &encoding.ConversionError{Kind: encoding.FailureMissing}, ClassEncoderMissing},
		{"encoder exit", &encoding.ConversionError{Kind: encoding.FailureExit, ExitCode: 1}, ClassEncoderFailure},
		{"encoder empty output", &encoding.ConversionError{Kind: encoding.FailureInvalidOutput}, ClassEncoderFailure},
		{"encoder timeout", &encoding.ConversionError{Kind: encoding.FailureTimeout}, ClassEncoderTimeout},
		{"wrapped timeout", fmt.Errorf("job: %w", &encoding.ConversionError{Kind: encoding.FailureTimeout}), ClassEncoderTimeout},
		{"encoder canceled", &encoding.ConversionError{Kind: encoding.FailureCanceled}, ClassUnexpectedError},
		{"protocol", &transcription.ProtocolError{Reason: "text is not a string"}, ClassTranscriptionProtocolError},
		{"transcription status", &transcription.StatusError{StatusCode: 500}, ClassUnexpectedError},
		{"transport", services.Wrap(services.ErrTransient, "transcription", "post", "request failed", errors.New("refused")), ClassUnexpectedError},
		{"other", errors.New("boom"), ClassUnexpectedError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserMessageNeverLeaksDetail(t *testing.T) {
	classes := []FailureClass{
		ClassDownloadFailure,
		ClassEncoderMissing,
		ClassEncoderFailure,
		ClassEncoderTimeout,
		ClassTranscriptionProtocolError,
		ClassInvalidMode,
		ClassUnexpectedError,
	}
	for _, class := range classes {
		for _, mode := range []string{config.ModeVideo, config.ModeTranscription} {
			msg := UserMessage(class, mode, "voice.ogg")
			if msg == "" || msg[:3] != "❌" {
				t.Fatalf("UserMessage(%s, %s) = %q", class, mode, msg)
			}
		}
	}
	protocol := UserMessage(Classify(&transcription.ProtocolError{Reason: "text is not a string"}), config.ModeTranscription, "a.ogg")
	transport := UserMessage(Classify(errors.New("dial tcp 127.0.0.1:8000: connection refused")), config.ModeTranscription, "a.ogg")
	status := UserMessage(Classify(&transcription.StatusError{StatusCode: 502}), config.ModeTranscription, "a.ogg")
	want := "❌ Failed to transcribe `a.ogg`: Transcription error"
	if protocol != want || transport != want || status != want {
		t.Fatalf("transcription replies differ: protocol=%q transport=%q status=%q", protocol, transport, status)
	}
	if got := UserMessage(ClassUnexpectedError, config.ModeVideo, "a.ogg"); got != "❌ Unexpected error processing `a.ogg`" {
		t.Fatalf("video unexpected = %q", got)
	}
}

func TestAlertsOperator(t *testing.T) {
	if alertsOperator(ClassValidationSkip) || alertsOperator(ClassNone) {
		t.Fatal("skips and successes must not alert")
	}
	if !alertsOperator(ClassEncoderMissing) {
		t.Fatal("missing encoder must alert")
	}
}
