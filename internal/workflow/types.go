package workflow

import (
	"context"
	"time"

	"voicediary/internal/encoding"
	"voicediary/internal/transcription"
)

// Attachment is the platform-neutral view of one file on a chat message.
type Attachment struct {
	Filename    string
	ContentType string
	SizeBytes   int64
	URL         string
}

// MessageRef identifies a message posted by the bot so it can be edited.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether the reference points at nothing.
func (r MessageRef) IsZero() bool { return r.MessageID == "" }

// ReplySink posts replies to the message that carried the attachments.
type ReplySink interface {
	Reply(ctx context.Context, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
}

// Downloader streams an attachment to a local path, enforcing maxBytes.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string, maxBytes int64) (int64, error)
}

// Converter renders audio into a video.
type Converter interface {
	Convert(ctx context.Context, job encoding.Job) (encoding.Result, error)
}

// NoteWriter transcribes audio into the daily note.
type NoteWriter interface {
	Process(ctx context.Context, audioPath, filename string) (transcription.NoteResult, error)
}

// Recorder receives job and staging observations.
type Recorder interface {
	ObserveJob(mode, outcome string, elapsed time.Duration)
	SetStagingUsage(bytesByDir map[string]int64)
}

type noopRecorder struct{}

func (noopRecorder) ObserveJob(string, string, time.Duration) {}
func (noopRecorder) SetStagingUsage(map[string]int64)         {}

// Status is the lifecycle state of one attachment job.
type Status string

const (
	StatusReceived     Status = "received"
	StatusValidated    Status = "validated"
	StatusStaged       Status = "staged"
	StatusConverting   Status = "converting"
	StatusTranscribing Status = "transcribing"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
)

// IgnoreReason explains why a message produced no jobs.
type IgnoreReason string

const (
	IgnoreNone         IgnoreReason = ""
	IgnoreOwnMessage   IgnoreReason = "own_message"
	IgnoreOtherChannel IgnoreReason = "other_channel"
	IgnoreNoAudio      IgnoreReason = "no_audio"
	IgnoreShuttingDown IgnoreReason = "shutting_down"
)

// Skipped records an attachment dropped during validation.
type Skipped struct {
	Filename string
	Reason   string
}

// Outcome summarizes what HandleAttachmentMessage did with a message. Jobs
// run asynchronously; Outcome only lists what was started. Every job of one
// message shares CorrelationID.
type Outcome struct {
	Ignored       IgnoreReason
	CorrelationID string
	JobIDs        []string
	Skipped       []Skipped
}

// Accepted reports how many jobs were started.
func (o Outcome) Accepted() int { return len(o.JobIDs) }

// JobResult is the terminal state of one attachment job.
type JobResult struct {
	JobID    string
	Filename string
	Mode     string
	Status   Status
	Class    FailureClass
	Artifact string
	Elapsed  time.Duration
	Err      error
}
