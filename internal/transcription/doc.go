// Package transcription turns audio attachments into diary text.
//
// Client posts the audio to a Whisper-compatible /v1/audio/transcriptions
// endpoint. Writer appends the returned text to a per-day Markdown note,
// writing an Obsidian navigation header (breadcrumb, ISO week links, and the
// Monday-start week's day links) the first time a date's note is created.
// Notes are only ever appended to.
package transcription
