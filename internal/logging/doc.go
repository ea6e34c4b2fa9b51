// Package logging builds the slog loggers used across voicediary.
//
// Console output is a compact human layout with a job/stage subject and a
// short list of highlighted fields; JSON output is used when stdout is not a
// terminal and for the optional log file. Context helpers attach job and
// stage identifiers so every line emitted while handling an attachment can be
// correlated.
package logging
