// Package logs reads the daemon's JSON log file for the CLI.
//
// Tail returns the last N lines or everything after a byte offset, and can
// block briefly for new lines so callers can implement follow mode by
// looping on the returned offset. Lines can be narrowed to one job's records.
package logs
