// Package preflight provides readiness checks for the filesystem paths and
// services voicediary depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure before the
//     gateway connects.
//   - The CLI "voicediary check" command prints each result.
//
// Checks are gated by mode: the background image and encoder matter only in
// video mode, the notes directory and transcription endpoint only in
// transcription mode.
package preflight
