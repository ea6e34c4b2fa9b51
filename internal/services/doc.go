// Package services defines shared utilities consumed by the processing
// coordinator and the external integrations it drives.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, operating mode, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from the
//     encoder, transcription client, and downloader classify consistently.
//
// Use these helpers when wiring new pipeline steps so failure classification
// and observability stay uniform across video and transcription modes.
package services
