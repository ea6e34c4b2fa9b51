// Package encoding renders an audio attachment into an MP4 by looping a still
// background image under it with ffmpeg.
//
// BuildArgs produces the deterministic ffmpeg argument vector. Runner launches
// the encoder in its own process group, polls it against a wall-clock
// deadline, kills and reaps it when the deadline passes, and verifies that a
// non-empty output file exists after a clean exit. Failures are returned as
// *ConversionError values that match the encoding and services markers via
// errors.Is.
package encoding
