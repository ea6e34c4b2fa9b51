// Package config loads, normalizes, and validates voicediary configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, applies a .env file, and honours environment
// overrides such as DISCORD_TOKEN and WHISPER_API_URL. The Config type
// centralizes every knob the daemon and CLI need so the staging layout, the
// encoder, and the transcription endpoint are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
