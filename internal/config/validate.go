package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable. Discord credentials are
// checked separately by ValidateGateway because offline commands do not need them.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if c.Attachments.MaxFileSize <= 0 {
		return errors.New("attachments.max_file_size must be positive")
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateGateway checks the settings required to connect to the chat gateway.
func (c *Config) ValidateGateway() error {
	if c.Discord.Token == "" {
		return errors.New("discord.token (DISCORD_TOKEN) must be set")
	}
	if c.Discord.ChannelID == "" {
		return errors.New("discord.channel_id (CHANNEL_ID) must be set")
	}
	if _, err := strconv.ParseUint(c.Discord.ChannelID, 10, 64); err != nil {
		return fmt.Errorf("discord.channel_id must be a numeric id, got %q", c.Discord.ChannelID)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Workflow.Mode == ModeTranscription && strings.TrimSpace(c.Paths.NotesDir) == "" {
		return errors.New("paths.notes_dir must be set in transcription mode")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if c.Conversion.AudioBitrate < minAudioBitrate || c.Conversion.AudioBitrate > maxAudioBitrate {
		return fmt.Errorf("conversion.audio_bitrate must be between %d and %d kbps, got %d",
			minAudioBitrate, maxAudioBitrate, c.Conversion.AudioBitrate)
	}
	if c.Conversion.TimeoutSeconds <= 0 {
		return errors.New("conversion.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.Mode {
	case ModeVideo:
	case ModeTranscription:
		if c.Transcription.BaseURL == "" {
			return errors.New("transcription.base_url (WHISPER_API_URL) must be set in transcription mode")
		}
		if !strings.HasPrefix(c.Transcription.BaseURL, "http://") && !strings.HasPrefix(c.Transcription.BaseURL, "https://") {
			return fmt.Errorf("transcription.base_url must be an http(s) URL, got %q", c.Transcription.BaseURL)
		}
	default:
		return fmt.Errorf("workflow.mode must be %q or %q, got %q", ModeVideo, ModeTranscription, c.Workflow.Mode)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
