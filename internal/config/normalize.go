package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// envOverride binds an environment variable to a setter on Config.
type envOverride struct {
	name  string
	apply func(c *Config, value string) error
}

var envOverrides = []envOverride{
	{"DISCORD_TOKEN", func(c *Config, v string) error { c.Discord.Token = v; return nil }},
	{"CHANNEL_ID", func(c *Config, v string) error { c.Discord.ChannelID = v; return nil }},
	{"WORK_DIR", func(c *Config, v string) error { c.Paths.WorkDir = v; return nil }},
	{"BACKGROUND_IMAGE", func(c *Config, v string) error { c.Paths.BackgroundImage = v; return nil }},
	{"DELETE_ON_SUCCESS", func(c *Config, v string) error {
		c.Conversion.DeleteOnSuccess = parseBool(v)
		return nil
	}},
	{"AUDIO_BITRATE", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDIO_BITRATE: %w", err)
		}
		c.Conversion.AudioBitrate = n
		return nil
	}},
	{"MAX_FILE_SIZE", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE: %w", err)
		}
		c.Attachments.MaxFileSize = n
		return nil
	}},
	{"PROCESSING_TIMEOUT", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROCESSING_TIMEOUT: %w", err)
		}
		c.Conversion.TimeoutSeconds = n
		return nil
	}},
	{"WHISPER_API_URL", func(c *Config, v string) error { c.Transcription.BaseURL = v; return nil }},
	{"WHISPER_MODEL", func(c *Config, v string) error { c.Transcription.Model = v; return nil }},
	{"TRANSCRIPTION_OUTPUT_DIR", func(c *Config, v string) error { c.Paths.NotesDir = v; return nil }},
	{"BOT_MODE", func(c *Config, v string) error { c.Workflow.Mode = v; return nil }},
	{"NTFY_TOPIC", func(c *Config, v string) error { c.Notifications.NtfyTopic = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
}

// applyEnv overlays set environment variables onto the decoded file values.
func (c *Config) applyEnv() error {
	for _, o := range envOverrides {
		value, ok := os.LookupEnv(o.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if err := o.apply(c, value); err != nil {
			return fmt.Errorf("environment override: %w", err)
		}
	}
	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func (c *Config) normalize() error {
	var err error

	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Discord.ChannelID = strings.TrimSpace(c.Discord.ChannelID)

	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BackgroundImage) == "" {
		c.Paths.BackgroundImage = filepath.Join(c.Paths.WorkDir, "assets", defaultBackgroundImageName)
	} else if c.Paths.BackgroundImage, err = expandPath(c.Paths.BackgroundImage); err != nil {
		return fmt.Errorf("paths.background_image: %w", err)
	}
	if c.Paths.NotesDir, err = expandPath(c.Paths.NotesDir); err != nil {
		return fmt.Errorf("paths.notes_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Conversion.FFmpegBinary = strings.TrimSpace(c.Conversion.FFmpegBinary)
	if c.Conversion.FFmpegBinary == "" {
		c.Conversion.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Conversion.PollIntervalSeconds <= 0 {
		c.Conversion.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Attachments.DownloadTimeoutSeconds <= 0 {
		c.Attachments.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}

	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)

	c.Workflow.Mode = strings.ToLower(strings.TrimSpace(c.Workflow.Mode))
	if c.Workflow.Mode == "" {
		c.Workflow.Mode = ModeVideo
	}
	if c.Workflow.ShutdownGraceSeconds < 0 {
		c.Workflow.ShutdownGraceSeconds = 0
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
