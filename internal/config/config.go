package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Operating modes.
const (
	ModeVideo         = "video"
	ModeTranscription = "transcription"
)

// Discord contains the gateway credentials and the monitored channel.
type Discord struct {
	Token     string `toml:"token"`
	ChannelID string `toml:"channel_id"`
}

// Paths contains directory configuration.
type Paths struct {
	WorkDir         string `toml:"work_dir"`
	BackgroundImage string `toml:"background_image"`
	NotesDir        string `toml:"notes_dir"`
	LogDir          string `toml:"log_dir"`
}

// Conversion contains encoder settings for video mode.
type Conversion struct {
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	AudioBitrate        int    `toml:"audio_bitrate"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	DeleteOnSuccess     bool   `toml:"delete_on_success"`
}

// Attachments contains limits applied to inbound attachments.
type Attachments struct {
	MaxFileSize            int64 `toml:"max_file_size"`
	DownloadTimeoutSeconds int   `toml:"download_timeout_seconds"`
}

// Transcription contains the speech-to-text endpoint settings.
type Transcription struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Metrics contains the optional prometheus listener.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Workflow contains configuration for the processing daemon.
type Workflow struct {
	Mode                 string `toml:"mode"`
	ShutdownGraceSeconds int    `toml:"shutdown_grace_seconds"`
	CleanInboxOnStart    bool   `toml:"clean_inbox_on_start"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for voicediary. It is loaded
// once at startup and handed to components as a read-only snapshot.
//
// Configuration sections by subsystem:
//   - Discord: bot token and monitored channel
//   - Paths: work root, background image, notes and log directories
//   - Conversion: ffmpeg bitrate, timeout, and delete-on-success policy
//   - Attachments: size and download limits
//   - Transcription: Whisper-compatible endpoint and model
//   - Notifications: ntfy operator alerts
//   - Metrics: prometheus listener
//   - Workflow: operating mode and shutdown behaviour
//   - Logging: log format and level
type Config struct {
	Discord       Discord       `toml:"discord"`
	Paths         Paths         `toml:"paths"`
	Conversion    Conversion    `toml:"conversion"`
	Attachments   Attachments   `toml:"attachments"`
	Transcription Transcription `toml:"transcription"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/voicediary/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory is applied to the process environment first; real
// environment variables always win over .env entries, and environment
// variables win over the file.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("voicediary.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// InboxDir returns the staging directory for downloaded attachments.
func (c *Config) InboxDir() string {
	return filepath.Join(c.Paths.WorkDir, "inbox")
}

// OutputDir returns the directory that receives rendered videos.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.WorkDir, "out")
}

// AssetsDir returns the directory holding static assets such as the background image.
func (c *Config) AssetsDir() string {
	return filepath.Join(c.Paths.WorkDir, "assets")
}

// VideoMode reports whether attachments are rendered to video.
func (c *Config) VideoMode() bool {
	return c.Workflow.Mode == ModeVideo
}

// ShutdownGrace is how long shutdown waits for in-flight jobs.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Workflow.ShutdownGraceSeconds) * time.Second
}

// ConversionTimeout is the wall-clock limit for one encoder run.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

// EnsureDirectories creates the notes and log directories. The staging layout
// itself is owned by the staging package.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if c.Workflow.Mode == ModeTranscription {
		dirs = append(dirs, c.Paths.NotesDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	if c.Discord.Token != "" {
		c.Discord.Token = "********"
	}
	return c
}
