package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"voicediary/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The background image is created so video jobs pass input validation.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Discord.Token = "test-token"
	cfgVal.Discord.ChannelID = "1000"
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.BackgroundImage = filepath.Join(base, "work", "assets", "bg.jpg")
	cfgVal.Paths.NotesDir = filepath.Join(base, "notes")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Conversion.TimeoutSeconds = 5
	cfgVal.Conversion.PollIntervalSeconds = 1
	cfgVal.Transcription.BaseURL = "http://127.0.0.1:0"
	cfgVal.Workflow.ShutdownGraceSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if _, err := os.Stat(builder.cfg.Paths.BackgroundImage); os.IsNotExist(err) {
		WriteFile(t, builder.cfg.Paths.BackgroundImage, 16)
	}

	return builder.cfg
}

// WithMode selects video or transcription mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Mode = mode
	}
}

// WithTranscriptionURL points the transcription client at a test server.
func WithTranscriptionURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.BaseURL = url
	}
}

// WithDeleteOnSuccess toggles removal of rendered videos after delivery.
func WithDeleteOnSuccess(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.DeleteOnSuccess = enabled
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteStub(b.t, binDir, name, "exit 0")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WithEncoderScript installs an ffmpeg stub running body and points the
// config at it.
func WithEncoderScript(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.FFmpegBinary = WriteStub(b.t, filepath.Join(b.baseDir, "bin"), "ffmpeg", body)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
