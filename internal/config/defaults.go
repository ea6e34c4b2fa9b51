package config

const (
	defaultWorkDir                = "~/.local/share/voicediary/work"
	defaultNotesDir               = "~/.local/share/voicediary/notes"
	defaultLogDir                 = "~/.local/share/voicediary/logs"
	defaultBackgroundImageName    = "bg.jpg"
	defaultFFmpegBinary           = "ffmpeg"
	defaultAudioBitrate           = 96
	minAudioBitrate               = 64
	maxAudioBitrate               = 128
	defaultMaxFileSize            = 25 * 1024 * 1024
	defaultTimeoutSeconds         = 300
	defaultPollIntervalSeconds    = 30
	defaultDownloadTimeoutSeconds = 120
	defaultTranscriptionModel     = "whisper-1"
	defaultTranscriptionTimeout   = 600
	defaultNtfyRequestTimeout     = 10
	defaultShutdownGraceSeconds   = 30
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			NotesDir: defaultNotesDir,
			LogDir:   defaultLogDir,
		},
		Conversion: Conversion{
			FFmpegBinary:        defaultFFmpegBinary,
			AudioBitrate:        defaultAudioBitrate,
			TimeoutSeconds:      defaultTimeoutSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Attachments: Attachments{
			MaxFileSize:            defaultMaxFileSize,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Transcription: Transcription{
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Workflow: Workflow{
			Mode:                 ModeVideo,
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
			CleanInboxOnStart:    true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
