package encoding

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Containers whose audio track ffmpeg can copy into MP4 without re-encoding.
// The decision is made on the file extension alone.
var copyableAudioExts = map[string]struct{}{
	".aac": {},
	".m4a": {},
}

// CanCopyAudio reports whether the input's audio stream is stream-copied.
func CanCopyAudio(inputPath string) bool {
	_, ok := copyableAudioExts[strings.ToLower(filepath.Ext(inputPath))]
	return ok
}

// BuildArgs returns the ffmpeg arguments for a job, excluding the binary name.
func BuildArgs(job Job) []string {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", job.BackgroundImage,
		"-i", job.InputPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-profile:v", "baseline",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
	}
	if CanCopyAudio(job.InputPath) {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args,
			"-c:a", "aac",
			"-b:a", strconv.Itoa(job.AudioBitrateKbps)+"k",
			"-ac", "1",
		)
	}
	return append(args,
		"-shortest",
		"-movflags", "+faststart",
		"-max_muxing_queue_size", "1024",
		job.OutputPath,
	)
}
