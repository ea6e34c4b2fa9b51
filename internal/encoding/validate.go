package encoding

import (
	"context"
	"os/exec"
	"time"

	"voicediary/internal/logging"
)

const versionCheckTimeout = 10 * time.Second

// ValidateInstallation runs "<binary> -version" with a 10 second limit. Any
// failure, including a missing binary, yields false.
func (r *Runner) ValidateInstallation(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, "-version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		logging.WarnWithContext(r.logger, "encoder installation check failed", "encoder_check_failed",
			logging.String("binary", r.binary),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set conversion.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "video conversions will fail"),
		)
		return false
	}
	r.logger.Debug("encoder installation verified",
		logging.String("binary", r.binary),
		logging.String("version", lastLine(firstLine(string(output)))),
	)
	return true
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
