package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteStub writes an executable /bin/sh script named name into dir and
// returns its path. body is inserted after the shebang line.
func WriteStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir stub dir: %v", err)
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

// EncoderWritesOutput is an ffmpeg stub body that writes bytes to its last
// argument, which is where the output path goes.
const EncoderWritesOutput = `for last; do :; done
printf 'fake-mp4-data' > "$last"`
