// Package fileutil copies local files into the managed work directory.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned when a source exceeds the copy limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	_, err := CopyLimited(src, dst, 0)
	return err
}

// CopyLimited streams src into a temporary file beside dst and renames it into
// place once the byte count matches the source. A positive maxBytes rejects
// larger sources before and during the copy. dst is never left partially
// written.
func CopyLimited(src, dst string, maxBytes int64) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return 0, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, info.Size(), maxBytes)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var reader io.Reader = in
	if maxBytes > 0 {
		reader = io.LimitReader(in, maxBytes+1)
	}
	written, err := io.Copy(tmp, reader)
	if err != nil {
		return 0, err
	}
	if maxBytes > 0 && written > maxBytes {
		return 0, fmt.Errorf("%w: grew past %d bytes during copy", ErrTooLarge, maxBytes)
	}
	if written != info.Size() {
		return 0, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}
	committed = true
	return written, nil
}
