// Package staging owns the on-disk work area: the inbox for downloaded
// attachments, the output directory for rendered videos, and the assets
// directory holding the background image.
//
// Files are keyed by their attachment filename. Two concurrent attachments
// with the same name share a path; the later download overwrites the earlier
// one. Cleanup only ever unlinks a path whose parent directory is exactly one
// of the managed roots.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"voicediary/internal/logging"
)

const (
	inboxDirName  = "inbox"
	outputDirName = "out"
	assetsDirName = "assets"
	videoExt      = ".mp4"
)

// Manager derives staging paths and enforces cleanup boundaries.
type Manager struct {
	workDir   string
	inboxDir  string
	outputDir string
	assetsDir string
	logger    *slog.Logger
}

// New returns a Manager rooted at workDir. The directories are not created
// until EnsureLayout is called.
func New(workDir string, logger *slog.Logger) *Manager {
	workDir = filepath.Clean(workDir)
	return &Manager{
		workDir:   workDir,
		inboxDir:  filepath.Join(workDir, inboxDirName),
		outputDir: filepath.Join(workDir, outputDirName),
		assetsDir: filepath.Join(workDir, assetsDirName),
		logger:    logging.NewComponentLogger(logger, "staging"),
	}
}

// WorkDir returns the staging root.
func (m *Manager) WorkDir() string { return m.workDir }

// InboxDir returns the directory downloads are written to.
func (m *Manager) InboxDir() string { return m.inboxDir }

// OutputDir returns the directory rendered videos are written to.
func (m *Manager) OutputDir() string { return m.outputDir }

// AssetsDir returns the static asset directory.
func (m *Manager) AssetsDir() string { return m.assetsDir }

// EnsureLayout creates the work, inbox, output, and assets directories. It is
// idempotent.
func (m *Manager) EnsureLayout() error {
	for _, dir := range []string{m.workDir, m.inboxDir, m.outputDir, m.assetsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create staging directory %q: %w", dir, err)
		}
	}
	return nil
}

// InboxPathFor returns the inbox location for an attachment. Only the base
// name is used so a crafted filename cannot escape the inbox.
func (m *Manager) InboxPathFor(filename string) string {
	return filepath.Join(m.inboxDir, safeBase(filename))
}

// OutputPathFor returns out/<stem>.mp4 for the given attachment filename.
func (m *Manager) OutputPathFor(filename string) string {
	base := safeBase(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(m.outputDir, stem+videoExt)
}

func safeBase(filename string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, "\\", "/")))
	if base == "/" || base == "." || base == "" {
		return "attachment"
	}
	return base
}

// ValidateSize reports whether path exists and is at most maxBytes. It never
// returns an error; an unreadable or missing file is simply invalid.
func (m *Manager) ValidateSize(path string, maxBytes int64) bool {
	size, ok := FileSize(path)
	if !ok {
		return false
	}
	return size <= maxBytes
}

// FileSize returns the size of a regular file.
func FileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	_, ok := FileSize(path)
	return ok
}

// CleanupInbox removes a staged download. Paths outside the inbox are refused.
func (m *Manager) CleanupInbox(path string) error {
	return m.removeManaged(m.inboxDir, path, "inbox")
}

// CleanupOutput removes a rendered video when enabled is true.
func (m *Manager) CleanupOutput(path string, enabled bool) error {
	if !enabled {
		return nil
	}
	return m.removeManaged(m.outputDir, path, "output")
}

// ErrOutsideManagedDir is returned when a cleanup target is not directly
// inside the expected root.
var ErrOutsideManagedDir = errors.New("path is outside the managed directory")

func (m *Manager) removeManaged(root, path, label string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	cleaned := filepath.Clean(path)
	if filepath.Dir(cleaned) != root {
		m.logger.Warn("refusing to remove file outside managed directory",
			logging.String("target_path", cleaned),
			logging.String("managed_dir", root),
			logging.String(logging.FieldEventType, label+"_cleanup_refused"),
			logging.String(logging.FieldErrorHint, "check staging path derivation"),
			logging.String(logging.FieldImpact, "file left on disk"),
		)
		return fmt.Errorf("%s cleanup %q: %w", label, cleaned, ErrOutsideManagedDir)
	}
	if err := os.Remove(cleaned); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		logging.WarnWithContext(m.logger, "failed to remove staged file", label+"_cleanup_failed",
			logging.String("target_path", cleaned),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check work_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return fmt.Errorf("remove %s file %q: %w", label, cleaned, err)
	}
	m.logger.Debug("removed staged file",
		logging.String("target_path", cleaned),
		logging.String(logging.FieldEventType, label+"_cleanup"),
	)
	return nil
}
