package staging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"voicediary/internal/logging"
)

// CleanupResult contains the outcome of a bulk inbox cleanup.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanupAllInbox removes every regular file left in the inbox, typically
// leftovers from a crash. Subdirectories are not touched.
func (m *Manager) CleanupAllInbox() CleanupResult {
	result := CleanupResult{}

	entries, err := os.ReadDir(m.inboxDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: m.inboxDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(m.inboxDir, entry.Name())
		if err := m.CleanupInbox(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, path)
	}

	if len(result.Removed) > 0 {
		m.logger.Info("removed leftover inbox files",
			logging.Int("removed", len(result.Removed)),
			logging.String(logging.FieldEventType, "inbox_cleanup_all"),
		)
	}
	return result
}

// FileInfo describes one staged file.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListInbox returns the regular files currently in the inbox, sorted by name.
func (m *Manager) ListInbox() ([]FileInfo, error) {
	return listFiles(m.inboxDir, "")
}

// ListOutput returns the rendered videos in the output directory, sorted by name.
func (m *Manager) ListOutput() ([]FileInfo, error) {
	return listFiles(m.outputDir, videoExt)
}

func listFiles(dir, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ext != "" && filepath.Ext(entry.Name()) != ext {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Usage is the recursive byte total of each managed directory.
type Usage struct {
	Work   int64
	Inbox  int64
	Output int64
	Assets int64
}

// DiskUsage sums file sizes under each managed directory. Unreadable entries
// are skipped.
func (m *Manager) DiskUsage() Usage {
	return Usage{
		Work:   dirSize(m.workDir),
		Inbox:  dirSize(m.inboxDir),
		Output: dirSize(m.outputDir),
		Assets: dirSize(m.assetsDir),
	}
}

// ByDir returns the usage keyed by directory label.
func (u Usage) ByDir() map[string]int64 {
	return map[string]int64{
		"work":   u.Work,
		"inbox":  u.Inbox,
		"output": u.Output,
		"assets": u.Assets,
	}
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
