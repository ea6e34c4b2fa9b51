package transcription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"voicediary/internal/logging"
	"voicediary/internal/services"
)

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// NoteResult describes a successful append.
type NoteResult struct {
	Path       string
	Created    bool
	Characters int
}

// Writer transcribes audio and appends the text to the day's note.
type Writer struct {
	transcriber Transcriber
	notesDir    string
	now         func() time.Time
	logger      *slog.Logger

	// mu serializes appends so header creation and entries from concurrent
	// attachments never interleave.
	mu sync.Mutex
}

// NewWriter constructs a Writer. now defaults to time.Now.
func NewWriter(transcriber Transcriber, notesDir string, now func() time.Time, logger *slog.Logger) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{
		transcriber: transcriber,
		notesDir:    notesDir,
		now:         now,
		logger:      logging.NewComponentLogger(logger, "transcription"),
	}
}

// Process transcribes audioPath and appends the result under filename. The
// note is untouched when transcription fails.
func (w *Writer) Process(ctx context.Context, audioPath, filename string) (NoteResult, error) {
	text, err := w.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return NoteResult{}, err
	}
	return w.AppendEntry(filename, text)
}

// AppendEntry appends one entry to today's note, creating it with the
// navigation header when it does not exist yet.
func (w *Writer) AppendEntry(filename, text string) (NoteResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	path := DailyNotePath(w.notesDir, now)
	text = norm.NFC.String(text)

	if err := os.MkdirAll(w.notesDir, 0o755); err != nil {
		return NoteResult{}, services.Wrap(services.ErrConfiguration, "transcription", "create notes dir", "Notes directory unavailable", err)
	}

	file, created, err := openNote(path)
	if err != nil {
		return NoteResult{}, services.Wrap(services.ErrTransient, "transcription", "open note", "Daily note unavailable", err)
	}
	defer file.Close()

	content := FormatEntry(now, filename, text)
	if created {
		content = Header(now) + content
	}
	if _, err := file.WriteString(content); err != nil {
		return NoteResult{}, services.Wrap(services.ErrTransient, "transcription", "append note", "Failed to write daily note", err)
	}
	if err := file.Close(); err != nil {
		return NoteResult{}, services.Wrap(services.ErrTransient, "transcription", "close note", "Failed to flush daily note", err)
	}

	w.logger.Info("transcript appended",
		logging.Filename(filename),
		logging.String("note", path),
		logging.Bool("created", created),
		logging.String(logging.FieldEventType, "note_appended"),
	)
	return NoteResult{Path: path, Created: created, Characters: len([]rune(text))}, nil
}

// openNote opens path for appending, reporting whether this call created it.
func openNote(path string) (*os.File, bool, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return file, true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, false, err
	}
	file, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open existing note: %w", err)
	}
	return file, false, nil
}
