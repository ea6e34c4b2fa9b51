// Package download streams attachment bytes from the chat CDN into the
// staging inbox, refusing to write more than the configured size limit.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"voicediary/internal/logging"
	"voicediary/internal/services"
)

const defaultTimeout = 2 * time.Minute

// Kind classifies a download failure.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindStatus
	KindTooLarge
	KindWrite
)

// Error describes a failed download. All kinds are reported to the user as a
// network error.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Limit      int64
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("download: http %d", e.StatusCode)
	case KindTooLarge:
		return fmt.Sprintf("download: body exceeds %d bytes", e.Limit)
	case KindWrite:
		return fmt.Sprintf("download: write staged file: %v", e.Err)
	default:
		return fmt.Sprintf("download: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrDownload is matched by every *Error.
var ErrDownload = errors.New("download failed")

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDownload:
		return true
	case services.ErrTransient:
		return e.Kind == KindNetwork || e.Kind == KindStatus
	case services.ErrValidation:
		return e.Kind == KindTooLarge
	}
	return false
}

// Fetcher downloads URLs to local files.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a Fetcher. A zero timeout selects the default.
func New(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "download"),
	}
}

// Fetch streams url into dest, truncating any existing file. When the body is
// larger than maxBytes the partial file is removed and a KindTooLarge error is
// returned. On any failure dest does not exist afterwards.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, maxBytes int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &Error{Kind: KindStatus, URL: url, StatusCode: resp.StatusCode}
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return 0, &Error{Kind: KindTooLarge, URL: url, Limit: maxBytes}
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &Error{Kind: KindWrite, URL: url, Err: err}
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()

	var fetchErr error
	switch {
	case copyErr != nil:
		fetchErr = &Error{Kind: KindNetwork, URL: url, Err: copyErr}
	case closeErr != nil:
		fetchErr = &Error{Kind: KindWrite, URL: url, Err: closeErr}
	case maxBytes > 0 && written > maxBytes:
		fetchErr = &Error{Kind: KindTooLarge, URL: url, Limit: maxBytes}
	}
	if fetchErr != nil {
		if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("failed to remove partial download",
				logging.String("target_path", dest),
				logging.Error(err),
				logging.String(logging.FieldEventType, "download_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check inbox permissions"),
				logging.String(logging.FieldImpact, "partial file left in inbox"),
			)
		}
		return 0, fetchErr
	}

	logging.WithContext(ctx, f.logger).Debug("download complete",
		logging.String("download_url", url),
		logging.String("target_path", dest),
		logging.Int64("size_bytes", written),
	)
	return written, nil
}
