package transcription

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"voicediary/internal/services"
)

// ErrInvalidResponse marks a reply that arrived but did not carry a string "text" field.
var ErrInvalidResponse = errors.New("invalid transcription response")

// ProtocolError reports a well-formed HTTP exchange whose body is unusable.
type ProtocolError struct {
	Reason  string
	Snippet string
}

func (e *ProtocolError) Error() string {
	if e.Snippet == "" {
		return "transcription response: " + e.Reason
	}
	return fmt.Sprintf("transcription response: %s (body: %s)", e.Reason, e.Snippet)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrInvalidResponse || target == services.ErrProtocol
}

// StatusError reports a non-2xx reply from the transcription service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *StatusError) Is(target error) bool {
	return target == services.ErrExternalTool
}

// snippet trims body to at most 200 bytes for logs and error text, cutting
// on a rune boundary.
func snippet(body []byte) string {
	const limit = 200
	s := strings.ToValidUTF8(strings.TrimSpace(string(body)), "\uFFFD")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
