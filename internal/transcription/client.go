package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicediary/internal/logging"
	"voicediary/internal/services"
)

const (
	endpointPath       = "/v1/audio/transcriptions"
	defaultHTTPTimeout = 10 * time.Minute
	maxResponseBytes   = 8 << 20
)

// Config captures the runtime settings for the transcription service.
type Config struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client talks to a Whisper-compatible transcription API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "transcription")
	}
}

// NewClient constructs a transcription client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Endpoint returns the full transcription URL.
func (c *Client) Endpoint() string {
	return c.cfg.BaseURL + endpointPath
}

type transcriptionResponse struct {
	Text *json.RawMessage `json:"text"`
}

// Transcribe uploads the audio file and returns the recognized text. It makes
// exactly one request.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	logger := logging.WithContext(ctx, c.logger)

	file, err := os.Open(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcription", "open audio", "Audio file unreadable", err)
	}
	defer file.Close()

	body, contentType := multipartBody(file, filepath.Base(audioPath), c.cfg.Model)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transcription", "build request", "Invalid transcription URL", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcription", "request", "Transcription service unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcription", "read response", "Transcription response interrupted", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: snippet(payload)}
	}

	text, err := decodeText(payload)
	if err != nil {
		return "", err
	}
	logger.Info("transcription received",
		logging.Filename(audioPath),
		logging.Int("characters", len([]rune(text))),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "transcription_completed"),
	)
	return text, nil
}

func decodeText(payload []byte) (string, error) {
	var parsed transcriptionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", &ProtocolError{Reason: "body is not a JSON object", Snippet: snippet(payload)}
	}
	if parsed.Text == nil {
		return "", &ProtocolError{Reason: `missing "text" field`, Snippet: snippet(payload)}
	}
	var text string
	if err := json.Unmarshal(*parsed.Text, &text); err != nil {
		return "", &ProtocolError{Reason: `"text" is not a string`, Snippet: snippet(payload)}
	}
	return text, nil
}

// multipartBody streams the form through a pipe so the audio is never held in
// memory twice.
func multipartBody(file io.Reader, filename, model string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, file, filename, model)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, file io.Reader, filename, model string) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return fmt.Errorf("write model field: %w", err)
	}
	return nil
}
