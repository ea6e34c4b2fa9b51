package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicediary/internal/config"
)

const userAgent = "voicediary/0.1"

// Service defines the notification surface exposed to the daemon and coordinator.
type Service interface {
	NotifyStarted(ctx context.Context, mode string) error
	NotifyEncoderMissing(ctx context.Context, binary string) error
	NotifyJobFailed(ctx context.Context, filename, class string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyStarted(ctx context.Context, mode string) error {
	return n.send(ctx, payload{
		title:    "voicediary - Started",
		message:  fmt.Sprintf("🎙️ Watching for voice messages (%s mode)", mode),
		tags:     []string{"voicediary", "started"},
		priority: "low",
	})
}

func (n *ntfyService) NotifyEncoderMissing(ctx context.Context, binary string) error {
	return n.send(ctx, payload{
		title:    "voicediary - Encoder Missing",
		message:  fmt.Sprintf("⚠️ %s is not installed or not runnable; video conversions will fail", strings.TrimSpace(binary)),
		tags:     []string{"voicediary", "warning", "ffmpeg"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, filename, class string, err error) error {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return n.send(ctx, payload{
		title:    "voicediary - Processing Failed",
		message:  fmt.Sprintf("❌ %s (%s): %s", strings.TrimSpace(filename), class, detail),
		tags:     []string{"voicediary", "error", class},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "voicediary - Test",
		message: "🧪 Notification channel is working",
		tags:    []string{"voicediary", "test"},
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStarted(context.Context, string) error                  { return nil }
func (noopService) NotifyEncoderMissing(context.Context, string) error           { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
