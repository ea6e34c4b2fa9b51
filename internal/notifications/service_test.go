package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"voicediary/internal/config"
)

type captured struct {
	title, tags, priority, body string
}

func newRecorder(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestNewServiceWithoutTopicIsNoop(t *testing.T) {
	cfg := config.Default()
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyJobFailed(context.Background(), "a.ogg", "encoder_failure", errors.New("x")); err != nil {
		t.Fatalf("noop returned error: %v", err)
	}
}

func TestNotifyJobFailed(t *testing.T) {
	srv, requests := newRecorder(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL

	err := NewService(&cfg).NotifyJobFailed(context.Background(), "voice.mp3", "encoder_timeout", errors.New("encoder killed after 5m0s"))
	if err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	got := reqs[0]
	if got.title != "voicediary - Processing Failed" || got.priority != "high" {
		t.Fatalf("unexpected headers %+v", got)
	}
	if !strings.Contains(got.tags, "encoder_timeout") {
		t.Fatalf("tags = %q", got.tags)
	}
	if !strings.Contains(got.body, "voice.mp3") || !strings.Contains(got.body, "encoder killed") {
		t.Fatalf("body = %q", got.body)
	}
}

func TestNotifyEncoderMissingAndStarted(t *testing.T) {
	srv, requests := newRecorder(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := NewService(&cfg)

	if err := svc.NotifyStarted(context.Background(), "video"); err != nil {
		t.Fatalf("NotifyStarted: %v", err)
	}
	if err := svc.NotifyEncoderMissing(context.Background(), "ffmpeg"); err != nil {
		t.Fatalf("NotifyEncoderMissing: %v", err)
	}
	reqs := requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if !strings.Contains(reqs[0].body, "video mode") || reqs[0].priority != "low" {
		t.Fatalf("unexpected start notification %+v", reqs[0])
	}
	if !strings.Contains(reqs[1].body, "ffmpeg") {
		t.Fatalf("unexpected encoder notification %+v", reqs[1])
	}
}

func TestTestNotificationDefaultPriorityOmitted(t *testing.T) {
	srv, requests := newRecorder(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL

	if err := NewService(&cfg).TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if got := requests()[0]; got.priority != "" {
		t.Fatalf("priority header should be omitted, got %q", got.priority)
	}
}

func TestSendReportsHTTPError(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL

	err := NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
