package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicediary/internal/logging"
	"voicediary/internal/services"
)

func TestFetchWritesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "audio-bytes")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "voice.ogg")
	n, err := New(0, logging.NewNop()).Fetch(context.Background(), srv.URL, dest, 1024)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if n != int64(len("audio-bytes")) || string(data) != "audio-bytes" {
		t.Fatalf("n=%d data=%q", n, data)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "voice.ogg")
	_, err := New(0, nil).Fetch(context.Background(), srv.URL, dest, 1024)
	var dlErr *Error
	if !errors.As(err, &dlErr) || dlErr.Kind != KindStatus || dlErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status error, got %v", err)
	}
	if !errors.Is(err, ErrDownload) || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("status error should match ErrDownload and ErrTransient")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("no file should be created for a failed status")
	}
}

func TestFetchTooLargeRemovesPartialFile(t *testing.T) {
	tests := []struct {
		name          string
		declareLength bool
	}{
		{"declared content length", true},
		{"chunked body", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Repeat("x", 100)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if !tc.declareLength {
					w.(http.Flusher).Flush()
				}
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "voice.ogg")
			_, err := New(0, nil).Fetch(context.Background(), srv.URL, dest, 50)
			var dlErr *Error
			if !errors.As(err, &dlErr) || dlErr.Kind != KindTooLarge {
				t.Fatalf("expected too-large error, got %v", err)
			}
			if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
				t.Fatal("partial file should be removed")
			}
		})
	}
}

func TestFetchExactLimitIsAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 50))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "voice.ogg")
	if _, err := New(0, nil).Fetch(context.Background(), srv.URL, dest, 50); err != nil {
		t.Fatalf("Fetch at limit: %v", err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(0, nil).Fetch(context.Background(), url, filepath.Join(t.TempDir(), "x"), 10)
	var dlErr *Error
	if !errors.As(err, &dlErr) || dlErr.Kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}
