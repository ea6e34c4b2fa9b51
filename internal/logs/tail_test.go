package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicediary/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicediary.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("offset = %d, want 6", result.Offset)
	}
}

func TestTailFewerLinesThanLimit(t *testing.T) {
	path := writeLog(t, "only\n")

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "done\npartial")

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: 0})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Offset != 5 {
		t.Fatalf("unexpected result: %#v", result)
	}

	appendLog(t, path, " line\n")
	result, err = logs.Tail(context.Background(), path, logs.Options{Offset: result.Offset})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "partial line" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailFiltersByJob(t *testing.T) {
	path := writeLog(t, `{"msg":"download started","job_id":"a1"}
{"msg":"download started","job_id":"b2"}
plain text line
{"msg":"conversion finished","job_id":"a1"}
`)

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 5, JobID: "a1"})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 2 {
		t.Fatalf("expected two a1 lines, got %#v", result.Lines)
	}
	for _, line := range result.Lines {
		if !logs.MatchesJob(line, "a1") {
			t.Fatalf("line %q does not belong to job a1", line)
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "missing.log"), logs.Options{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.Options{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	done := make(chan logs.Result, 1)
	go func(offset int64) {
		res, err := logs.Tail(ctx, path, logs.Options{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		done <- res
	}(result.Offset)

	time.Sleep(100 * time.Millisecond)
	appendLog(t, path, "later\n")

	select {
	case res := <-done:
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", res.Lines)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("follow tail did not return")
	}
}

func TestTailFollowCanceled(t *testing.T) {
	path := writeLog(t, "start\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := logs.Tail(ctx, path, logs.Options{Offset: 6, Follow: true, Wait: time.Second})
	if err == nil {
		t.Fatal("expected context error")
	}
}
