package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	maxLineBytes = 1024 * 1024
	pollInterval = 250 * time.Millisecond
)

// Options controls a Tail call.
type Options struct {
	// Offset is the byte position to resume from. A negative offset starts
	// from the last Limit lines instead.
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// JobID keeps only JSON records whose job_id field matches.
	JobID string
}

// Result carries the lines read and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// Tail reads path according to opts. A missing file yields an empty result.
func Tail(ctx context.Context, path string, opts Options) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result Result
	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit, opts.JobID)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// truncated or rotated underneath us
			offset = 0
		}
		result, err = readFrom(path, offset, opts.JobID)
	}
	if err != nil {
		return result, err
	}
	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return waitForLines(ctx, path, result.Offset, opts.Wait, opts.JobID)
	}
	return result, nil
}

// MatchesJob reports whether a JSON log line carries job_id == jobID. Lines
// that are not JSON never match.
func MatchesJob(line, jobID string) bool {
	var record struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return false
	}
	return record.JobID == jobID
}

func readLast(path string, limit int, jobID string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Result{}, fmt.Errorf("seek log file: %w", err)
		}
		return Result{Offset: end}, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	end, err := scanLines(file, func(line string) {
		if jobID != "" && !MatchesJob(line, jobID) {
			return
		}
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return Result{}, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range count {
		lines = append(lines, ring[(start+i)%limit])
	}
	return Result{Lines: lines, Offset: end}, nil
}

func readFrom(path string, offset int64, jobID string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scanLines(file, func(line string) {
		if jobID == "" || MatchesJob(line, jobID) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return Result{Offset: offset}, err
	}
	return Result{Lines: lines, Offset: offset + read}, nil
}

// scanLines feeds complete lines to fn and returns how many bytes of r were
// consumed. A trailing line without a newline is left for the next call.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		fn(trimNewline(line))
	}
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, jobID string) (Result, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
		result, err := readFrom(path, offset, jobID)
		if err != nil {
			return result, err
		}
		if len(result.Lines) > 0 || !time.Now().Before(deadline) {
			return result, nil
		}
		offset = result.Offset
	}
}
