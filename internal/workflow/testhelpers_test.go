package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voicediary/internal/config"
	"voicediary/internal/download"
	"voicediary/internal/encoding"
	"voicediary/internal/logging"
	"voicediary/internal/services"
	"voicediary/internal/staging"
	"voicediary/internal/testsupport"
	"voicediary/internal/transcription"
)

type sentMessage struct {
	kind string
	ref  MessageRef
	text string
}

type fakeSink struct {
	mu       sync.Mutex
	next     int
	messages []sentMessage
	replyErr error
}

func (s *fakeSink) Reply(ctx context.Context, text string) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyErr != nil {
		return MessageRef{}, s.replyErr
	}
	s.next++
	ref := MessageRef{ChannelID: "1000", MessageID: fmt.Sprintf("m%d", s.next)}
	s.messages = append(s.messages, sentMessage{kind: "reply", ref: ref, text: text})
	return ref, nil
}

func (s *fakeSink) Edit(ctx context.Context, ref MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{kind: "edit", ref: ref, text: text})
	return nil
}

func (s *fakeSink) snapshot() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.messages...)
}

// fakeDownloader writes size bytes to dest unless err is set.
type fakeDownloader struct {
	size int64
	err  error
}

func (d *fakeDownloader) Fetch(_ context.Context, url, dest string, maxBytes int64) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}
	if err := os.WriteFile(dest, make([]byte, d.size), 0o644); err != nil {
		return 0, err
	}
	return d.size, nil
}

// fakeConverter writes a small output file. With started set it signals
// entry, and with block set it runs until ctx is canceled.
type fakeConverter struct {
	mu      sync.Mutex
	jobs    []encoding.Job
	err     error
	sawFile bool
	started chan struct{}
	block   bool
	// requestIDs holds the correlation id each job ran under.
	requestIDs []string
}

func (c *fakeConverter) Convert(ctx context.Context, job encoding.Job) (encoding.Result, error) {
	c.mu.Lock()
	c.jobs = append(c.jobs, job)
	c.sawFile = staging.FileExists(job.InputPath)
	rid, _ := services.RequestIDFromContext(ctx)
	c.requestIDs = append(c.requestIDs, rid)
	c.mu.Unlock()
	if c.started != nil {
		close(c.started)
	}
	if c.block {
		<-ctx.Done()
		return encoding.Result{}, &encoding.ConversionError{Kind: encoding.FailureCanceled, Err: ctx.Err()}
	}
	if c.err != nil {
		return encoding.Result{}, c.err
	}
	if err := os.WriteFile(job.OutputPath, []byte("mp4"), 0o644); err != nil {
		return encoding.Result{}, err
	}
	return encoding.Result{OutputPath: job.OutputPath, OutputBytes: 3}, nil
}

type staticTranscriber struct {
	text string
	err  error
}

func (s staticTranscriber) Transcribe(context.Context, string) (string, error) {
	return s.text, s.err
}

type observation struct {
	mode, outcome string
}

type fakeRecorder struct {
	mu      sync.Mutex
	jobs    []observation
	staging map[string]int64
}

func (r *fakeRecorder) ObserveJob(mode, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, observation{mode: mode, outcome: outcome})
}

func (r *fakeRecorder) SetStagingUsage(bytesByDir map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staging = bytesByDir
}

func (r *fakeRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, o := range r.jobs {
		out = append(out, o.outcome)
	}
	return out
}

type failureAlert struct {
	filename, class string
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []failureAlert
}

func (n *fakeNotifier) NotifyStarted(context.Context, string) error        { return nil }
func (n *fakeNotifier) NotifyEncoderMissing(context.Context, string) error { return nil }
func (n *fakeNotifier) TestNotification(context.Context) error             { return nil }
func (n *fakeNotifier) NotifyJobFailed(_ context.Context, filename, class string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, failureAlert{filename: filename, class: class})
	return nil
}

func (n *fakeNotifier) snapshot() []failureAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]failureAlert(nil), n.alerts...)
}

type harness struct {
	cfg        *config.Config
	storage    *staging.Manager
	downloader *fakeDownloader
	converter  *fakeConverter
	notes      *transcription.Writer
	recorder   *fakeRecorder
	notifier   *fakeNotifier
	sink       *fakeSink
	coord      *Coordinator
	now        time.Time
}

func newHarness(t *testing.T, transcriber staticTranscriber, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	logger := logging.NewNop()
	storage := staging.New(cfg.Paths.WorkDir, logger)
	if err := storage.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	fixed := time.Date(2025, 10, 11, 9, 30, 0, 0, time.Local)
	h := &harness{
		cfg:        cfg,
		storage:    storage,
		downloader: &fakeDownloader{size: 128},
		converter:  &fakeConverter{},
		notes:      transcription.NewWriter(transcriber, cfg.Paths.NotesDir, func() time.Time { return fixed }, logger),
		recorder:   &fakeRecorder{},
		notifier:   &fakeNotifier{},
		sink:       &fakeSink{},
		now:        fixed,
	}
	h.coord = NewCoordinator(cfg, Dependencies{
		Storage:    storage,
		Downloader: h.downloader,
		Converter:  h.converter,
		Notes:      h.notes,
		Notifier:   h.notifier,
		Metrics:    h.recorder,
	}, logger)
	return h
}

func (h *harness) handle(t *testing.T, attachments ...Attachment) Outcome {
	t.Helper()
	outcome := h.coord.HandleAttachmentMessage(context.Background(), h.cfg.Discord.ChannelID, "user-1", attachments, h.sink)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.Wait(ctx); err != nil {
		t.Fatalf("jobs did not finish: %v", err)
	}
	return outcome
}

func (h *harness) notesNow() time.Time { return h.now }

func (h *harness) inboxEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.storage.InboxDir())
	if err != nil {
		t.Fatalf("read inbox: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func audio(name string) Attachment {
	return Attachment{
		Filename:    name,
		ContentType: "audio/ogg",
		SizeBytes:   128,
		URL:         "https://cdn.example/" + name,
	}
}

var errNetwork = &download.Error{Kind: download.KindNetwork, URL: "https://cdn.example/x", Err: errors.New("connection reset")}

func outputPath(h *harness, name string) string {
	return filepath.Join(h.storage.OutputDir(), name)
}
