package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voicediary/internal/config"
	"voicediary/internal/encoding"
	"voicediary/internal/logging"
	"voicediary/internal/metrics"
	"voicediary/internal/staging"
	"voicediary/internal/testsupport"
	"voicediary/internal/workflow"
)

type fakeGateway struct {
	startErr error
	started  bool
	closed   bool
	jobCtx   context.Context
}

func (g *fakeGateway) Start(ctx context.Context) error {
	g.started = true
	g.jobCtx = ctx
	return g.startErr
}

func (g *fakeGateway) Close() error {
	g.closed = true
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	started []string
	missing []string
}

func (n *recordingNotifier) NotifyStarted(_ context.Context, mode string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, mode)
	return nil
}

func (n *recordingNotifier) NotifyEncoderMissing(_ context.Context, binary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missing = append(n.missing, binary)
	return nil
}

func (n *recordingNotifier) NotifyJobFailed(context.Context, string, string, error) error {
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type harness struct {
	cfg      *config.Config
	storage  *staging.Manager
	gateway  *fakeGateway
	notifier *recordingNotifier
	daemon   *Daemon
}

func newHarness(t *testing.T, encoder EncoderCheck, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	logger := logging.NewNop()
	storage := staging.New(cfg.Paths.WorkDir, logger)
	notifier := &recordingNotifier{}
	coord := workflow.NewCoordinator(cfg, workflow.Dependencies{Storage: storage, Notifier: notifier}, logger)
	gateway := &fakeGateway{}
	collectors, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}

	d, err := New(cfg, Dependencies{
		Storage:     storage,
		Coordinator: coord,
		Gateway:     gateway,
		Encoder:     encoder,
		Notifier:    notifier,
		Metrics:     collectors,
	}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &harness{cfg: cfg, storage: storage, gateway: gateway, notifier: notifier, daemon: d}
}

func workingEncoder(t *testing.T) *encoding.Runner {
	t.Helper()
	stub := testsupport.WriteStub(t, t.TempDir(), "ffmpeg", "echo 'ffmpeg version 6.1'")
	return encoding.NewRunner(encoding.Options{Binary: stub}, logging.NewNop())
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, Dependencies{}, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t, workingEncoder(t))

	leftover := filepath.Join(h.cfg.Paths.WorkDir, "inbox", "crashed.ogg")
	testsupport.WriteFile(t, leftover, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !h.gateway.started {
		t.Fatal("gateway not started")
	}
	if staging.FileExists(leftover) {
		t.Fatal("leftover inbox file should be removed on start")
	}
	status := h.daemon.Status()
	if !status.Running || status.Mode != config.ModeVideo {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(h.notifier.started) != 1 || len(h.notifier.missing) != 0 {
		t.Fatalf("unexpected notifications started=%v missing=%v", h.notifier.started, h.notifier.missing)
	}

	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.daemon.Stop()
	if !h.gateway.closed {
		t.Fatal("gateway not closed")
	}
	if h.daemon.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestStartKeepsInboxWhenCleanupDisabled(t *testing.T) {
	h := newHarness(t, workingEncoder(t))
	h.cfg.Workflow.CleanInboxOnStart = false
	leftover := filepath.Join(h.cfg.Paths.WorkDir, "inbox", "keep.ogg")
	testsupport.WriteFile(t, leftover, 10)

	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !staging.FileExists(leftover) {
		t.Fatal("inbox file removed although clean_inbox_on_start is off")
	}
	if inbox := h.daemon.Status().Inbox; len(inbox) != 1 || inbox[0].Name != "keep.ogg" {
		t.Fatalf("status inbox = %+v", inbox)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	first := newHarness(t, workingEncoder(t))
	if err := first.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	logger := logging.NewNop()
	coord := workflow.NewCoordinator(first.cfg, workflow.Dependencies{Storage: first.storage}, logger)
	second, err := New(first.cfg, Dependencies{Storage: first.storage, Coordinator: coord, Gateway: &fakeGateway{}}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "already") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestMissingEncoderAlertsOperator(t *testing.T) {
	missing := encoding.NewRunner(encoding.Options{Binary: filepath.Join(t.TempDir(), "nope")}, logging.NewNop())
	h := newHarness(t, missing)

	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start should succeed without encoder: %v", err)
	}
	if len(h.notifier.missing) != 1 {
		t.Fatalf("expected encoder alert, got %v", h.notifier.missing)
	}
}

func TestTranscriptionModeSkipsEncoderCheck(t *testing.T) {
	missing := encoding.NewRunner(encoding.Options{Binary: filepath.Join(t.TempDir(), "nope")}, logging.NewNop())
	h := newHarness(t, missing, testsupport.WithMode(config.ModeTranscription))

	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(h.notifier.missing) != 0 {
		t.Fatalf("transcription mode must not validate the encoder, got %v", h.notifier.missing)
	}
}

func TestGatewayFailureReleasesLock(t *testing.T) {
	h := newHarness(t, workingEncoder(t))
	h.gateway.startErr = errors.New("invalid token")

	if err := h.daemon.Start(context.Background()); err == nil {
		t.Fatal("expected gateway error")
	}
	if h.daemon.Status().Running {
		t.Fatal("daemon must not report running after failed start")
	}

	h.gateway.startErr = nil
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("lock should be released after failed start: %v", err)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	h := newHarness(t, workingEncoder(t))
	ok, msg, err := h.daemon.TestNotification(context.Background())
	if ok || err != nil || msg != "ntfy topic not configured" {
		t.Fatalf("unexpected result ok=%v msg=%q err=%v", ok, msg, err)
	}
}

func TestAPIServerServesStatusAndMetrics(t *testing.T) {
	h := newHarness(t, workingEncoder(t))
	h.cfg.Metrics.Bind = "127.0.0.1:0"
	h.daemon.api = newAPIServer(h.cfg.Metrics.Bind, h.daemon, logging.NewNop())

	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + h.daemon.api.addr()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if !status.Running || status.Mode != config.ModeVideo {
		t.Fatalf("unexpected status %+v", status)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `voicediary_staging_bytes{dir="assets"}`) {
		t.Fatalf("metrics missing staging gauge:\n%s", body)
	}
}

func TestHandleStatusRejectsPost(t *testing.T) {
	h := newHarness(t, workingEncoder(t))
	srv := &apiServer{daemon: h.daemon}

	w := httptest.NewRecorder()
	srv.handleStatus(w, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestStopSweepsInbox(t *testing.T) {
	h := newHarness(t, workingEncoder(t))
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stray := filepath.Join(h.storage.InboxDir(), "late.ogg")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.daemon.Stop()
	if staging.FileExists(stray) {
		t.Fatal("inbox should be swept on shutdown")
	}
}

// slowConverter renders after delay unless ctx is canceled first.
type slowConverter struct {
	delay   time.Duration
	started chan struct{}
}

func (c *slowConverter) Convert(ctx context.Context, job encoding.Job) (encoding.Result, error) {
	close(c.started)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return encoding.Result{}, &encoding.ConversionError{Kind: encoding.FailureCanceled, Err: ctx.Err()}
	}
	if err := os.WriteFile(job.OutputPath, []byte("mp4"), 0o644); err != nil {
		return encoding.Result{}, err
	}
	return encoding.Result{OutputPath: job.OutputPath, OutputBytes: 3}, nil
}

type localDownloader struct{}

func (localDownloader) Fetch(_ context.Context, _, dest string, _ int64) (int64, error) {
	return 4, os.WriteFile(dest, []byte("opus"), 0o644)
}

// replySink mirrors the discord sink: it refuses to send on a canceled ctx.
type replySink struct {
	mu    sync.Mutex
	texts []string
}

func (s *replySink) Reply(ctx context.Context, text string) (workflow.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return workflow.MessageRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return workflow.MessageRef{ChannelID: "1000", MessageID: "r1"}, nil
}

func (s *replySink) Edit(ctx context.Context, _ workflow.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *replySink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// startWithSlowJob starts a daemon whose single in-flight job converts for
// delay, and returns once the converter is running.
func startWithSlowJob(t *testing.T, ctx context.Context, grace int, delay time.Duration) (*Daemon, *replySink, *staging.Manager) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ShutdownGraceSeconds = grace
	logger := logging.NewNop()
	storage := staging.New(cfg.Paths.WorkDir, logger)
	converter := &slowConverter{delay: delay, started: make(chan struct{})}
	coord := workflow.NewCoordinator(cfg, workflow.Dependencies{
		Storage:    storage,
		Downloader: localDownloader{},
		Converter:  converter,
	}, logger)
	gateway := &fakeGateway{}
	d, err := New(cfg, Dependencies{
		Storage:     storage,
		Coordinator: coord,
		Gateway:     gateway,
		Encoder:     workingEncoder(t),
	}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink := &replySink{}
	memo := workflow.Attachment{Filename: "memo.ogg", ContentType: "audio/ogg", SizeBytes: 4, URL: "https://cdn.example/memo.ogg"}
	outcome := coord.HandleAttachmentMessage(gateway.jobCtx, cfg.Discord.ChannelID, "user-1", []workflow.Attachment{memo}, sink)
	if outcome.Accepted() != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	select {
	case <-converter.started:
	case <-time.After(5 * time.Second):
		t.Fatal("converter never started")
	}
	return d, sink, storage
}

func TestStopDrainsJobsAfterSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, sink, storage := startWithSlowJob(t, ctx, 5, 300*time.Millisecond)

	// SIGINT cancels the run context before Stop is called.
	cancel()
	d.Stop()

	texts := sink.snapshot()
	if len(texts) != 2 || !strings.HasPrefix(texts[1], "✅ Successfully converted `memo.ogg`") {
		t.Fatalf("job did not finish during the grace period: %q", texts)
	}
	if !staging.FileExists(storage.OutputPathFor("memo.ogg")) {
		t.Fatal("rendered video missing after drain")
	}
}

func TestStopCancelsJobsPastGrace(t *testing.T) {
	d, sink, storage := startWithSlowJob(t, context.Background(), 1, time.Minute)

	start := time.Now()
	d.Stop()
	if elapsed := time.Since(start); elapsed > 1*time.Second+cancelGrace {
		t.Fatalf("Stop took %s", elapsed)
	}

	texts := sink.snapshot()
	if len(texts) != 2 || texts[1] != "❌ Unexpected error processing `memo.ogg`" {
		t.Fatalf("canceled job replies = %q", texts)
	}
	if staging.FileExists(storage.InboxPathFor("memo.ogg")) {
		t.Fatal("inbox copy left behind")
	}
}
