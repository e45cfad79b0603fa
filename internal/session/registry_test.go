package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nguoimoi123/meetingmind/internal/store"
	"github.com/nguoimoi123/meetingmind/internal/summarize"
	"github.com/nguoimoi123/meetingmind/internal/testutil"
	"github.com/nguoimoi123/meetingmind/internal/transcription"
)

// fakeStream is a scriptable transcription.Stream. Tests push events into
// the events channel; CloseSend closes it to simulate a recognizer that
// acknowledges end of stream promptly.
type fakeStream struct {
	mu           sync.Mutex
	sent         [][]byte
	sendErr      error
	closeSent    bool
	closed       bool
	eventsClosed bool
	errVal       error

	// holdOpen models a recognizer that never acknowledges end of stream:
	// CloseSend leaves the events channel open until Close.
	holdOpen bool

	events chan transcription.Event
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan transcription.Event, 16)}
}

func (s *fakeStream) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeSent {
		return transcription.ErrStreamClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, append([]byte(nil), payload...))
	return nil
}

func (s *fakeStream) Events() <-chan transcription.Event { return s.events }

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSent = true
	if !s.holdOpen {
		s.closeEventsLocked()
	}
	return nil
}

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeEventsLocked()
	return nil
}

func (s *fakeStream) closeEventsLocked() {
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}

// emit queues a transcript event as if the recognizer produced it.
func (s *fakeStream) emit(text string, final bool) {
	s.events <- transcription.Event{Text: text, Final: final}
}

// fail simulates a mid-stream connection failure.
func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errVal = err
	s.closeEventsLocked()
}

func (s *fakeStream) sentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeOpener struct {
	mu       sync.Mutex
	openErr  error
	holdOpen bool
	opens    int
	streams  []*fakeStream
}

func (o *fakeOpener) Open(_ context.Context, _ string) (transcription.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.openErr != nil {
		return nil, o.openErr
	}
	s := newFakeStream()
	s.holdOpen = o.holdOpen
	o.streams = append(o.streams, s)
	return s, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

type fakeSummarizer struct {
	mu     sync.Mutex
	calls  []string
	result summarize.Result
	err    error
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (summarize.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transcript)
	return f.result, f.err
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordNotifier struct {
	mu       sync.Mutex
	partials []string
	finals   []string
}

func (n *recordNotifier) TranscriptPartial(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partials = append(n.partials, text)
}

func (n *recordNotifier) TranscriptFinal(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finals = append(n.finals, text)
}

func (n *recordNotifier) snapshot() (partials, finals []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.partials...), append([]string(nil), n.finals...)
}

type testEnv struct {
	registry   *Registry
	opener     *fakeOpener
	summarizer *fakeSummarizer
	store      *testutil.MockStore
	notifier   *recordNotifier
}

func newTestEnv() *testEnv {
	return newTestEnvConfig(Config{
		CloseTimeout:     time.Second,
		SummarizeTimeout: time.Second,
	})
}

func newTestEnvConfig(cfg Config) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		opener:     &fakeOpener{},
		summarizer: &fakeSummarizer{},
		store:      testutil.NewMockStore(),
		notifier:   &recordNotifier{},
	}
	env.registry = NewRegistry(logger, cfg, Deps{
		Store:       env.store,
		Transcriber: env.opener,
		Summarizer:  env.summarizer,
		Notifier:    env.notifier,
	})
	return env
}

// awaitStream waits for the worker to open its transcription stream.
func (e *testEnv) awaitStream(t *testing.T) *fakeStream {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.opener.mu.Lock()
		if len(e.opener.streams) > 0 {
			s := e.opener.streams[len(e.opener.streams)-1]
			e.opener.mu.Unlock()
			return s
		}
		e.opener.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("worker never opened a transcription stream")
	return nil
}

// awaitIdle waits until all session workers have finished and finalized.
func (e *testEnv) awaitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.registry.ActiveCount() == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sessions still active after deadline: %d", e.registry.ActiveCount())
}

func TestSessionHappyPath(t *testing.T) {
	env := newTestEnv()
	env.summarizer.result = summarize.Result{
		Summary:      "discussed the release",
		ActionItems:  []string{"ship it"},
		KeyDecisions: []string{"release friday"},
	}

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	stream := env.awaitStream(t)

	env.registry.PushAudio("s1", []byte{0x01, 0x02})
	env.registry.PushAudio("s1", []byte{0x03})

	stream.emit("hello every", false)
	stream.emit("hello everyone", true)
	stream.emit("let's begin", true)

	env.registry.End("s1")
	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting == nil {
		t.Fatalf("meeting record was never created")
	}
	if meeting.Status != store.StatusCompleted {
		t.Errorf("Expected status %s, got %s", store.StatusCompleted, meeting.Status)
	}
	if meeting.Transcript != "hello everyone\nlet's begin" {
		t.Errorf("Unexpected transcript: %q", meeting.Transcript)
	}
	if meeting.Summary != "discussed the release" {
		t.Errorf("Unexpected summary: %q", meeting.Summary)
	}
	if len(meeting.ActionItems) != 1 || len(meeting.KeyDecisions) != 1 {
		t.Errorf("Expected action items and key decisions to be persisted, got %v / %v",
			meeting.ActionItems, meeting.KeyDecisions)
	}
	if meeting.EndedAt == nil {
		t.Errorf("Expected ended_at to be set")
	}

	frames := stream.sentFrames()
	if len(frames) != 2 {
		t.Fatalf("Expected 2 forwarded frames, got %d", len(frames))
	}
	if frames[0][0] != 0x01 || frames[1][0] != 0x03 {
		t.Errorf("Frames forwarded out of order: %v", frames)
	}

	if env.summarizer.callCount() != 1 {
		t.Errorf("Expected exactly one summarize call, got %d", env.summarizer.callCount())
	}
	env.summarizer.mu.Lock()
	gotTranscript := env.summarizer.calls[0]
	env.summarizer.mu.Unlock()
	if gotTranscript != "hello everyone\nlet's begin" {
		t.Errorf("Summarizer received wrong transcript: %q", gotTranscript)
	}

	partials, finals := env.notifier.snapshot()
	if len(partials) != 1 || partials[0] != "hello every" {
		t.Errorf("Unexpected partial notifications: %v", partials)
	}
	if len(finals) != 2 {
		t.Errorf("Expected 2 final notifications, got %v", finals)
	}
}

func TestBeginIsIdempotent(t *testing.T) {
	env := newTestEnv()

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	env.awaitStream(t)
	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Second Begin failed: %v", err)
	}

	if env.registry.ActiveCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", env.registry.ActiveCount())
	}
	if env.opener.openCount() != 1 {
		t.Errorf("Expected 1 stream open, got %d", env.opener.openCount())
	}

	env.registry.End("s1")
	env.awaitIdle(t)
}

func TestUnknownSessionOps(t *testing.T) {
	env := newTestEnv()

	// None of these should panic or create state.
	env.registry.PushAudio("ghost", []byte{0x01})
	env.registry.End("ghost")
	env.registry.Teardown("ghost")

	if env.registry.ActiveCount() != 0 {
		t.Errorf("Expected no active sessions, got %d", env.registry.ActiveCount())
	}
}

func TestTeardownFinalizesPartialTranscript(t *testing.T) {
	env := newTestEnv()
	env.summarizer.result = summarize.Result{Summary: "partial notes"}

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	stream := env.awaitStream(t)
	stream.emit("we got this far", true)

	// Disconnect without a graceful end event.
	env.registry.Teardown("s1")
	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting.Status != store.StatusCompleted {
		t.Errorf("Expected completed with captured transcript, got %s", meeting.Status)
	}
	if meeting.Summary != "partial notes" {
		t.Errorf("Expected best-effort summary, got %q", meeting.Summary)
	}
}

func TestTeardownWithoutTranscriptIsError(t *testing.T) {
	env := newTestEnv()

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	env.awaitStream(t)
	env.registry.Teardown("s1")
	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting.Status != store.StatusError {
		t.Errorf("Expected error status for aborted empty session, got %s", meeting.Status)
	}
	if env.summarizer.callCount() != 0 {
		t.Errorf("Summarizer should not run on an empty transcript")
	}
}

func TestGracefulEndWithoutTranscriptCompletes(t *testing.T) {
	env := newTestEnv()

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	env.awaitStream(t)
	env.registry.End("s1")
	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting.Status != store.StatusCompleted {
		t.Errorf("Expected completed for silent meeting, got %s", meeting.Status)
	}
	if meeting.Summary != "" {
		t.Errorf("Expected empty summary, got %q", meeting.Summary)
	}
	if env.summarizer.callCount() != 0 {
		t.Errorf("Summarizer should not run on an empty transcript")
	}
}

func TestOpenFailureFinalizesError(t *testing.T) {
	env := newTestEnv()
	env.opener.openErr = errors.New("dial refused")

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting == nil {
		t.Fatalf("meeting record was never created")
	}
	if meeting.Status != store.StatusError {
		t.Errorf("Expected error status, got %s", meeting.Status)
	}
	if env.summarizer.callCount() != 0 {
		t.Errorf("Summarizer should not run when the stream never opened")
	}
}

func TestBeginStoreFailure(t *testing.T) {
	env := newTestEnv()
	env.store.GetOrCreateErr = errors.New("mongo down")

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err == nil {
		t.Fatalf("Expected Begin to fail when the store is down")
	}
	if env.registry.ActiveCount() != 0 {
		t.Errorf("Expected failed begin to leave no session behind")
	}
}

func TestSummarizeFailureCompletesWithEmptyFields(t *testing.T) {
	env := newTestEnv()
	env.summarizer.err = errors.New("rate limited")

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	stream := env.awaitStream(t)
	stream.emit("important meeting", true)
	env.registry.End("s1")
	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting.Status != store.StatusCompleted {
		t.Errorf("Expected completed despite summarize failure, got %s", meeting.Status)
	}
	if meeting.Summary != "" || len(meeting.ActionItems) != 0 {
		t.Errorf("Expected empty summary fields, got %q / %v", meeting.Summary, meeting.ActionItems)
	}
	if meeting.Transcript != "important meeting" {
		t.Errorf("Transcript must survive summarize failure, got %q", meeting.Transcript)
	}
}

func TestStreamFailureFinalizesErrorWithPartialTranscript(t *testing.T) {
	env := newTestEnv()
	env.summarizer.result = summarize.Result{Summary: "what we have"}

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	stream := env.awaitStream(t)
	stream.emit("first line", true)
	stream.fail(errors.New("connection reset"))

	env.awaitIdle(t)

	meeting := env.store.Snapshot("s1")
	if meeting.Status != store.StatusError {
		t.Errorf("Expected error status after stream failure, got %s", meeting.Status)
	}
	if meeting.Transcript != "first line" {
		t.Errorf("Expected captured transcript to persist, got %q", meeting.Transcript)
	}
	// Best-effort summary of what was captured.
	if env.summarizer.callCount() != 1 {
		t.Errorf("Expected one summarize call, got %d", env.summarizer.callCount())
	}
	if meeting.Summary != "what we have" {
		t.Errorf("Expected best-effort summary, got %q", meeting.Summary)
	}
}

func TestUnresponsiveRecognizerCompletesAfterCloseTimeout(t *testing.T) {
	env := newTestEnvConfig(Config{
		CloseTimeout:     50 * time.Millisecond,
		SummarizeTimeout: time.Second,
	})
	env.opener.holdOpen = true
	env.summarizer.result = summarize.Result{Summary: "wrapped up"}

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	stream := env.awaitStream(t)
	stream.emit("closing remarks", true)

	// The recognizer never acknowledges end of stream; the worker must
	// give up after the close timeout instead of hanging.
	start := time.Now()
	env.registry.End("s1")
	env.awaitIdle(t)
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Worker finished before the close timeout elapsed: %v", elapsed)
	}

	meeting := env.store.Snapshot("s1")
	if meeting.Status != store.StatusCompleted {
		t.Errorf("Expected completed after close timeout, got %s", meeting.Status)
	}
	if meeting.Transcript != "closing remarks" {
		t.Errorf("Expected captured transcript, got %q", meeting.Transcript)
	}
	if meeting.Summary != "wrapped up" {
		t.Errorf("Expected summary despite unresponsive recognizer, got %q", meeting.Summary)
	}

	stream.mu.Lock()
	closed := stream.closed
	stream.mu.Unlock()
	if !closed {
		t.Errorf("Expected the stream to be closed after the timeout")
	}
}

func TestBeginAfterShutdownFails(t *testing.T) {
	env := newTestEnv()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.registry.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if err := env.registry.Begin(context.Background(), "late", "alice"); err == nil {
		t.Fatalf("Expected Begin to fail after shutdown")
	}
	if env.registry.ActiveCount() != 0 {
		t.Errorf("Expected no sessions after rejected begin, got %d", env.registry.ActiveCount())
	}
}

func TestSessionsSnapshot(t *testing.T) {
	env := newTestEnv()

	if err := env.registry.Begin(context.Background(), "s1", "alice"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	env.awaitStream(t)

	infos := env.registry.Sessions()
	if len(infos) != 1 {
		t.Fatalf("Expected 1 session info, got %d", len(infos))
	}
	if infos[0].SessionID != "s1" || infos[0].UserID != "alice" {
		t.Errorf("Unexpected session info: %+v", infos[0])
	}
	if infos[0].Status != store.StatusStreaming {
		t.Errorf("Expected streaming status, got %s", infos[0].Status)
	}

	env.registry.End("s1")
	env.awaitIdle(t)
}

func TestShutdownDrainsAllSessions(t *testing.T) {
	env := newTestEnv()

	for _, id := range []string{"s1", "s2"} {
		if err := env.registry.Begin(context.Background(), id, "alice"); err != nil {
			t.Fatalf("Begin %s failed: %v", id, err)
		}
	}
	env.awaitStream(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.registry.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if env.registry.ActiveCount() != 0 {
		t.Errorf("Expected no active sessions after shutdown, got %d", env.registry.ActiveCount())
	}
	for _, id := range []string{"s1", "s2"} {
		meeting := env.store.Snapshot(id)
		if meeting == nil || !meeting.Status.Terminal() {
			t.Errorf("Session %s not finalized on shutdown: %+v", id, meeting)
		}
	}
}
