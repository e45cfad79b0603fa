package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nguoimoi123/meetingmind/internal/metrics"
	"github.com/nguoimoi123/meetingmind/internal/store"
	"github.com/nguoimoi123/meetingmind/internal/summarize"
	"github.com/nguoimoi123/meetingmind/internal/transcription"
)

// Notifier receives live transcript events for relay to the transport.
// Partial events are display-only and never persisted.
type Notifier interface {
	TranscriptPartial(sessionID, text string)
	TranscriptFinal(sessionID, text string)
}

// NopNotifier discards all transcript events.
type NopNotifier struct{}

func (NopNotifier) TranscriptPartial(string, string) {}
func (NopNotifier) TranscriptFinal(string, string)   {}

// Config contains session pipeline configuration.
type Config struct {
	// CloseTimeout bounds the wait for the recognizer to acknowledge end
	// of stream after the sentinel has been forwarded.
	CloseTimeout time.Duration

	// SummarizeTimeout bounds the external summarization call.
	SummarizeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 15 * time.Second
	}
	if c.SummarizeTimeout <= 0 {
		c.SummarizeTimeout = 90 * time.Second
	}
}

// Deps are the external collaborators of the session pipeline.
type Deps struct {
	Store       store.MeetingStore
	Transcriber transcription.Opener
	Summarizer  summarize.Summarizer
	Notifier    Notifier

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// entry is the ephemeral pairing of a session id with its intake queue and
// worker. It exists only while the worker is alive.
type entry struct {
	sessionID string
	userID    string
	queue     *intakeQueue
	done      chan struct{}
	startedAt time.Time

	mu      sync.Mutex
	status  store.Status
	aborted bool
}

func (e *entry) setStatus(s store.Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *entry) getStatus() store.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *entry) abort() {
	e.mu.Lock()
	e.aborted = true
	e.mu.Unlock()
}

func (e *entry) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// Registry is the single authority for session creation, lookup and
// teardown. All map mutations happen under one mutex so that begin and
// teardown cannot interleave and strand a queue without a live worker.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	config Config
	deps   Deps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a session registry.
func NewRegistry(logger *slog.Logger, cfg Config, deps Deps) *Registry {
	cfg.applyDefaults()
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		entries: make(map[string]*entry),
		config:  cfg,
		deps:    deps,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Begin creates the meeting record, allocates the intake queue and spawns
// the session worker. Idempotent: a second start for a live session reuses
// the existing entry instead of spawning a second worker.
func (r *Registry) Begin(ctx context.Context, sessionID, userID string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry is shut down")
	}
	if _, exists := r.entries[sessionID]; exists {
		r.mu.Unlock()
		r.logger.Warn("session already active, reusing",
			slog.String("session_id", sessionID),
		)
		return nil
	}

	e := &entry{
		sessionID: sessionID,
		userID:    userID,
		queue:     newIntakeQueue(),
		done:      make(chan struct{}),
		startedAt: time.Now(),
		status:    store.StatusStreaming,
	}
	r.entries[sessionID] = e
	r.wg.Add(1)
	r.mu.Unlock()

	r.deps.Metrics.RecordSessionStarted()
	r.deps.Metrics.SetActiveSessions(r.ActiveCount())

	if _, err := r.deps.Store.GetOrCreateMeeting(ctx, sessionID, userID); err != nil {
		r.remove(sessionID)
		r.wg.Done()
		return fmt.Errorf("failed to create meeting record: %w", err)
	}

	go r.runWorker(e)

	r.logger.Info("session started",
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
	)
	return nil
}

// PushAudio enqueues one decoded payload for the session. Payloads for
// unknown sessions are dropped: audio arriving before begin completes or
// after teardown is expected transport noise, not an error.
func (r *Registry) PushAudio(sessionID string, payload []byte) {
	r.mu.Lock()
	e, exists := r.entries[sessionID]
	r.mu.Unlock()

	if !exists {
		return
	}
	e.queue.Push(payload)
}

// End enqueues the sentinel for a graceful end-of-meeting. It does not wait
// for the worker to drain. No-op for unknown sessions.
func (r *Registry) End(sessionID string) {
	r.mu.Lock()
	e, exists := r.entries[sessionID]
	r.mu.Unlock()

	if !exists {
		return
	}

	e.setStatus(store.StatusEnding)
	e.queue.PushEnd()
}

// Teardown handles a transport disconnect. The entry is removed so no
// further audio can be queued, and the sentinel is forced so the worker
// drains instead of blocking on a queue whose producer vanished. The worker
// still produces a best-effort summary of whatever transcript was captured.
func (r *Registry) Teardown(sessionID string) {
	r.mu.Lock()
	e, exists := r.entries[sessionID]
	if exists {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	if !e.queue.Ended() {
		e.abort()
		e.setStatus(store.StatusEnding)
		e.queue.PushEnd()
	}

	r.logger.Info("session torn down",
		slog.String("session_id", sessionID),
	)
}

// remove deletes the registry entry. No-op if teardown already removed it.
func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()

	r.deps.Metrics.SetActiveSessions(r.ActiveCount())
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SessionInfo describes one live session for monitoring.
type SessionInfo struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Status    store.Status `json:"status"`
	QueueLen  int          `json:"queue_len"`
}

// Sessions returns a snapshot of all live sessions.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, SessionInfo{
			SessionID: e.sessionID,
			UserID:    e.userID,
			Status:    e.getStatus(),
			QueueLen:  e.queue.Len(),
		})
	}
	return infos
}

// Shutdown gracefully ends all live sessions and waits for their workers,
// bounded by ctx. Begin fails afterward, so no session can slip in behind
// the sentinel broadcast and wait forever for an end that never comes.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, e := range r.entries {
		e.setStatus(store.StatusEnding)
		e.queue.PushEnd()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.cancel()
		return fmt.Errorf("timed out waiting for session workers: %w", ctx.Err())
	}

	r.cancel()
	return nil
}
