package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nguoimoi123/meetingmind/internal/store"
	"github.com/nguoimoi123/meetingmind/internal/summarize"
)

// runWorker is the per-session worker. It owns the session's end of the
// intake queue and the transcription stream for the session's lifetime, and
// is the only goroutine that moves the meeting into a terminal status.
func (r *Registry) runWorker(e *entry) {
	defer r.wg.Done()
	defer close(e.done)
	defer r.remove(e.sessionID)

	log := r.logger.With(slog.String("session_id", e.sessionID))
	ctx := r.ctx

	stream, err := r.deps.Transcriber.Open(ctx, e.sessionID)
	if err != nil {
		// A failed connection at session start is reported, not retried:
		// retrying silently would desynchronize the client's "ready" state.
		log.Error("failed to open transcription stream",
			slog.String("error", err.Error()),
		)
		r.finalize(e, log, store.StatusError, "")
		return
	}

	var (
		linesMu sync.Mutex
		lines   []string
	)

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for ev := range stream.Events() {
			r.deps.Metrics.RecordTranscript(ev.Final)
			if !ev.Final {
				r.deps.Notifier.TranscriptPartial(e.sessionID, ev.Text)
				continue
			}

			linesMu.Lock()
			lines = append(lines, ev.Text)
			linesMu.Unlock()

			if err := r.deps.Store.AppendTranscript(ctx, e.sessionID, ev.Text); err != nil {
				log.Warn("failed to persist transcript line",
					slog.String("error", err.Error()),
				)
			}
			r.deps.Notifier.TranscriptFinal(e.sessionID, ev.Text)
		}
	}()

	// Forwarding stops early if the stream dies; a dead recognizer cannot
	// accept audio and the partial transcript must still be finalized.
	stopForward := make(chan struct{})
	go func() {
		defer close(stopForward)
		select {
		case <-recvDone:
		case <-ctx.Done():
		}
	}()

	for {
		payload, ok := e.queue.Pop(stopForward)
		if !ok {
			break
		}
		if err := stream.Send(payload); err != nil {
			// A single failed frame is not fatal; the stream error, if
			// any, surfaces through the receive side.
			log.Warn("failed to forward audio frame",
				slog.Int("payload_size", len(payload)),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := stream.CloseSend(); err != nil {
		log.Debug("failed to signal end of stream",
			slog.String("error", err.Error()),
		)
	}

	// Bounded wait for the recognizer to flush pending transcript events
	// and acknowledge stream close; a dead remote must not hang the worker.
	select {
	case <-recvDone:
	case <-time.After(r.config.CloseTimeout):
		log.Warn("timed out waiting for recognizer to close stream",
			slog.Duration("close_timeout", r.config.CloseTimeout),
		)
	}
	if err := stream.Close(); err != nil {
		log.Debug("failed to close transcription stream",
			slog.String("error", err.Error()),
		)
	}

	linesMu.Lock()
	transcript := strings.Join(lines, "\n")
	linesMu.Unlock()

	streamErr := stream.Err()
	if streamErr != nil {
		log.Error("transcription stream failed",
			slog.String("error", streamErr.Error()),
		)
	}

	finalStatus := store.StatusCompleted
	if streamErr != nil || (transcript == "" && e.isAborted()) {
		finalStatus = store.StatusError
	}

	r.finalize(e, log, finalStatus, transcript)
}

// finalize runs the summarization stage and writes the terminal record.
// Summarizing an empty transcript is skipped: it is a wasted external call
// and a likely API error. A summarization failure never blocks completion.
func (r *Registry) finalize(e *entry, log *slog.Logger, finalStatus store.Status, transcript string) {
	var result summarize.Result

	if transcript != "" {
		e.setStatus(store.StatusSummarizing)
		if err := r.deps.Store.SetStatus(context.Background(), e.sessionID, store.StatusSummarizing); err != nil {
			log.Warn("failed to persist summarizing status",
				slog.String("error", err.Error()),
			)
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.config.SummarizeTimeout)
		start := time.Now()
		res, err := r.deps.Summarizer.Summarize(ctx, transcript)
		cancel()
		r.deps.Metrics.RecordSummarize(time.Since(start).Seconds(), err != nil)
		if err != nil {
			log.Error("summarization failed, completing with empty summary",
				slog.String("error", err.Error()),
			)
		} else {
			result = res
		}
	}

	err := r.deps.Store.Finalize(context.Background(), e.sessionID, finalStatus,
		result.Summary, result.ActionItems, result.KeyDecisions)
	if err != nil {
		log.Error("failed to finalize meeting record",
			slog.String("status", string(finalStatus)),
			slog.String("error", err.Error()),
		)
		e.setStatus(store.StatusError)
		return
	}

	e.setStatus(finalStatus)
	r.deps.Metrics.RecordSessionFinished(string(finalStatus), time.Since(e.startedAt).Seconds())
	log.Info("session finished",
		slog.String("status", string(finalStatus)),
		slog.Int("transcript_len", len(transcript)),
		slog.Bool("summarized", result.Summary != ""),
	)
}
