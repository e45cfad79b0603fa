package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nguoimoi123/meetingmind/internal/metrics"
	"github.com/nguoimoi123/meetingmind/internal/session"
	"github.com/nguoimoi123/meetingmind/internal/store"
	"github.com/nguoimoi123/meetingmind/internal/summarize"
)

// SessionMonitor exposes read-only session state for the stats endpoint.
type SessionMonitor interface {
	ActiveCount() int
	Sessions() []session.SessionInfo
}

// API serves the REST endpoints and mounts the websocket gateway.
type API struct {
	store      store.MeetingStore
	summarizer summarize.Summarizer
	gateway    *Gateway
	monitor    SessionMonitor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	started    time.Time
}

// NewAPI creates the HTTP API. metrics may be nil.
func NewAPI(st store.MeetingStore, sum summarize.Summarizer, gw *Gateway, mon SessionMonitor, logger *slog.Logger, m *metrics.Metrics) *API {
	return &API{
		store:      st,
		summarizer: sum,
		gateway:    gw,
		monitor:    mon,
		logger:     logger,
		metrics:    m,
		started:    time.Now(),
	}
}

// Router builds the chi router with all routes mounted.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.instrument)

	r.Get("/health", a.handleHealth)
	r.Get("/stats", a.handleStats)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/meetings", func(r chi.Router) {
		r.Get("/", a.handleListMeetings)
		r.Get("/{id}", a.handleGetMeeting)
		r.Delete("/{id}", a.handleDeleteMeeting)
	})
	r.Post("/summarize", a.handleSummarize)

	r.Get("/ws", a.gateway.HandleWS)
	return r
}

// instrument records request counts and latency per route pattern.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		a.metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(a.started).Seconds()),
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions": a.monitor.ActiveCount(),
		"sessions":        a.monitor.Sessions(),
	})
}

func (a *API) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = DefaultUserID
	}
	meetings, err := a.store.ListMeetings(r.Context(), userID)
	if err != nil {
		a.logger.Error("failed to list meetings",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "failed to list meetings")
		return
	}
	if meetings == nil {
		meetings = []store.Meeting{}
	}
	a.writeJSON(w, http.StatusOK, meetings)
}

func (a *API) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meeting, err := a.store.GetMeeting(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "meeting not found")
			return
		}
		a.logger.Error("failed to get meeting",
			slog.String("meeting_id", id),
			slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "failed to get meeting")
		return
	}
	a.writeJSON(w, http.StatusOK, meeting)
}

func (a *API) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteMeeting(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "meeting not found")
			return
		}
		a.logger.Error("failed to delete meeting",
			slog.String("meeting_id", id),
			slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "failed to delete meeting")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

type summarizeRequest struct {
	Transcript string `json:"transcript"`
}

func (a *API) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Transcript == "" {
		a.writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}

	start := time.Now()
	result, err := a.summarizer.Summarize(r.Context(), req.Transcript)
	a.metrics.RecordSummarize(time.Since(start).Seconds(), err != nil)
	if err != nil {
		a.logger.Error("on-demand summarization failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusBadGateway, "summarization failed")
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("failed to encode response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the given timeout.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
