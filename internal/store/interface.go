package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no meeting exists for the given id.
var ErrNotFound = errors.New("meeting not found")

// MeetingStore is the interface consumed by the session pipeline and the
// HTTP API. The concrete implementation is *MongoStore.
type MeetingStore interface {
	// GetOrCreateMeeting returns the existing meeting for id or creates a
	// new one with status streaming.
	GetOrCreateMeeting(ctx context.Context, id, userID string) (*Meeting, error)

	// AppendTranscript adds one final transcript line, newline-joined onto
	// the accumulated text.
	AppendTranscript(ctx context.Context, id, text string) error

	// SetStatus records a non-terminal status transition.
	SetStatus(ctx context.Context, id string, status Status) error

	// Finalize sets a terminal status together with ended_at and the
	// summary fields. Empty summary fields are valid (failed or skipped
	// summarization).
	Finalize(ctx context.Context, id string, status Status, summary string, actionItems, keyDecisions []string) error

	GetMeeting(ctx context.Context, id string) (*Meeting, error)
	ListMeetings(ctx context.Context, userID string) ([]Meeting, error)

	// DeleteMeeting removes the meeting and any derived retrieval chunks
	// keyed by the same id.
	DeleteMeeting(ctx context.Context, id string) error

	Close(ctx context.Context) error
}
