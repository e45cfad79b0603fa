package store

import "time"

// Status is the persisted lifecycle state of a meeting.
type Status string

const (
	StatusStreaming   Status = "streaming"
	StatusEnding      Status = "ending"
	StatusSummarizing Status = "summarizing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal reports whether the status is final. EndedAt is set if and only
// if the meeting reached a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// DefaultTitle is used until the user renames the meeting.
const DefaultTitle = "Untitled Meeting"

// Meeting is one capture-to-summary lifecycle. The document id equals the
// transport session id, so a reconnecting client gets a fresh record.
type Meeting struct {
	ID        string     `bson:"_id" json:"id"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Title     string     `bson:"title" json:"title"`
	Status    Status     `bson:"status" json:"status"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	Transcript string `bson:"full_transcript,omitempty" json:"full_transcript,omitempty"`

	Summary      string   `bson:"summary,omitempty" json:"summary,omitempty"`
	ActionItems  []string `bson:"action_items,omitempty" json:"action_items,omitempty"`
	KeyDecisions []string `bson:"key_decisions,omitempty" json:"key_decisions,omitempty"`
}
