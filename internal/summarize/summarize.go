package summarize

import "context"

// Result is the structured meeting record produced from a transcript.
type Result struct {
	Summary      string   `json:"summary"`
	ActionItems  []string `json:"action_items"`
	KeyDecisions []string `json:"key_decisions"`
}

// Summarizer produces a Result from a full meeting transcript. A failure
// must never block release of the session's resources; callers complete the
// session with empty fields when Summarize errors.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (Result, error)
}
