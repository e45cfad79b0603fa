// Package testutil provides in-memory test doubles shared across packages.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nguoimoi123/meetingmind/internal/store"
)

// MockStore is a thread-safe in-memory implementation of store.MeetingStore
// for testing.
type MockStore struct {
	mu sync.Mutex

	Meetings map[string]*store.Meeting
	Chunks   map[string]int // meeting id -> derived chunk count

	GetOrCreateErr error
	AppendErr      error
	SetStatusErr   error
	FinalizeErr    error

	GetOrCreateCalls int
	AppendCalls      int
	SetStatusCalls   int
	FinalizeCalls    int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Meetings: make(map[string]*store.Meeting),
		Chunks:   make(map[string]int),
	}
}

func (m *MockStore) GetOrCreateMeeting(_ context.Context, id, userID string) (*store.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetOrCreateCalls++
	if m.GetOrCreateErr != nil {
		return nil, m.GetOrCreateErr
	}
	if meeting, ok := m.Meetings[id]; ok {
		cp := *meeting
		return &cp, nil
	}
	meeting := &store.Meeting{
		ID:        id,
		UserID:    userID,
		Title:     store.DefaultTitle,
		Status:    store.StatusStreaming,
		CreatedAt: time.Now().UTC(),
	}
	m.Meetings[id] = meeting
	cp := *meeting
	return &cp, nil
}

func (m *MockStore) AppendTranscript(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendErr != nil {
		return m.AppendErr
	}
	meeting, ok := m.Meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	if meeting.Transcript == "" {
		meeting.Transcript = text
	} else {
		meeting.Transcript += "\n" + text
	}
	return nil
}

func (m *MockStore) SetStatus(_ context.Context, id string, status store.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetStatusCalls++
	if m.SetStatusErr != nil {
		return m.SetStatusErr
	}
	meeting, ok := m.Meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	meeting.Status = status
	return nil
}

func (m *MockStore) Finalize(_ context.Context, id string, status store.Status, summary string, actionItems, keyDecisions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinalizeCalls++
	if m.FinalizeErr != nil {
		return m.FinalizeErr
	}
	meeting, ok := m.Meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	meeting.Status = status
	meeting.EndedAt = &now
	meeting.Summary = summary
	meeting.ActionItems = actionItems
	meeting.KeyDecisions = keyDecisions
	return nil
}

func (m *MockStore) GetMeeting(_ context.Context, id string) (*store.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.Meetings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *meeting
	return &cp, nil
}

func (m *MockStore) ListMeetings(_ context.Context, userID string) ([]store.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var meetings []store.Meeting
	for _, meeting := range m.Meetings {
		if meeting.UserID == userID {
			meetings = append(meetings, *meeting)
		}
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].CreatedAt.After(meetings[j].CreatedAt)
	})
	return meetings, nil
}

func (m *MockStore) DeleteMeeting(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Meetings[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.Meetings, id)
	delete(m.Chunks, id)
	return nil
}

func (m *MockStore) Close(context.Context) error { return nil }

// Snapshot returns a copy of the stored meeting, or nil.
func (m *MockStore) Snapshot(id string) *store.Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.Meetings[id]
	if !ok {
		return nil
	}
	cp := *meeting
	return &cp
}
