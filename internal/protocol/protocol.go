package protocol

import (
	"encoding/json"
	"fmt"
)

// Client event names delivered over the transport's text frames.
const (
	EventStart = "start"
	EventEnd   = "end"
)

// Server event names emitted back to the client.
const (
	EventStatus            = "status"
	EventPartialTranscript = "partial_transcript"
	EventTranscript        = "transcript"
	EventError             = "error"
)

// DefaultHeaderLen is the size of the metadata header prefixed to every
// inbound audio frame. Its contents are opaque to this service and are
// discarded.
const DefaultHeaderLen = 5

// ClientEvent is a control message from the browser.
// Audio travels separately as binary frames.
type ClientEvent struct {
	Event  string `json:"event"`
	UserID string `json:"user_id,omitempty"`
}

// ServerEvent is a control or transcript message pushed to the browser.
type ServerEvent struct {
	Event string `json:"event"`
	Msg   string `json:"msg,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ParseClientEvent parses a text frame into a ClientEvent.
func ParseClientEvent(data []byte) (*ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse client event: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("client event missing event field")
	}
	return &ev, nil
}

// DecodeAudioFrame strips the fixed-size metadata header from a raw inbound
// audio message and returns the payload. ok is false when the message is too
// short to carry any audio (length <= headerLen); such frames are dropped so
// that a zero-length payload never reaches the intake queue, where some
// downstream protocols would read it as an end marker.
func DecodeAudioFrame(data []byte, headerLen int) (payload []byte, ok bool) {
	if headerLen < 0 {
		headerLen = 0
	}
	if len(data) <= headerLen {
		return nil, false
	}
	return data[headerLen:], true
}

// String returns a human-readable representation of the client event.
func (e *ClientEvent) String() string {
	if e.UserID == "" {
		return fmt.Sprintf("ClientEvent{Event:%s}", e.Event)
	}
	return fmt.Sprintf("ClientEvent{Event:%s, UserID:%s}", e.Event, e.UserID)
}
