package transcription

import (
	"context"
	"errors"
	"time"
)

// Event is one transcript fragment from the remote recognizer. Partial
// events are interim results superseded by later events; only final events
// are durable.
type Event struct {
	Text  string
	Final bool
}

// ErrStreamClosed is returned by Send after the stream has been closed,
// either locally or by the remote.
var ErrStreamClosed = errors.New("transcription stream closed")

// Stream is one live recognition session. It is not restartable: once
// Events is exhausted the stream is finished for good.
type Stream interface {
	// Send forwards one audio payload to the recognizer.
	Send(payload []byte) error

	// Events returns the transcript event channel. It is closed when the
	// remote closes the stream or the connection fails; check Err afterward
	// to distinguish the two.
	Events() <-chan Event

	// CloseSend tells the recognizer no more audio will follow. Transcript
	// events may still arrive until the remote acknowledges end of stream.
	CloseSend() error

	// Err returns the terminal connection error, if any, once Events is
	// closed. A nil result means the stream ended cleanly.
	Err() error

	// Close releases the underlying connection.
	Close() error
}

// Opener creates one Stream per session. The authentication and
// configuration handshake happens inside Open.
type Opener interface {
	Open(ctx context.Context, sessionID string) (Stream, error)
}

// Config contains streaming transcription client configuration.
type Config struct {
	URL            string
	APIKey         string
	Language       string
	SampleRate     int
	EnablePartials bool
	ConnectTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}
