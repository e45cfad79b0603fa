package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Speechmatics realtime API message names.
const (
	msgStartRecognition     = "StartRecognition"
	msgRecognitionStarted   = "RecognitionStarted"
	msgAudioAdded           = "AudioAdded"
	msgAddPartialTranscript = "AddPartialTranscript"
	msgAddTranscript        = "AddTranscript"
	msgEndOfStream          = "EndOfStream"
	msgEndOfTranscript      = "EndOfTranscript"
	msgError                = "Error"
	msgWarning              = "Warning"
)

// smMessage covers the subset of the Speechmatics realtime protocol this
// client speaks, for both directions.
type smMessage struct {
	Message string `json:"message"`

	// StartRecognition
	AudioFormat         *smAudioFormat         `json:"audio_format,omitempty"`
	TranscriptionConfig *smTranscriptionConfig `json:"transcription_config,omitempty"`

	// EndOfStream
	LastSeqNo *int `json:"last_seq_no,omitempty"`

	// AddTranscript / AddPartialTranscript
	Metadata *smMetadata `json:"metadata,omitempty"`

	// Error / Warning
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type smAudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type smTranscriptionConfig struct {
	Language       string `json:"language"`
	EnablePartials bool   `json:"enable_partials"`
}

type smMetadata struct {
	Transcript string `json:"transcript"`
}

// Client opens Speechmatics realtime recognition streams. One Client serves
// the whole process; each session gets its own WebSocket connection.
type Client struct {
	config Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewClient creates a Speechmatics streaming client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transcription URL cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("transcription API key cannot be empty")
	}
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		logger: logger,
	}, nil
}

// Open dials the recognition endpoint and performs the StartRecognition
// handshake. It returns once the remote has confirmed the session or fails
// within the configured connect timeout.
func (c *Client) Open(ctx context.Context, sessionID string) (Stream, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.config.APIKey)

	conn, resp, err := c.dialer.DialContext(dialCtx, c.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial recognizer (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial recognizer: %w", err)
	}

	start := smMessage{
		Message: msgStartRecognition,
		AudioFormat: &smAudioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.config.SampleRate,
		},
		TranscriptionConfig: &smTranscriptionConfig{
			Language:       c.config.Language,
			EnablePartials: c.config.EnablePartials,
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send StartRecognition: %w", err)
	}

	// The remote may interleave informational messages before confirming.
	if err := awaitRecognitionStarted(dialCtx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	s := &speechStream{
		conn:      conn,
		sessionID: sessionID,
		events:    make(chan Event, 16),
		logger:    c.logger.With(slog.String("session_id", sessionID)),
	}
	go s.readLoop()

	return s, nil
}

func awaitRecognitionStarted(ctx context.Context, conn *websocket.Conn) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg smMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed waiting for RecognitionStarted: %w", err)
		}
		switch msg.Message {
		case msgRecognitionStarted:
			return nil
		case msgError:
			return fmt.Errorf("recognizer rejected session: %s: %s", msg.Type, msg.Reason)
		default:
			// Info/Warning messages are allowed before confirmation.
		}
	}
}

// speechStream is one live Speechmatics recognition session.
type speechStream struct {
	conn      *websocket.Conn
	sessionID string
	events    chan Event
	logger    *slog.Logger

	writeMu  sync.Mutex
	seq      int
	sentEnd  bool
	sendDead bool

	errMu  sync.Mutex
	err    error
	closed bool
}

func (s *speechStream) Events() <-chan Event { return s.events }

// Send forwards one audio payload as a binary AddAudio frame.
func (s *speechStream) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.sentEnd || s.sendDead {
		return ErrStreamClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		s.sendDead = true
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	s.seq++
	return nil
}

// CloseSend tells the recognizer no more audio will follow. Idempotent.
func (s *speechStream) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.sentEnd {
		return nil
	}
	s.sentEnd = true
	if s.sendDead {
		return ErrStreamClosed
	}

	seq := s.seq
	end := smMessage{Message: msgEndOfStream, LastSeqNo: &seq}
	if err := s.conn.WriteJSON(end); err != nil {
		s.sendDead = true
		return fmt.Errorf("failed to send EndOfStream: %w", err)
	}
	return nil
}

func (s *speechStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *speechStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	// A read failure after a local Close is the expected way the read loop
	// unblocks, not a connection loss.
	if s.closed || s.err != nil {
		return
	}
	s.err = err
}

// Close releases the connection. Safe to call after Events has closed, and
// safe to call on a stream whose remote never acknowledged end of stream:
// read errors caused by the local close are not reported through Err.
func (s *speechStream) Close() error {
	s.errMu.Lock()
	s.closed = true
	s.errMu.Unlock()
	return s.conn.Close()
}

// readLoop pumps recognizer messages into the event channel until the
// remote signals EndOfTranscript or the connection fails.
func (s *speechStream) readLoop() {
	defer close(s.events)

	for {
		var msg smMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(fmt.Errorf("recognizer connection lost: %w", err))
			return
		}

		switch msg.Message {
		case msgAddTranscript:
			if text := transcriptText(&msg); text != "" {
				s.events <- Event{Text: text, Final: true}
			}
		case msgAddPartialTranscript:
			if text := transcriptText(&msg); text != "" {
				s.events <- Event{Text: text, Final: false}
			}
		case msgEndOfTranscript:
			return
		case msgError:
			s.setErr(fmt.Errorf("recognizer error: %s: %s", msg.Type, msg.Reason))
			return
		case msgAudioAdded:
			// Per-frame acknowledgement, nothing to do.
		case msgWarning:
			s.logger.Warn("recognizer warning",
				slog.String("type", msg.Type),
				slog.String("reason", msg.Reason),
			)
		}
	}
}

func transcriptText(msg *smMessage) string {
	if msg.Metadata == nil {
		return ""
	}
	return msg.Metadata.Transcript
}
