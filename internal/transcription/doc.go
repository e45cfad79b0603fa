// Package transcription wraps a bidirectional streaming connection to a
// remote speech recognition service. The session worker sends raw audio
// payloads through a Stream and receives partial and final transcript events
// back until the remote closes the stream.
package transcription
