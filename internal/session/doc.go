// Package session implements the real-time meeting pipeline core: a
// process-wide registry of live sessions, a FIFO intake queue per session,
// and one worker goroutine per session that bridges inbound audio to the
// streaming transcription client and drives the meeting through
// streaming -> ending -> summarizing -> completed/error.
package session
