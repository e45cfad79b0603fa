// Package protocol defines the wire format spoken with the browser client:
// JSON control events on text frames and header-prefixed audio payloads on
// binary frames.
package protocol
