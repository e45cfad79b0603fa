// Package server contains the transport layer: the websocket gateway that
// carries browser audio and control events into the session registry, and the
// REST API for meeting retrieval, on-demand summarization, health and stats.
package server
