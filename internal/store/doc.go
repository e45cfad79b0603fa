// Package store persists meeting records and their derived retrieval chunks.
// It defines the MeetingStore interface consumed by the session pipeline and
// the HTTP API, backed by MongoDB.
package store
