// Package summarize turns a finished meeting transcript into a structured
// record: summary text, action items, and key decisions.
package summarize
