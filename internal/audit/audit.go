// Package audit keeps an append-only trail of every conversation turn, so
// that a submitted request can be traced back to the utterances that
// produced it.
package audit

import "time"

// Event is one recorded turn. For voice turns, Transcript carries the
// recognized text alongside the raw input description.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	UserID     int64     `json:"user_id"`
	Kind       string    `json:"kind"` // text, voice, confirm, submit
	Input      string    `json:"input"`
	Transcript string    `json:"transcript,omitempty"`
	Response   string    `json:"response,omitempty"`
}

// Recorder abstracts persistence of interaction events. Implementations
// must be safe for concurrent use; events are appended in chronological
// order.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
