// Package realtime is the per-user progress channel: a WebSocket hub that
// fans generation events out to everyone joined to a user's room.
package realtime

// EventType names a message on the channel.
type EventType string

const (
	EventProgress EventType = "progress_update"
	EventComplete EventType = "processing_complete"
	EventError    EventType = "processing_error"

	EventJoined       EventType = "joined"
	EventJoinRejected EventType = "join_rejected"
)

// Event is the wire format for every server-to-client message.
type Event struct {
	Type        EventType `json:"type"`
	Percent     int       `json:"percent,omitempty"`
	Message     string    `json:"message,omitempty"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
}

// Progress builds a progress_update event. Percent is clamped to 0..100.
func Progress(percent int, message string) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Type: EventProgress, Percent: percent, Message: message}
}

// Complete builds a processing_complete event; redirectURL may be empty.
func Complete(redirectURL string) Event {
	return Event{Type: EventComplete, Percent: 100, RedirectURL: redirectURL}
}

// Failure builds a processing_error event.
func Failure(message string) Event {
	return Event{Type: EventError, Message: message}
}

// joinRequest is the only client-to-server message.
type joinRequest struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}
