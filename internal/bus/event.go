// Package bus carries progress events from the studio to whoever watches:
// websocket clients of the server and the chat REPL.
package bus

import "time"

// Kind names what happened.
type Kind string

const (
	KindPlanStarted    Kind = "plan_started"
	KindUnitStarted    Kind = "unit_started"
	KindUnitCompleted  Kind = "unit_completed"
	KindUnitFailed     Kind = "unit_failed"
	KindPlanCompleted  Kind = "plan_completed"
	KindPlanCancelled  Kind = "plan_cancelled"
	KindToolsRefreshed Kind = "tools_refreshed"
)

// Event is one progress notification. Current and Total are set for plan
// events; MediaURL for completed units.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	ItemID    string    `json:"itemId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an Event with Timestamp set to now.
func NewEvent(kind Kind, sessionID string) Event {
	return Event{Kind: kind, SessionID: sessionID, Timestamp: time.Now().UTC()}
}

// Preview returns a short description of e for logging.
func (e Event) Preview() string {
	msg := e.Message
	if len(msg) > 80 {
		msg = msg[:80] + "..."
	}
	return string(e.Kind) + " " + msg
}
