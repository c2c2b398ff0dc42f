package collab

import "time"

// MessageKind classifies a session message. The kind drives client-side
// rendering only; the server stores and broadcasts all kinds identically.
type MessageKind string

const (
	// KindChat is user-authored conversation.
	KindChat MessageKind = "chat"

	// KindAction is a side-effect notice, e.g. "moved to step 3".
	KindAction MessageKind = "action"

	// KindSystem is a join/leave/creation notice.
	KindSystem MessageKind = "system"
)

// SystemSender is the sender recorded on system-generated notices.
const SystemSender = "system"

// Message is one entry in a session's append-only message log.
type Message struct {
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      MessageKind `json:"kind"`
}

// Annotation is one entry in a session's append-only annotation log.
// X and Y are percentages (0-100) of the client's reference surface;
// the server stores whatever the author supplied without validation.
type Annotation struct {
	ID        string    `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Color     string    `json:"color"`
	Timestamp time.Time `json:"timestamp"`
}
