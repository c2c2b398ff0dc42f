package protocol

import "github.com/labsim/collab/pkg/collab"

// EventType discriminates server-to-client event envelopes.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventSessionJoined     EventType = "session_joined"
	EventChatMessage       EventType = "chat_message"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventStepChanged       EventType = "step_changed"
	EventAnnotationAdded   EventType = "annotation_added"
	EventSessionSync       EventType = "session_sync"
	EventError             EventType = "error"
)

// SessionCreatedEvent confirms a create to its sender, carrying the full
// snapshot of the newly created session.
type SessionCreatedEvent struct {
	Type    EventType       `json:"type"`
	Session collab.Snapshot `json:"session"`
}

// SessionJoinedEvent is unicast to a joiner: the full state of the session
// it just entered.
type SessionJoinedEvent struct {
	Type    EventType       `json:"type"`
	Session collab.Snapshot `json:"session"`
}

// ParticipantJoinedEvent is broadcast to every participant, including the
// joiner, when the roster grows.
type ParticipantJoinedEvent struct {
	Type             EventType      `json:"type"`
	UserID           string         `json:"userId"`
	Username         string         `json:"username"`
	Message          collab.Message `json:"message"`
	ParticipantCount int            `json:"participantCount"`
}

// ParticipantLeftEvent is broadcast to the remaining participants when the
// roster shrinks. It is never sent when the last participant leaves.
type ParticipantLeftEvent struct {
	Type             EventType      `json:"type"`
	UserID           string         `json:"userId"`
	Message          collab.Message `json:"message"`
	ParticipantCount int            `json:"participantCount"`
}

// ChatMessageEvent is broadcast to every participant, including the sender.
type ChatMessageEvent struct {
	Type    EventType      `json:"type"`
	Message collab.Message `json:"message"`
}

// StepChangedEvent is broadcast when the session's current step changes.
type StepChangedEvent struct {
	Type    EventType      `json:"type"`
	Step    int            `json:"step"`
	Message collab.Message `json:"message"`
}

// AnnotationAddedEvent is broadcast when an annotation is appended.
type AnnotationAddedEvent struct {
	Type       EventType         `json:"type"`
	Annotation collab.Annotation `json:"annotation"`
}

// SessionSyncEvent is unicast to the requester of a sync.
type SessionSyncEvent struct {
	Type             EventType           `json:"type"`
	CurrentStep      int                 `json:"currentStep"`
	Messages         []collab.Message    `json:"messages"`
	Annotations      []collab.Annotation `json:"annotations"`
	ParticipantCount int                 `json:"participantCount"`
}

// ErrorEvent reports a failed command to its sender alone. It is never
// fatal to the connection.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// NewSessionCreated builds a session_created event.
func NewSessionCreated(snap collab.Snapshot) SessionCreatedEvent {
	return SessionCreatedEvent{Type: EventSessionCreated, Session: snap}
}

// NewSessionJoined builds a session_joined event.
func NewSessionJoined(snap collab.Snapshot) SessionJoinedEvent {
	return SessionJoinedEvent{Type: EventSessionJoined, Session: snap}
}

// NewParticipantJoined builds a participant_joined event.
func NewParticipantJoined(userID, username string, msg collab.Message, count int) ParticipantJoinedEvent {
	return ParticipantJoinedEvent{
		Type:             EventParticipantJoined,
		UserID:           userID,
		Username:         username,
		Message:          msg,
		ParticipantCount: count,
	}
}

// NewParticipantLeft builds a participant_left event.
func NewParticipantLeft(userID string, msg collab.Message, count int) ParticipantLeftEvent {
	return ParticipantLeftEvent{
		Type:             EventParticipantLeft,
		UserID:           userID,
		Message:          msg,
		ParticipantCount: count,
	}
}

// NewChatMessage builds a chat_message event.
func NewChatMessage(msg collab.Message) ChatMessageEvent {
	return ChatMessageEvent{Type: EventChatMessage, Message: msg}
}

// NewStepChanged builds a step_changed event.
func NewStepChanged(step int, msg collab.Message) StepChangedEvent {
	return StepChangedEvent{Type: EventStepChanged, Step: step, Message: msg}
}

// NewAnnotationAdded builds an annotation_added event.
func NewAnnotationAdded(a collab.Annotation) AnnotationAddedEvent {
	return AnnotationAddedEvent{Type: EventAnnotationAdded, Annotation: a}
}

// NewSessionSync builds a session_sync event from a snapshot.
func NewSessionSync(snap collab.Snapshot) SessionSyncEvent {
	return SessionSyncEvent{
		Type:             EventSessionSync,
		CurrentStep:      snap.CurrentStep,
		Messages:         snap.Messages,
		Annotations:      snap.Annotations,
		ParticipantCount: snap.ParticipantCount,
	}
}

// NewError builds an error event.
func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}
