package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType discriminates client command envelopes.
type CommandType string

const (
	CommandCreate     CommandType = "create"
	CommandJoin       CommandType = "join"
	CommandLeave      CommandType = "leave"
	CommandChat       CommandType = "chat"
	CommandAnnotation CommandType = "annotation"
	CommandStep       CommandType = "step"
	CommandSync       CommandType = "sync"
)

// ErrInvalidFormat is returned when an inbound envelope is not valid JSON
// or its fields do not match the command's shape.
var ErrInvalidFormat = errors.New("protocol: invalid message format")

// UnknownTypeError is returned when an envelope carries an unrecognized
// type discriminator.
type UnknownTypeError struct {
	Type string
}

// Error returns the error message.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown message type %q", e.Type)
}

// Command is one decoded client command. The set of implementations is
// closed; DecodeCommand is the only constructor from wire data.
type Command interface {
	CommandType() CommandType
}

// CreateCommand opens a new session with the sender as its first participant.
type CreateCommand struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	SessionName    string `json:"sessionName"`
	SimulationID   int    `json:"simulationId"`
	DepartmentType string `json:"departmentType"`
}

// JoinCommand adds the sender to an existing session.
type JoinCommand struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

// LeaveCommand removes the sender from its session.
type LeaveCommand struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

// ChatCommand appends a chat message to the session log.
type ChatCommand struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// AnnotationCommand appends an annotation. X and Y are percentages of the
// client's reference surface and are not validated server-side.
type AnnotationCommand struct {
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Text     string  `json:"text"`
	Color    string  `json:"color"`
}

// StepCommand sets the session's current step (0-based, last write wins).
type StepCommand struct {
	Username string `json:"username"`
	Step     int    `json:"step"`
}

// SyncCommand requests a state snapshot for the sender alone.
type SyncCommand struct {
	UserID string `json:"userId"`
}

func (CreateCommand) CommandType() CommandType     { return CommandCreate }
func (JoinCommand) CommandType() CommandType       { return CommandJoin }
func (LeaveCommand) CommandType() CommandType      { return CommandLeave }
func (ChatCommand) CommandType() CommandType       { return CommandChat }
func (AnnotationCommand) CommandType() CommandType { return CommandAnnotation }
func (StepCommand) CommandType() CommandType       { return CommandStep }
func (SyncCommand) CommandType() CommandType       { return CommandSync }

// DecodeCommand parses one inbound envelope. It returns ErrInvalidFormat
// for malformed payloads and *UnknownTypeError for an unrecognized
// discriminator; both leave the connection usable.
func DecodeCommand(data []byte) (Command, error) {
	var env struct {
		Type CommandType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrInvalidFormat
	}

	switch env.Type {
	case CommandCreate:
		return decodeInto[CreateCommand](data)
	case CommandJoin:
		return decodeInto[JoinCommand](data)
	case CommandLeave:
		return decodeInto[LeaveCommand](data)
	case CommandChat:
		return decodeInto[ChatCommand](data)
	case CommandAnnotation:
		return decodeInto[AnnotationCommand](data)
	case CommandStep:
		return decodeInto[StepCommand](data)
	case CommandSync:
		return decodeInto[SyncCommand](data)
	default:
		return nil, &UnknownTypeError{Type: string(env.Type)}
	}
}

func decodeInto[T Command](data []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, ErrInvalidFormat
	}
	return cmd, nil
}
