package server

import (
	"errors"
	"fmt"

	"github.com/labsim/collab/pkg/collab"
	"github.com/labsim/collab/pkg/protocol"
)

// Wire messages for error events. These strings are part of the protocol;
// client UIs surface them verbatim.
const (
	msgInvalidFormat   = "Invalid message format"
	msgUnknownType     = "Unknown message type"
	msgNotConnected    = "Not connected to a session"
	msgSessionNotFound = "Session not found"
	msgSessionLimit    = "Server session limit reached"
)

// errNotConnected marks a session-scoped command from an unbound connection.
var errNotConnected = errors.New("server: connection not bound to a session")

// wireMessage maps a handler error to the error-event message sent to the
// offending connection.
func wireMessage(err error) string {
	switch {
	case errors.Is(err, errNotConnected):
		return msgNotConnected
	case errors.Is(err, collab.ErrSessionNotFound):
		return msgSessionNotFound
	case errors.Is(err, collab.ErrMaxSessionsReached):
		return msgSessionLimit
	default:
		return "Internal error"
	}
}

// handleCommand routes a decoded command. The switch is exhaustive over
// the protocol's command set; DecodeCommand already rejected anything else.
func (c *Conn) handleCommand(cmd protocol.Command) error {
	switch cmd := cmd.(type) {
	case protocol.CreateCommand:
		return c.handleCreate(cmd)
	case protocol.JoinCommand:
		return c.handleJoin(cmd)
	case protocol.LeaveCommand:
		return c.handleLeave(cmd)
	case protocol.ChatCommand:
		return c.handleChat(cmd)
	case protocol.AnnotationCommand:
		return c.handleAnnotation(cmd)
	case protocol.StepCommand:
		return c.handleStep(cmd)
	case protocol.SyncCommand:
		return c.handleSync(cmd)
	default:
		return fmt.Errorf("server: unhandled command type %q", cmd.CommandType())
	}
}

// boundSession resolves the session this connection is bound to. Commands
// that require a session call this first; the two failure modes map to the
// "Not connected to a session" and "Session not found" error events.
func (c *Conn) boundSession() (*collab.Session, error) {
	if c.sessionID == "" || c.userID == "" {
		return nil, errNotConnected
	}
	sess := c.registry.Get(c.sessionID)
	if sess == nil {
		return nil, collab.ErrSessionNotFound
	}
	return sess, nil
}

func (c *Conn) handleCreate(cmd protocol.CreateCommand) error {
	sess, err := c.registry.Create(collab.CreateSpec{
		Name:           cmd.SessionName,
		SimulationID:   cmd.SimulationID,
		DepartmentType: cmd.DepartmentType,
		UserID:         cmd.UserID,
		Username:       cmd.Username,
		Conn:           c,
	})
	if err != nil {
		return err
	}

	c.bind(sess.ID, cmd.UserID, cmd.Username)
	c.metrics.RecordMessage(string(collab.KindSystem))

	// The creator is the only participant; a snapshot unicast is all that
	// is needed, no broadcast.
	return c.WriteEvent(protocol.NewSessionCreated(sess.Snapshot(c.config.HistoryLimit)))
}

func (c *Conn) handleJoin(cmd protocol.JoinCommand) error {
	sess := c.registry.Get(cmd.SessionID)
	if sess == nil {
		return collab.ErrSessionNotFound
	}

	sess.Join(cmd.UserID, cmd.Username, c, c.config.HistoryLimit,
		func(joined collab.Message, count int) any {
			return protocol.NewParticipantJoined(cmd.UserID, cmd.Username, joined, count)
		},
		func(snap collab.Snapshot) any {
			return protocol.NewSessionJoined(snap)
		})

	c.bind(cmd.SessionID, cmd.UserID, cmd.Username)
	c.metrics.RecordMessage(string(collab.KindSystem))
	return nil
}

func (c *Conn) handleChat(cmd protocol.ChatCommand) error {
	sess, err := c.boundSession()
	if err != nil {
		return err
	}

	sess.AppendChat(cmd.Username, cmd.Content, func(m collab.Message) any {
		return protocol.NewChatMessage(m)
	})
	c.metrics.RecordMessage(string(collab.KindChat))
	return nil
}

func (c *Conn) handleAnnotation(cmd protocol.AnnotationCommand) error {
	sess, err := c.boundSession()
	if err != nil {
		return err
	}

	sess.AddAnnotation(cmd.X, cmd.Y, cmd.Text, cmd.Color, cmd.Username,
		func(a collab.Annotation) any {
			return protocol.NewAnnotationAdded(a)
		})
	c.metrics.RecordAnnotation()
	return nil
}

func (c *Conn) handleStep(cmd protocol.StepCommand) error {
	sess, err := c.boundSession()
	if err != nil {
		return err
	}

	sess.SetStep(cmd.Step, cmd.Username, func(notice collab.Message, step int) any {
		return protocol.NewStepChanged(step, notice)
	})
	c.metrics.RecordMessage(string(collab.KindAction))
	return nil
}

func (c *Conn) handleSync(cmd protocol.SyncCommand) error {
	sess, err := c.boundSession()
	if err != nil {
		return err
	}

	sess.Sync(c, c.config.HistoryLimit, func(snap collab.Snapshot) any {
		return protocol.NewSessionSync(snap)
	})
	return nil
}

func (c *Conn) handleLeave(protocol.LeaveCommand) error {
	if _, err := c.boundSession(); err != nil {
		return err
	}
	c.leaveSession()
	return nil
}

// leaveSession removes this connection's participant from its bound
// session, drops the session from the registry when the roster empties,
// and unbinds. Identity comes from the bound state, not the command
// payload, so a client cannot evict someone else.
func (c *Conn) leaveSession() {
	sess := c.registry.Get(c.sessionID)
	if sess == nil {
		c.unbind()
		return
	}

	left, empty := sess.Leave(c.userID, c, func(notice collab.Message, count int) any {
		return protocol.NewParticipantLeft(c.userID, notice, count)
	})
	if left {
		c.metrics.RecordMessage(string(collab.KindSystem))
	}
	if empty {
		// Last participant gone: no broadcast (no one is left to receive
		// it), the record is simply dropped.
		c.registry.RemoveIfEmpty(c.sessionID)
	}
	c.unbind()
}
