// Package archive exports transcripts of closed sessions to external
// storage. Archiving is best-effort and observational: live session state
// stays memory-resident, and an archive failure never affects teardown.
package archive

import (
	"context"
	"time"

	"github.com/labsim/collab/pkg/collab"
)

// Transcript is the durable record of one finished session: its identity
// plus the complete message and annotation logs.
type Transcript struct {
	SessionID      string              `json:"sessionId"`
	Name           string              `json:"name"`
	Owner          string              `json:"owner"`
	SimulationID   int                 `json:"simulationId"`
	DepartmentType string              `json:"departmentType"`
	CreatedAt      time.Time           `json:"createdAt"`
	ClosedAt       time.Time           `json:"closedAt"`
	Messages       []collab.Message    `json:"messages"`
	Annotations    []collab.Annotation `json:"annotations"`
}

// Archiver stores transcripts of closed sessions.
type Archiver interface {
	Archive(ctx context.Context, t Transcript) error
}

// FromSession builds a transcript from a session's full state. The message
// log is not truncated to the transmit limit; the whole retained log goes
// into the transcript.
func FromSession(s *collab.Session) Transcript {
	snap := s.Snapshot(0)
	return Transcript{
		SessionID:      snap.ID,
		Name:           snap.Name,
		Owner:          snap.Owner,
		SimulationID:   snap.SimulationID,
		DepartmentType: snap.DepartmentType,
		CreatedAt:      snap.CreatedAt,
		ClosedAt:       time.Now(),
		Messages:       snap.Messages,
		Annotations:    snap.Annotations,
	}
}
