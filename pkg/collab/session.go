package collab

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is the writable handle a session holds for each participant.
// It is implemented by the server's websocket connection wrapper.
type Conn interface {
	// WriteEvent encodes and sends one event to the participant.
	// An error means the connection is no longer usable.
	WriteEvent(v any) error

	// IsClosed reports whether the connection has been torn down.
	IsClosed() bool

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// participant is one roster entry: the user's display name and the live
// connection handle. The username is stored here so leave notices never
// have to guess it from the message log.
type participant struct {
	userID   string
	username string
	conn     Conn
	joinedAt time.Time
}

// Session is the aggregate state for one collaborative session.
// Identity fields are set at creation and never change; roster, logs and
// the current step are guarded by mu.
type Session struct {
	ID             string
	Name           string
	Owner          string
	CreatedAt      time.Time
	SimulationID   int
	DepartmentType string

	mu           sync.Mutex
	currentStep  int
	participants map[string]*participant
	messages     []Message
	annotations  []Annotation

	// onBroadcastDrop is invoked (outside any user-visible path) whenever a
	// broadcast write to a participant is skipped or fails. Observability only.
	onBroadcastDrop func()

	logger *slog.Logger
}

// Snapshot is the wire-visible projection of a session's state. It never
// carries connection handles.
type Snapshot struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Owner            string            `json:"owner"`
	CreatedAt        time.Time         `json:"createdAt"`
	SimulationID     int               `json:"simulationId"`
	DepartmentType   string            `json:"departmentType"`
	CurrentStep      int               `json:"currentStep"`
	Messages         []Message         `json:"messages"`
	Annotations      []Annotation      `json:"annotations"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []ParticipantInfo `json:"participants"`
}

// ParticipantInfo identifies one roster member in snapshots and summaries.
type ParticipantInfo struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Summary is the listing projection of a session: identity and counts only.
type Summary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Owner            string    `json:"owner"`
	CreatedAt        time.Time `json:"createdAt"`
	SimulationID     int       `json:"simulationId"`
	DepartmentType   string    `json:"departmentType"`
	ParticipantCount int       `json:"participantCount"`
}

// newSession constructs a session with the creator as its only participant
// and a single system notice in the message log.
func newSession(id, name string, spec CreateSpec, logger *slog.Logger) *Session {
	now := time.Now()
	s := &Session{
		ID:             id,
		Name:           name,
		Owner:          spec.UserID,
		CreatedAt:      now,
		SimulationID:   spec.SimulationID,
		DepartmentType: spec.DepartmentType,
		participants:   make(map[string]*participant),
		logger:         logger.With("session_id", id),
	}
	s.participants[spec.UserID] = &participant{
		userID:   spec.UserID,
		username: spec.Username,
		conn:     spec.Conn,
		joinedAt: now,
	}
	s.messages = append(s.messages, Message{
		Sender:    SystemSender,
		Content:   fmt.Sprintf("Session %q created by %s", name, spec.Username),
		Timestamp: now,
		Kind:      KindSystem,
	})
	return s
}

// Join adds (or supersedes) a roster entry for userID and appends the join
// notice. The broadcast built by broadcastEvent goes to every participant
// including the joiner; the event built by welcomeEvent from a snapshot of
// the post-join state goes to the joiner alone. Both happen under the
// session lock so no other command's broadcast can interleave between them.
//
// A second join for an already-present userID supersedes the stored
// connection handle; the prior connection is closed.
func (s *Session) Join(userID, username string, conn Conn, historyLimit int,
	broadcastEvent func(joined Message, count int) any,
	welcomeEvent func(Snapshot) any,
) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if prev, ok := s.participants[userID]; ok && prev.conn != conn {
		// Superseding join: the old transport is dead weight from here on.
		prev.conn.Close()
		s.logger.Info("join superseded prior connection", "user_id", userID)
	}
	s.participants[userID] = &participant{
		userID:   userID,
		username: username,
		conn:     conn,
		joinedAt: now,
	}

	msg := Message{
		Sender:    SystemSender,
		Content:   fmt.Sprintf("%s has joined the session", username),
		Timestamp: now,
		Kind:      KindSystem,
	}
	s.messages = append(s.messages, msg)

	s.broadcastLocked(broadcastEvent(msg, len(s.participants)))
	s.writeLocked(conn, welcomeEvent(s.snapshotLocked(historyLimit)))
	return msg
}

// Leave removes userID from the roster and appends the leave notice.
// If conn is non-nil the entry is removed only when it still points at that
// connection, so a disconnect of a superseded transport cannot evict the
// connection that replaced it. The broadcast goes to the remaining
// participants; when the roster empties there is no one left to notify and
// no broadcast is attempted.
//
// left reports whether a roster entry was removed; empty reports whether
// the roster is now empty (the caller is expected to drop the session from
// the registry in that case).
func (s *Session) Leave(userID string, conn Conn,
	broadcastEvent func(notice Message, count int) any,
) (left, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok {
		return false, len(s.participants) == 0
	}
	if conn != nil && p.conn != conn {
		// Stale disconnect from a superseded connection.
		return false, false
	}
	delete(s.participants, userID)

	msg := Message{
		Sender:    SystemSender,
		Content:   fmt.Sprintf("%s has left the session", p.username),
		Timestamp: time.Now(),
		Kind:      KindSystem,
	}
	s.messages = append(s.messages, msg)

	count := len(s.participants)
	if count > 0 {
		s.broadcastLocked(broadcastEvent(msg, count))
	}
	return true, count == 0
}

// AppendChat appends a chat message and broadcasts the event built from it
// to every participant, including the sender.
func (s *Session) AppendChat(sender, content string, event func(Message) any) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
		Kind:      KindChat,
	}
	s.messages = append(s.messages, msg)
	s.broadcastLocked(event(msg))
	return msg
}

// AddAnnotation appends an annotation with a fresh ID and server timestamp
// and broadcasts the event built from it to every participant.
// Coordinates, text and color are stored as supplied.
func (s *Session) AddAnnotation(x, y float64, text, color, author string, event func(Annotation) any) Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := Annotation{
		ID:        uuid.NewString(),
		X:         x,
		Y:         y,
		Text:      text,
		Color:     color,
		Author:    author,
		Timestamp: time.Now(),
	}
	s.annotations = append(s.annotations, a)
	s.broadcastLocked(event(a))
	return a
}

// SetStep sets the current step unconditionally (last write wins, no bounds
// check), appends the action notice, and broadcasts the event. The notice
// shows the human-facing 1-based step number; the stored value is 0-based.
func (s *Session) SetStep(step int, username string, event func(notice Message, step int) any) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentStep = step
	msg := Message{
		Sender:    username,
		Content:   fmt.Sprintf("%s moved to step %d", username, step+1),
		Timestamp: time.Now(),
		Kind:      KindAction,
	}
	s.messages = append(s.messages, msg)
	s.broadcastLocked(event(msg, step))
	return msg
}

// Sync writes the event built from a current snapshot to conn alone.
// No state is mutated.
func (s *Session) Sync(conn Conn, historyLimit int, event func(Snapshot) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(conn, event(s.snapshotLocked(historyLimit)))
}

// Snapshot returns a consistent copy of the session state. historyLimit
// bounds the message tail; a non-positive limit returns the full log.
func (s *Session) Snapshot(historyLimit int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(historyLimit)
}

// Summary returns the listing projection of the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:               s.ID,
		Name:             s.Name,
		Owner:            s.Owner,
		CreatedAt:        s.CreatedAt,
		SimulationID:     s.SimulationID,
		DepartmentType:   s.DepartmentType,
		ParticipantCount: len(s.participants),
	}
}

// CurrentStep returns the current step index.
func (s *Session) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep
}

// ParticipantCount returns the roster size.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// Empty reports whether the roster is empty.
func (s *Session) Empty() bool {
	return s.ParticipantCount() == 0
}

// Stale reports whether every roster connection is closed. A stale session
// holds no reachable participants and is reclaimed by the registry sweep.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.participants) == 0 {
		return true
	}
	for _, p := range s.participants {
		if !p.conn.IsClosed() {
			return false
		}
	}
	return true
}

// MessageCount returns the total retained log length (not the transmitted tail).
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// closeConns closes every roster connection. Used during registry shutdown.
func (s *Session) closeConns() {
	s.mu.Lock()
	conns := make([]Conn, 0, len(s.participants))
	for _, p := range s.participants {
		conns = append(conns, p.conn)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
}

func (s *Session) snapshotLocked(historyLimit int) Snapshot {
	msgs := s.messages
	if historyLimit > 0 && len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	snap := Snapshot{
		ID:               s.ID,
		Name:             s.Name,
		Owner:            s.Owner,
		CreatedAt:        s.CreatedAt,
		SimulationID:     s.SimulationID,
		DepartmentType:   s.DepartmentType,
		CurrentStep:      s.currentStep,
		Messages:         append([]Message{}, msgs...),
		Annotations:      append([]Annotation{}, s.annotations...),
		ParticipantCount: len(s.participants),
		Participants:     make([]ParticipantInfo, 0, len(s.participants)),
	}
	for _, p := range s.participants {
		snap.Participants = append(snap.Participants, ParticipantInfo{
			UserID:   p.userID,
			Username: p.username,
			JoinedAt: p.joinedAt,
		})
	}
	sort.Slice(snap.Participants, func(i, j int) bool {
		return snap.Participants[i].JoinedAt.Before(snap.Participants[j].JoinedAt)
	})
	return snap
}

// broadcastLocked fans one event out to every roster connection. Dead or
// failing connections are skipped; a broadcast never fails as a whole and
// write errors are never surfaced to the sender.
func (s *Session) broadcastLocked(v any) {
	for _, p := range s.participants {
		s.writeLocked(p.conn, v)
	}
}

func (s *Session) writeLocked(conn Conn, v any) {
	if conn.IsClosed() {
		s.dropLocked()
		return
	}
	if err := conn.WriteEvent(v); err != nil {
		s.logger.Debug("broadcast write skipped", "error", err)
		s.dropLocked()
	}
}

func (s *Session) dropLocked() {
	if s.onBroadcastDrop != nil {
		s.onBroadcastDrop()
	}
}
