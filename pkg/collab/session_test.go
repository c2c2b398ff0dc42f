package collab

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeConn records every event written to it.
type fakeConn struct {
	mu     sync.Mutex
	events []any
	closed bool
}

func (f *fakeConn) WriteEvent(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fake conn closed")
	}
	f.events = append(f.events, v)
	return nil
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestSession(t *testing.T, conn Conn) *Session {
	t.Helper()
	return newSession("sess-1", "Bio Lab", CreateSpec{
		Name:           "Bio Lab",
		SimulationID:   1,
		DepartmentType: "microbiology",
		UserID:         "u1",
		Username:       "U1",
		Conn:           conn,
	}, testLogger())
}

func TestNewSessionWelcomeMessage(t *testing.T) {
	s := newTestSession(t, &fakeConn{})

	if s.ParticipantCount() != 1 {
		t.Fatalf("ParticipantCount() = %d, want 1", s.ParticipantCount())
	}
	snap := s.Snapshot(50)
	if len(snap.Messages) != 1 {
		t.Fatalf("messages = %d, want 1 welcome message", len(snap.Messages))
	}
	msg := snap.Messages[0]
	if msg.Kind != KindSystem || msg.Sender != SystemSender {
		t.Errorf("welcome message kind=%q sender=%q, want system/system", msg.Kind, msg.Sender)
	}
	if want := `Session "Bio Lab" created by U1`; msg.Content != want {
		t.Errorf("welcome content = %q, want %q", msg.Content, want)
	}
	if snap.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0", snap.CurrentStep)
	}
}

func TestJoinBroadcastsAndWelcomes(t *testing.T) {
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	s := newTestSession(t, c1)

	var welcome Snapshot
	s.Join("u2", "U2", c2, 50,
		func(m Message, count int) any { return map[string]any{"joined": m, "count": count} },
		func(snap Snapshot) any { welcome = snap; return snap })

	if s.ParticipantCount() != 2 {
		t.Fatalf("ParticipantCount() = %d, want 2", s.ParticipantCount())
	}
	// Broadcast reaches both, including the joiner.
	if c1.eventCount() != 1 {
		t.Errorf("creator events = %d, want 1 broadcast", c1.eventCount())
	}
	// Joiner gets the broadcast plus the welcome snapshot.
	if c2.eventCount() != 2 {
		t.Errorf("joiner events = %d, want 2", c2.eventCount())
	}
	if welcome.ParticipantCount != 2 {
		t.Errorf("welcome snapshot count = %d, want 2", welcome.ParticipantCount)
	}
	last := welcome.Messages[len(welcome.Messages)-1]
	if want := "U2 has joined the session"; last.Content != want {
		t.Errorf("join notice = %q, want %q", last.Content, want)
	}
}

func TestJoinSupersedesPriorConnection(t *testing.T) {
	c1 := &fakeConn{}
	old := &fakeConn{}
	s := newTestSession(t, c1)
	s.Join("u2", "U2", old, 50, discardBroadcast, discardWelcome)

	// Same user joins again on a fresh connection.
	replacement := &fakeConn{}
	s.Join("u2", "U2", replacement, 50, discardBroadcast, discardWelcome)

	if s.ParticipantCount() != 2 {
		t.Fatalf("ParticipantCount() = %d, want 2 (supersede, not duplicate)", s.ParticipantCount())
	}
	if !old.IsClosed() {
		t.Error("superseded connection should be closed")
	}

	// A disconnect of the superseded transport must not evict the
	// replacement.
	left, empty := s.Leave("u2", old, func(Message, int) any { return nil })
	if left || empty {
		t.Errorf("Leave(stale conn) = (%v, %v), want (false, false)", left, empty)
	}
	if s.ParticipantCount() != 2 {
		t.Errorf("ParticipantCount() = %d after stale leave, want 2", s.ParticipantCount())
	}
}

func TestLeaveNoticeUsesStoredUsername(t *testing.T) {
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	s := newTestSession(t, c1)
	s.Join("u2", "U2", c2, 50, discardBroadcast, discardWelcome)

	var notice Message
	left, empty := s.Leave("u2", c2, func(m Message, count int) any {
		notice = m
		return m
	})
	if !left || empty {
		t.Fatalf("Leave = (%v, %v), want (true, false)", left, empty)
	}
	if want := "U2 has left the session"; notice.Content != want {
		t.Errorf("leave notice = %q, want %q", notice.Content, want)
	}
	if notice.Kind != KindSystem {
		t.Errorf("leave notice kind = %q, want system", notice.Kind)
	}
}

func TestLastLeaveSkipsBroadcast(t *testing.T) {
	c1 := &fakeConn{}
	s := newTestSession(t, c1)

	broadcasts := 0
	left, empty := s.Leave("u1", c1, func(Message, int) any {
		broadcasts++
		return nil
	})
	if !left || !empty {
		t.Fatalf("Leave = (%v, %v), want (true, true)", left, empty)
	}
	if broadcasts != 0 {
		t.Errorf("broadcast builder invoked %d times for last leave, want 0", broadcasts)
	}
}

func TestAppendChatOrderAndBroadcast(t *testing.T) {
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	s := newTestSession(t, c1)
	s.Join("u2", "U2", c2, 50, discardBroadcast, discardWelcome)

	for i := 0; i < 5; i++ {
		s.AppendChat("U1", fmt.Sprintf("msg %d", i), func(m Message) any { return m })
	}

	snap := s.Snapshot(50)
	var chats []Message
	for _, m := range snap.Messages {
		if m.Kind == KindChat {
			chats = append(chats, m)
		}
	}
	if len(chats) != 5 {
		t.Fatalf("chat messages = %d, want 5", len(chats))
	}
	for i, m := range chats {
		if want := fmt.Sprintf("msg %d", i); m.Content != want {
			t.Errorf("chats[%d] = %q, want %q (log order must match send order)", i, m.Content, want)
		}
	}
}

func TestSnapshotHistoryLimit(t *testing.T) {
	s := newTestSession(t, &fakeConn{})
	for i := 0; i < 60; i++ {
		s.AppendChat("U1", fmt.Sprintf("msg %d", i), func(m Message) any { return m })
	}

	snap := s.Snapshot(50)
	if len(snap.Messages) != 50 {
		t.Fatalf("snapshot messages = %d, want 50", len(snap.Messages))
	}
	// Tail must be the most recent messages, in original order.
	if last := snap.Messages[len(snap.Messages)-1]; last.Content != "msg 59" {
		t.Errorf("last snapshot message = %q, want %q", last.Content, "msg 59")
	}
	if s.MessageCount() != 61 { // welcome + 60 chats
		t.Errorf("MessageCount() = %d, want 61 (full log retained)", s.MessageCount())
	}

	full := s.Snapshot(0)
	if len(full.Messages) != 61 {
		t.Errorf("Snapshot(0) messages = %d, want full log of 61", len(full.Messages))
	}
}

func TestAnnotationsAccumulateInOrder(t *testing.T) {
	s := newTestSession(t, &fakeConn{})

	a1 := s.AddAnnotation(10, 20, "first", "#ff0000", "U1", func(a Annotation) any { return a })
	a2 := s.AddAnnotation(50, 50, "second", "#00ff00", "U1", func(a Annotation) any { return a })

	if a1.ID == "" || a2.ID == "" || a1.ID == a2.ID {
		t.Errorf("annotation IDs must be unique and non-empty, got %q and %q", a1.ID, a2.ID)
	}
	snap := s.Snapshot(50)
	if len(snap.Annotations) != 2 {
		t.Fatalf("annotations = %d, want 2", len(snap.Annotations))
	}
	if snap.Annotations[0].Text != "first" || snap.Annotations[1].Text != "second" {
		t.Error("annotations must be returned in insertion order")
	}
}

func TestSetStepLastWriteWins(t *testing.T) {
	s := newTestSession(t, &fakeConn{})

	s.SetStep(3, "U1", func(m Message, step int) any { return step })
	notice := s.SetStep(1, "U1", func(m Message, step int) any { return step })

	// Last write wins; no monotonic enforcement. Intended behavior, not a bug.
	if s.CurrentStep() != 1 {
		t.Errorf("CurrentStep() = %d, want 1", s.CurrentStep())
	}
	if want := "U1 moved to step 2"; notice.Content != want {
		t.Errorf("action notice = %q, want %q (1-based in text)", notice.Content, want)
	}
	if notice.Kind != KindAction {
		t.Errorf("action notice kind = %q, want action", notice.Kind)
	}
}

func TestBroadcastSkipsDeadConnections(t *testing.T) {
	c1 := &fakeConn{}
	dead := &fakeConn{}
	s := newTestSession(t, c1)
	s.Join("u2", "U2", dead, 50, discardBroadcast, discardWelcome)
	dead.Close()

	drops := 0
	s.onBroadcastDrop = func() { drops++ }

	before := c1.eventCount()
	s.AppendChat("U1", "hello", func(m Message) any { return m })

	if c1.eventCount() != before+1 {
		t.Error("live connection should still receive the broadcast")
	}
	if drops != 1 {
		t.Errorf("drops = %d, want 1 for the dead connection", drops)
	}
}

func TestStale(t *testing.T) {
	c1 := &fakeConn{}
	s := newTestSession(t, c1)

	if s.Stale() {
		t.Error("session with a live connection should not be stale")
	}
	c1.Close()
	if !s.Stale() {
		t.Error("session whose every connection is closed should be stale")
	}
}

func TestSnapshotParticipantsOrderedByJoin(t *testing.T) {
	s := newTestSession(t, &fakeConn{})
	s.Join("u2", "U2", &fakeConn{}, 50, discardBroadcast, discardWelcome)

	snap := s.Snapshot(50)
	if len(snap.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(snap.Participants))
	}
	if snap.Participants[0].UserID != "u1" || snap.Participants[1].UserID != "u2" {
		t.Errorf("participants out of join order: %v", snap.Participants)
	}
	var names []string
	for _, p := range snap.Participants {
		names = append(names, p.Username)
	}
	if got := strings.Join(names, ","); got != "U1,U2" {
		t.Errorf("usernames = %q, want %q", got, "U1,U2")
	}
}

func discardBroadcast(Message, int) any { return nil }

func discardWelcome(Snapshot) any { return nil }
