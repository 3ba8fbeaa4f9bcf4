package roomhub

import (
	"testing"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/stretchr/testify/assert"
)

type stubConn struct {
	roomCode      string
	connID        string
	participantID int64
	isTeacher     bool
}

func (c stubConn) RoomCode() string        { return c.roomCode }
func (c stubConn) ConnID() string          { return c.connID }
func (c stubConn) ParticipantID() int64    { return c.participantID }
func (c stubConn) IsTeacher() bool         { return c.isTeacher }
func (c stubConn) Enqueue(envelope.Outbound) bool { return true }

func TestMatchesConnIDTakesPriority(t *testing.T) {
	teacher := stubConn{connID: "t1", isTeacher: true}
	newTeacher := stubConn{connID: "t2", isTeacher: true}

	dest := envelope.Destination{ConnID: "t1", Teacher: true}

	assert.True(t, matches(dest, teacher))
	assert.False(t, matches(dest, newTeacher))
}

func TestMatchesBroadcastReachesEveryone(t *testing.T) {
	dest := envelope.Destination{Broadcast: true}
	assert.True(t, matches(dest, stubConn{isTeacher: true}))
	assert.True(t, matches(dest, stubConn{participantID: 7}))
}

func TestMatchesTeacherOnlyReachesTeacher(t *testing.T) {
	dest := envelope.Destination{Teacher: true}
	assert.True(t, matches(dest, stubConn{isTeacher: true}))
	assert.False(t, matches(dest, stubConn{participantID: 7}))
}

func TestMatchesParticipantScopesToExactID(t *testing.T) {
	dest := envelope.Destination{ParticipantID: 7}
	assert.True(t, matches(dest, stubConn{participantID: 7}))
	assert.False(t, matches(dest, stubConn{participantID: 8}))
	assert.False(t, matches(dest, stubConn{isTeacher: true, participantID: 7}))
}
