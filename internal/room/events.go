package room

import (
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

// JoinResult is sent back on EvJoinRoom.Reply once the actor has decided
// the outcome. The WS Adapter uses it to decide whether to keep the socket
// open and, for students, to bind ParticipantID for subsequent events.
type JoinResult struct {
	ParticipantID int64
	IsTeacher     bool
	Err           error
}

// EvJoinRoom is posted once per accepted WebSocket upgrade, before the
// adapter starts forwarding any other event for that connection.
type EvJoinRoom struct {
	ConnID   string
	Role     string // "teacher" | "student"
	Nickname string // student only
	CSRF     string // teacher only
	Reply    chan JoinResult
}

// EvStartQuiz is accepted only from the teacher connection named by ConnID.
// The WS Adapter in internal/ws has no inbound event that posts it.
type EvStartQuiz struct {
	ConnID string
}

// EvEndQuiz is accepted only from the teacher connection named by ConnID.
// The WS Adapter in internal/ws has no inbound event that posts it.
type EvEndQuiz struct {
	ConnID string
}

// EvRequestQuestion is posted by a student connection asking for its next
// question. Reason is informational (spec.md §6: "death" | "level_up" |
// "retry") and is only ever echoed back, never interpreted by the actor.
type EvRequestQuestion struct {
	ConnID        string
	ParticipantID int64
	Reason        string
	RequestID     string
}

// EvAnswerSubmit is posted by a student connection submitting an answer to
// a previously reserved question.
type EvAnswerSubmit struct {
	ConnID        string
	ParticipantID int64
	QuestionID    string
	Answer        model.AnswerPayload
	RequestID     string
}

// EvRequestStats is posted by the teacher connection.
type EvRequestStats struct {
	ConnID string
}

// EvRequestWaitingRoom is posted by the adapter right after a teacher
// connection finishes registering with the hub, so a (re)connecting
// teacher gets an immediate waiting_room_update instead of waiting out
// the next coalescing window.
type EvRequestWaitingRoom struct {
	ConnID string
}

// EvConnectionClosed is posted by the adapter when a socket goes away,
// regardless of role.
type EvConnectionClosed struct {
	ConnID string
}

// evReservationExpired fires when a pushed question's 10-minute reservation
// TTL elapses without a matching answer_submit (spec.md §4.4.6).
type evReservationExpired struct {
	participantID int64
	questionID    string
	seq           uint64
}

// evLeftGraceExpired fires when a disconnected student's 30s grace period
// elapses without a reconnect.
type evLeftGraceExpired struct {
	participantID int64
}

// evStatsFlush and evWaitingRoomFlush fire when a coalescing window closes.
type evStatsFlush struct{}
type evWaitingRoomFlush struct{}
