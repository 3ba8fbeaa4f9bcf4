// Package envelope defines the wire format shared by the Room Actor, the
// room hub fan-out, and the WebSocket Adapter: the outbound/inbound frame
// shapes of spec.md §6, kept in their own leaf package so none of those
// three packages need to import one another to agree on a frame shape.
package envelope

import (
	"encoding/json"
	"time"
)

// Event is the outbound event-type tag (server -> client), spec.md §6.
type Event string

const (
	EventWaitingRoomUpdate Event = "waiting_room_update"
	EventStartQuiz         Event = "start_quiz"
	EventQuestionPush      Event = "question_push"
	EventAnswerResult      Event = "answer_result"
	EventStatsUpdate       Event = "stats_update"
	EventQuestionStats     Event = "question_stats"
	EventEndQuiz           Event = "end_quiz"
	EventNoMoreQuestions   Event = "no_more_questions"
	EventQuestionExpired   Event = "question_expired"
	EventBadRequest        Event = "bad_request"
	EventInternalError     Event = "internal_error"

	// EventCloseConnection is an internal control frame routed through the
	// same fan-out path as public events, carrying a close reason
	// (SupersededByNewer or RoomClosed) to the owning WS Adapter, which
	// closes the connection instead of writing the frame to the wire.
	EventCloseConnection Event = "__close_connection"
)

// InboundEvent is the inbound event-type tag (client -> server).
type InboundEvent string

const (
	InboundJoinRoom        InboundEvent = "join_room"
	InboundAnswerSubmit    InboundEvent = "answer_submit"
	InboundRequestQuestion InboundEvent = "request_question"
	InboundRequestStats    InboundEvent = "request_stats"
)

// Critical reports whether an event must never be dropped by the adapter's
// bounded outbound queue (spec.md §4.5 overflow policy).
func (e Event) Critical() bool {
	switch e {
	case EventQuestionPush, EventAnswerResult, EventStartQuiz, EventEndQuiz:
		return true
	default:
		return false
	}
}

// Outbound is the envelope the WS Adapter serializes onto the wire.
type Outbound struct {
	Event     Event       `json:"event"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"requestId,omitempty"`
	Ts        string      `json:"ts"`
}

// NewOutbound stamps Ts as RFC 3339 with millisecond precision.
func NewOutbound(event Event, payload interface{}, requestID string) Outbound {
	return Outbound{
		Event:     event,
		Payload:   payload,
		RequestID: requestID,
		Ts:        time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// Inbound is the raw envelope shape the WS Adapter parses off the wire
// before dispatching into a typed room event.
type Inbound struct {
	Event     InboundEvent    `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// Destination selects which local connections within a room a Hub-routed
// message should reach. ConnID, when set, targets exactly one connection
// instance regardless of role (used to close a superseded teacher socket
// without also closing the new one that just took its place).
type Destination struct {
	Broadcast     bool   `json:"broadcast,omitempty"`
	Teacher       bool   `json:"teacher,omitempty"`
	ParticipantID int64  `json:"participantId,omitempty"`
	ConnID        string `json:"connId,omitempty"`
}

// Routed bundles an Outbound frame with its Destination for transport
// across the room hub's pub/sub fabric.
type Routed struct {
	Dest     Destination `json:"dest"`
	Outbound Outbound    `json:"outbound"`
}
