// Package ws is the WebSocket Adapter: the per-connection reader/writer
// pumps that translate wire frames into typed Room Actor events and drain
// outbound envelopes back to sockets (spec.md §5). Grounded on the teacher
// repo's pkg/websocket.Client ReadPump/WritePump, generalized from a
// single-quiz client/hub pair into a room-scoped, role-aware connection.
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/room"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/roomhub"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// joinValidate is the struct-tag validation engine for the join_room
// handshake payload, shared across every connection the way the rest of the
// retrieval pack wires a single package-level *validator.Validate rather
// than building one per request.
var joinValidate = validator.New()

const maxMessageSize = 8192

var newline = []byte{'\n'}
var space = []byte{' '}

// Conn is one live WebSocket connection bound to a single room.
type Conn struct {
	id       string
	roomCode string

	joined        bool
	isTeacher     bool
	participantID int64

	wsConn *websocket.Conn
	room   *room.Room
	hub    hub
	cfg    config.RoomConfig
	log    logging.Logger

	send    chan envelope.Outbound
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// hub is the subset of roomhub.Hub the adapter needs.
type hub interface {
	Register(ctx context.Context, c roomhub.Conn) error
	Unregister(c roomhub.Conn)
}

// newConn builds a Conn for an already-upgraded socket, bound to roomCode
// but not yet joined.
func newConn(parent context.Context, wsConn *websocket.Conn, roomCode string, rm *room.Room, h hub, cfg config.RoomConfig, log logging.Logger) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		id:       uuid.New().String(),
		roomCode: roomCode,
		wsConn:   wsConn,
		room:     rm,
		hub:      h,
		cfg:      cfg,
		log:      log.With("conn", roomCode),
		send:     make(chan envelope.Outbound, cfg.OutboundQueueCapacity),
		limiter:  rate.NewLimiter(rate.Limit(20), 40),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Conn) RoomCode() string      { return c.roomCode }
func (c *Conn) ConnID() string        { return c.id }
func (c *Conn) ParticipantID() int64  { return c.participantID }
func (c *Conn) IsTeacher() bool       { return c.isTeacher }

func modelAnswerPayload(text, optionID *string, optionIDs []string) model.AnswerPayload {
	return model.AnswerPayload{Text: text, OptionID: optionID, OptionIDs: optionIDs}
}

// Enqueue implements roomhub.Conn. EventCloseConnection is an internal
// control frame: it never reaches the wire, it tears the connection down.
func (c *Conn) Enqueue(out envelope.Outbound) bool {
	if out.Event == envelope.EventCloseConnection {
		c.triggerClose()
		return true
	}
	select {
	case c.send <- out:
		return true
	default:
		if out.Event.Critical() {
			c.log.Warn("ws: outbound queue full on critical frame, closing connection", "event", string(out.Event))
			c.triggerClose()
			return false
		}
		// Drop the oldest queued frame to make room for this one rather
		// than dropping the incoming frame itself, so a stats_update waiting
		// behind a burst of other frames isn't the one that gets lost.
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- out:
			return true
		default:
			c.log.Warn("ws: outbound queue full, dropping frame", "event", string(out.Event))
			return false
		}
	}
}

func (c *Conn) triggerClose() {
	select {
	case <-c.ctx.Done():
	default:
		c.cancel()
	}
}

// ReadPump parses inbound frames and translates them into Room Actor
// events. The first frame a connection sends must be join_room; every
// later frame requires a successful join.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		if c.joined {
			c.room.Send(room.EvConnectionClosed{ConnID: c.id})
		}
		c.cancel()
		c.wsConn.Close()
	}()

	c.wsConn.SetReadLimit(maxMessageSize)
	c.wsConn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout + c.cfg.HeartbeatInterval))
	c.wsConn.SetPongHandler(func(string) error {
		c.wsConn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout + c.cfg.HeartbeatInterval))
		return nil
	})

	for {
		_, raw, err := c.wsConn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		raw = bytes.TrimSpace(bytes.Replace(raw, newline, space, -1))

		var in envelope.Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": "malformed envelope"}, ""))
			continue
		}

		if !c.joined {
			if in.Event != envelope.InboundJoinRoom {
				c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": "join_room required first"}, in.RequestID))
				continue
			}
			if !c.handleJoin(in) {
				return
			}
			continue
		}

		c.dispatchInbound(in)
	}
}

func (c *Conn) handleJoin(in envelope.Inbound) bool {
	var payload struct {
		Role     string `json:"role" validate:"required,oneof=teacher student"`
		Nickname string `json:"nickname" validate:"required_if=Role student,max=64"`
		CSRF     string `json:"csrf" validate:"required_if=Role teacher"`
	}
	if err := json.Unmarshal(in.Payload, &payload); err != nil {
		c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": "malformed join_room"}, in.RequestID))
		return false
	}
	if err := joinValidate.Struct(payload); err != nil {
		c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": "invalid join_room"}, in.RequestID))
		return false
	}

	reply := make(chan room.JoinResult, 1)
	c.room.Send(room.EvJoinRoom{
		ConnID:   c.id,
		Role:     payload.Role,
		Nickname: payload.Nickname,
		CSRF:     payload.CSRF,
		Reply:    reply,
	})

	select {
	case res := <-reply:
		if res.Err != nil {
			c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": res.Err.Error()}, in.RequestID))
			return false
		}
		c.joined = true
		c.isTeacher = res.IsTeacher
		c.participantID = res.ParticipantID
		if err := c.hub.Register(c.ctx, c); err != nil {
			c.log.Error("ws: hub register failed", "error", err)
			return false
		}
		if c.isTeacher {
			// Registration just completed locally, so a room snapshot
			// published now is guaranteed to reach this connection instead
			// of racing the hub's Redis round trip.
			c.room.Send(room.EvRequestWaitingRoom{ConnID: c.id})
		}
		return true
	case <-time.After(5 * time.Second):
		c.sendDirect(envelope.NewOutbound(envelope.EventInternalError, map[string]string{"error": "join timed out"}, in.RequestID))
		return false
	case <-c.ctx.Done():
		return false
	}
}

func (c *Conn) dispatchInbound(in envelope.Inbound) {
	switch in.Event {
	case envelope.InboundAnswerSubmit:
		var payload struct {
			QuestionID string               `json:"questionId"`
			Answer     json.RawMessage      `json:"answer"`
		}
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": "malformed answer_submit"}, in.RequestID))
			return
		}
		var answer struct {
			Text      *string  `json:"text"`
			OptionID  *string  `json:"optionId"`
			OptionIDs []string `json:"optionIds"`
		}
		_ = json.Unmarshal(payload.Answer, &answer)
		c.room.Send(room.EvAnswerSubmit{
			ConnID:        c.id,
			ParticipantID: c.participantID,
			QuestionID:    payload.QuestionID,
			Answer: modelAnswerPayload(answer.Text, answer.OptionID, answer.OptionIDs),
			RequestID: in.RequestID,
		})
	case envelope.InboundRequestQuestion:
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(in.Payload, &payload)
		c.room.Send(room.EvRequestQuestion{ConnID: c.id, ParticipantID: c.participantID, Reason: payload.Reason, RequestID: in.RequestID})
	case envelope.InboundRequestStats:
		c.room.Send(room.EvRequestStats{ConnID: c.id})
	default:
		c.sendDirect(envelope.NewOutbound(envelope.EventBadRequest, map[string]string{"error": "unknown event"}, in.RequestID))
	}
}

// sendDirect writes a frame straight to this connection's queue without
// going through the hub, used for pre-join/parse-failure responses that
// have no room to route through yet.
func (c *Conn) sendDirect(out envelope.Outbound) {
	select {
	case c.send <- out:
	default:
	}
}

// WritePump drains the outbound queue to the socket and drives the
// heartbeat ping.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.wsConn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			c.wsConn.SetWriteDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
			if !ok {
				c.wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(out)
			if err != nil {
				continue
			}
			w, err := c.wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.wsConn.SetWriteDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
			if err := c.wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
