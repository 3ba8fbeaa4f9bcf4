// Package roomhub fans outbound envelopes out to WebSocket connections.
// It generalizes the teacher repo's pkg/websocket.RedisHub from a
// whole-quiz broadcaster keyed by a single boolean (IsCreator) into a
// per-room router keyed by the envelope.Destination a Room Actor computes,
// so multiple orchestrator processes can serve sockets for the same
// roomCode: a publish goes to Redis first, and every subscribed process
// (including the publisher) forwards to its own local connections.
package roomhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Conn is the minimal surface a WebSocket Adapter connection must expose to
// be registered with a Hub. ParticipantID is 0 for a teacher connection.
type Conn interface {
	RoomCode() string
	ConnID() string
	ParticipantID() int64
	IsTeacher() bool
	Enqueue(envelope.Outbound) bool // false => queue full / connection gone
}

// Hub is the process-local fan-out table plus the Redis pub/sub bridge.
type Hub struct {
	redis      *redis.Client
	instanceID string
	log        logging.Logger

	mu    sync.RWMutex
	conns map[string]map[Conn]struct{} // roomCode -> local connections
	subs  map[string]struct{}          // rooms this process has subscribed to
}

// New creates a Hub bound to a Redis client used purely for pub/sub fan-out,
// not as a cache of durable state (see SPEC_FULL.md for why the Gateway stays
// the sole source of truth).
func New(client *redis.Client, log logging.Logger) *Hub {
	return &Hub{
		redis:      client,
		instanceID: uuid.New().String(),
		log:        log,
		conns:      make(map[string]map[Conn]struct{}),
		subs:       make(map[string]struct{}),
	}
}

// InstanceID identifies this process among others sharing the same Redis.
func (h *Hub) InstanceID() string { return h.instanceID }

// Register adds a connection to its room's local fan-out set and, on first
// registration for that room, subscribes this process to its Redis channel.
func (h *Hub) Register(ctx context.Context, c Conn) error {
	room := c.RoomCode()

	h.mu.Lock()
	if h.conns[room] == nil {
		h.conns[room] = make(map[Conn]struct{})
	}
	h.conns[room][c] = struct{}{}
	_, subscribed := h.subs[room]
	if !subscribed {
		h.subs[room] = struct{}{}
	}
	h.mu.Unlock()

	if !subscribed {
		go h.subscribeLoop(ctx, room)
	}
	return nil
}

// Unregister removes a connection from its room's fan-out set.
func (h *Hub) Unregister(c Conn) {
	room := c.RoomCode()
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, room)
		}
	}
}

// ConnectionCount reports how many local connections a room currently has,
// used by the Registry's disposal rule (spec.md §4.3).
func (h *Hub) ConnectionCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[room])
}

// Publish routes an outbound envelope to every process subscribed to the
// room, which then applies Destination filtering against its own local
// connections.
func (h *Hub) Publish(ctx context.Context, room string, dest envelope.Destination, out envelope.Outbound) error {
	routed := envelope.Routed{Dest: dest, Outbound: out}
	data, err := json.Marshal(routed)
	if err != nil {
		return fmt.Errorf("marshal routed envelope: %w", err)
	}
	return h.redis.Publish(ctx, channelName(room), data).Err()
}

// Close routes an internal close-connection control frame to the targeted
// connection(s), carrying reason in the payload.
func (h *Hub) Close(ctx context.Context, room string, dest envelope.Destination, reason string) error {
	out := envelope.NewOutbound(envelope.EventCloseConnection, map[string]string{"reason": reason}, "")
	return h.Publish(ctx, room, dest, out)
}

func (h *Hub) subscribeLoop(ctx context.Context, room string) {
	pubsub := h.redis.Subscribe(ctx, channelName(room))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var routed envelope.Routed
			if err := json.Unmarshal([]byte(msg.Payload), &routed); err != nil {
				h.log.Error("roomhub: bad routed envelope", "room", room, "error", err)
				continue
			}
			h.deliverLocal(room, routed)
		}
	}
}

func (h *Hub) deliverLocal(room string, routed envelope.Routed) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns[room]))
	for c := range h.conns[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !matches(routed.Dest, c) {
			continue
		}
		if !c.Enqueue(routed.Outbound) {
			h.log.Warn("roomhub: dropped frame, queue full or connection gone",
				"room", room, "event", string(routed.Outbound.Event))
		}
	}
}

func matches(dest envelope.Destination, c Conn) bool {
	if dest.ConnID != "" {
		return c.ConnID() == dest.ConnID
	}
	if dest.Broadcast {
		return true
	}
	if dest.Teacher {
		return c.IsTeacher()
	}
	return !c.IsTeacher() && c.ParticipantID() == dest.ParticipantID
}

func channelName(room string) string {
	return fmt.Sprintf("horoquiz:room:%s", room)
}
