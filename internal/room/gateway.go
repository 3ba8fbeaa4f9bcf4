package room

import (
	"context"
	"errors"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store"
)

// sleepBackoff blocks the actor goroutine for the configured retry delay,
// matching spec.md §4.4.6: the Gateway call and its retries run
// synchronously on the room's own goroutine; nothing else in the room
// progresses meanwhile.
func (r *Room) sleepBackoff(ctx context.Context, attempt int) {
	d := r.cfg.RetryBackoffs[attempt]
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// storeOp runs a Gateway call with the transient-retry / permanent-escalate
// policy of spec.md §4.4.6 and returns whether it ultimately succeeded. On
// exhausted-retry or permanent failure it notifies originator (if given)
// with internal_error and, for permanent failures, tears the room down.
func (r *Room) storeOp(ctx context.Context, originator envelope.Destination, requestID string, op func(ctx context.Context) error) bool {
	var lastErr error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.GatewayCallTimeout)
		err := op(callCtx)
		cancel()
		if err == nil {
			return true
		}

		var perm *store.PermanentStoreError
		if errors.As(err, &perm) {
			r.sendTo(ctx, originator, envelope.EventInternalError, map[string]string{
				"message": "internal error",
			}, requestID)
			r.terminateOnPermanentFailure(ctx, err)
			return false
		}

		lastErr = err
		if attempt >= len(r.cfg.RetryBackoffs) {
			break
		}
		r.sleepBackoff(ctx, attempt)
	}

	r.log.Error("room: gateway call exhausted retries", "error", lastErr)
	r.sendTo(ctx, originator, envelope.EventInternalError, map[string]string{
		"message": "temporarily unavailable, please retry",
	}, requestID)
	return false
}

// terminateOnPermanentFailure ends the session as crashed: it marks status
// finished, tells every connection, and schedules a drain-then-close like a
// normal EndQuiz (spec.md §4.4.6 "escalate to session termination").
func (r *Room) terminateOnPermanentFailure(ctx context.Context, cause error) {
	if r.status == model.SessionFinished {
		return
	}
	r.log.Error("room: permanent store failure, terminating session", "error", cause)
	r.status = model.SessionFinished
	r.crashed = true

	now := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.GatewayCallTimeout)
	_ = r.gw.SetSessionStatus(callCtx, r.sessionID, model.SessionFinished, nil, &now)
	cancel()

	r.broadcast(ctx, envelope.EventEndQuiz, map[string]interface{}{
		"sessionId":    r.sessionID,
		"resultsReady": false,
		"crashed":      true,
		"endedAt":      formatTs(now),
	}, "")
	r.scheduleDrainAndClose(ctx)
}

// sendTo publishes a targeted outbound envelope through the hub.
func (r *Room) sendTo(ctx context.Context, dest envelope.Destination, ev envelope.Event, payload interface{}, requestID string) {
	out := envelope.NewOutbound(ev, payload, requestID)
	if err := r.hub.Publish(ctx, r.roomCode, dest, out); err != nil {
		r.log.Warn("room: publish failed", "event", string(ev), "error", err)
	}
}

// broadcast publishes an outbound envelope to every connection in the room.
func (r *Room) broadcast(ctx context.Context, ev envelope.Event, payload interface{}, requestID string) {
	r.sendTo(ctx, envelope.Destination{Broadcast: true}, ev, payload, requestID)
}

func (r *Room) sendToTeacher(ctx context.Context, ev envelope.Event, payload interface{}, requestID string) {
	r.sendTo(ctx, envelope.Destination{Teacher: true}, ev, payload, requestID)
}

func (r *Room) sendToParticipant(ctx context.Context, participantID int64, ev envelope.Event, payload interface{}, requestID string) {
	r.sendTo(ctx, envelope.Destination{ParticipantID: participantID}, ev, payload, requestID)
}

func (r *Room) scheduleDrainAndClose(ctx context.Context) {
	time.AfterFunc(r.cfg.EndQuizDrainTimeout, func() {
		if err := r.hub.Close(ctx, r.roomCode, envelope.Destination{Broadcast: true}, "RoomClosed"); err != nil {
			r.log.Warn("room: close-all after drain failed", "error", err)
		}
	})
}
