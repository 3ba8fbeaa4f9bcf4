package room

import (
	"context"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

func (r *Room) handleConnectionClosed(ctx context.Context, ev EvConnectionClosed) {
	if ev.ConnID == r.teacherConnID {
		// Teacher disconnects get a reconnect grace with no auto-finish:
		// the session stays active and simply has no live teacher socket
		// until one reconnects or the session is finished by some other
		// path (spec.md §4.4.6).
		r.teacherConnID = ""
		return
	}

	pid, tracked := r.connToParticipant[ev.ConnID]
	if !tracked {
		return
	}
	delete(r.connToParticipant, ev.ConnID)

	ps, ok := r.byID[pid]
	if !ok || ps.connID != ev.ConnID {
		return
	}
	ps.connID = ""

	pid2 := pid
	ps.leftTimer = time.AfterFunc(r.cfg.StudentDisconnectGrace, func() {
		r.Send(evLeftGraceExpired{participantID: pid2})
	})
}

func (r *Room) handleLeftGraceExpired(ctx context.Context, e evLeftGraceExpired) {
	ps, ok := r.byID[e.participantID]
	if !ok || ps.connID != "" {
		return // reconnected before the grace period elapsed
	}
	now := time.Now()
	ps.joinState = model.JoinLeft
	ps.leftAt = &now

	r.storeOp(ctx, envelope.Destination{Teacher: true}, "", func(callCtx context.Context) error {
		return r.gw.MarkParticipantLeft(callCtx, e.participantID, now)
	})

	r.markWaitingDirty(ctx)
}
