package room

import (
	"context"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

func (r *Room) handleStartQuiz(ctx context.Context, ev EvStartQuiz) {
	if ev.ConnID != r.teacherConnID {
		r.sendTo(ctx, envelope.Destination{ConnID: ev.ConnID}, envelope.EventBadRequest, errPayload(ErrUnauthorized), "")
		return
	}
	if r.status != model.SessionWaiting {
		r.sendToTeacher(ctx, envelope.EventBadRequest, errPayload(ErrBadRequest), "")
		return
	}

	now := time.Now()
	ok := r.storeOp(ctx, envelope.Destination{Teacher: true}, "", func(callCtx context.Context) error {
		return r.gw.SetSessionStatus(callCtx, r.sessionID, model.SessionActive, &now, nil)
	})
	if !ok {
		return
	}

	r.status = model.SessionActive
	r.broadcast(ctx, envelope.EventStartQuiz, map[string]interface{}{
		"sessionId":      r.sessionID,
		"quizTitle":      r.quiz.Title,
		"gameMode":       string(r.gameMode),
		"totalQuestions": len(r.quiz.Questions),
		"startedAt":      formatTs(now),
	}, "")
}

func (r *Room) handleEndQuiz(ctx context.Context, ev EvEndQuiz) {
	if ev.ConnID != r.teacherConnID {
		r.sendTo(ctx, envelope.Destination{ConnID: ev.ConnID}, envelope.EventBadRequest, errPayload(ErrUnauthorized), "")
		return
	}
	if r.status != model.SessionActive {
		r.sendToTeacher(ctx, envelope.EventBadRequest, errPayload(ErrBadRequest), "")
		return
	}

	now := time.Now()
	ok := r.storeOp(ctx, envelope.Destination{Teacher: true}, "", func(callCtx context.Context) error {
		return r.gw.SetSessionStatus(callCtx, r.sessionID, model.SessionFinished, nil, &now)
	})
	if !ok {
		return
	}

	r.status = model.SessionFinished
	r.cancelAllReservations()
	r.broadcast(ctx, envelope.EventEndQuiz, map[string]interface{}{
		"sessionId":    r.sessionID,
		"resultsReady": true,
		"crashed":      false,
		"endedAt":      formatTs(now),
		"finalStats":   r.computeStats(),
	}, "")
	r.scheduleDrainAndClose(ctx)
}

// formatTs matches envelope.NewOutbound's own Ts stamping so every
// timestamp on the wire, frame-level or payload-level, uses one format.
func formatTs(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func (r *Room) cancelAllReservations() {
	for id, res := range r.reservations {
		if res.timer != nil {
			res.timer.Stop()
		}
		delete(r.reservations, id)
	}
}

// errPayload renders a sentinel error as the {"error": "..."} shape of the
// room's bad_request frames. The internal_error frames sent by storeOp
// carry {"message": "..."} instead.
func errPayload(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
