package room

import (
	"context"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

func (r *Room) handleRequestQuestion(ctx context.Context, ev EvRequestQuestion) {
	if r.status != model.SessionActive {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventBadRequest, errPayload(ErrRoomClosed), ev.RequestID)
		return
	}
	ps, ok := r.byID[ev.ParticipantID]
	if !ok || ps.connID != ev.ConnID {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventBadRequest, errPayload(ErrBadRequest), ev.RequestID)
		return
	}

	// A pending reservation is re-delivered rather than replaced, so a
	// duplicate request_question can never skip a question (spec.md §4.4.3
	// "reservation-based dispatch prevents double push").
	if res, pending := r.reservations[ev.ParticipantID]; pending {
		if q, found := r.quiz.QuestionByExternalID(res.questionID); found {
			r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventQuestionPush, questionPushPayload(q, ev.Reason), ev.RequestID)
		}
		return
	}

	next := r.nextUnansweredQuestion(ps)
	if next == nil {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventNoMoreQuestions, map[string]string{"reason": ev.Reason}, ev.RequestID)
		return
	}

	r.reservationSeq++
	seq := r.reservationSeq
	res := &reservation{
		participantID: ev.ParticipantID,
		questionID:    next.ExternalID,
		seq:           seq,
	}
	res.timer = time.AfterFunc(r.cfg.ReservationTTL, func() {
		r.Send(evReservationExpired{participantID: ev.ParticipantID, questionID: next.ExternalID, seq: seq})
	})
	r.reservations[ev.ParticipantID] = res

	r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventQuestionPush, questionPushPayload(next, ev.Reason), ev.RequestID)
}

func questionPushPayload(q *model.Question, reason string) map[string]interface{} {
	return map[string]interface{}{
		"questionId": q.ExternalID,
		"position":   q.Position,
		"type":       string(q.Type),
		"prompt":     q.Prompt,
		"options":    q.Options,
		"reason":     reason,
	}
}

func (r *Room) nextUnansweredQuestion(ps *participantState) *model.Question {
	for i := range r.quiz.Questions {
		q := &r.quiz.Questions[i]
		qs, seen := ps.questionStates[q.ExternalID]
		if !seen || !qs.IsCorrect {
			return q
		}
	}
	return nil
}

func (r *Room) handleReservationExpired(ctx context.Context, e evReservationExpired) {
	res, ok := r.reservations[e.participantID]
	if !ok || res.seq != e.seq {
		return // already answered or superseded
	}
	delete(r.reservations, e.participantID)
	r.sendToParticipant(ctx, e.participantID, envelope.EventQuestionExpired, map[string]string{
		"questionId": e.questionID,
	}, "")
}
